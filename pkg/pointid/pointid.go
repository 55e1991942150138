// Package pointid builds and parses the deterministic point identifiers used
// to address every DataPoint, SchemaPoint and GraphEdgePoint in the vector store.
//
// Identifiers are UUID-shaped strings of five fixed-width decimal groups
// (8-4-4-4-12). The first group is the namespace and makes the three kinds
// prefix-disjoint:
//
//	Data   00000002-MMMM-0000-0000-RRRRRRRRRRRR  model id, record id
//	Schema 00000003-MMMM-0000-0000-FFFFFFFFFFFF  0004 (field meta-model) or target model id, field id
//	Graph  00000001-SSSS-TTTT-00CC-FFFFFFFFFFFF  source model, target model, relationship code, field id
//
// Other systems parse these strings directly. The grouping and widths are a
// wire format and must not change.
package pointid

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
)

// Kind is the namespace an identifier belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindData
	KindSchema
	KindGraph
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindSchema:
		return "schema"
	case KindGraph:
		return "graph"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name back to a Kind.
func ParseKind(s string) Kind {
	switch s {
	case "data":
		return KindData
	case "schema":
		return KindSchema
	case "graph", "graph_edge":
		return KindGraph
	default:
		return KindUnknown
	}
}

// Namespace prefixes (first group).
const (
	graphPrefix  = "00000001"
	dataPrefix   = "00000002"
	schemaPrefix = "00000003"
)

// Group limits.
const (
	MaxModelID  int64 = 9999
	MaxRecordID int64 = 999999999999
	MaxFieldID  int64 = 999999999999
)

const idLength = 36

var relationshipCodes = map[models.RelationshipKind]int64{
	models.RelationshipOneToOne:   11,
	models.RelationshipOneToMany:  21,
	models.RelationshipManyToOne:  31,
	models.RelationshipManyToMany: 41,
}

// RelationshipCode returns the two-digit code for a relationship kind.
func RelationshipCode(kind models.RelationshipKind) (int64, bool) {
	code, ok := relationshipCodes[kind]
	return code, ok
}

// RelationshipForCode is the inverse of RelationshipCode.
func RelationshipForCode(code int64) (models.RelationshipKind, bool) {
	for kind, c := range relationshipCodes {
		if c == code {
			return kind, true
		}
	}
	return "", false
}

// Components are the key parts carried by an identifier. Which fields are
// meaningful depends on Kind.
type Components struct {
	Kind Kind `json:"kind"`

	// Data: the record's model. Schema: 4 for a standard field descriptor,
	// or the target model id for an FK-reference address.
	ModelID  int64 `json:"model_id,omitempty"`
	RecordID int64 `json:"record_id,omitempty"`
	FieldID  int64 `json:"field_id,omitempty"`

	SourceModelID int64                   `json:"source_model_id,omitempty"`
	TargetModelID int64                   `json:"target_model_id,omitempty"`
	Relationship  models.RelationshipKind `json:"relationship,omitempty"`
}

// Data returns the identifier of the DataPoint for one source record.
func Data(modelID, recordID int64) (string, error) {
	if err := checkRange("model_id", modelID, MaxModelID); err != nil {
		return "", err
	}
	if err := checkRange("record_id", recordID, MaxRecordID); err != nil {
		return "", err
	}
	return format(dataPrefix, modelID, 0, 0, recordID), nil
}

// Schema returns the identifier of the standard SchemaPoint for a field.
func Schema(fieldID int64) (string, error) {
	return SchemaRef(models.MetaFieldModelID, fieldID)
}

// SchemaRef returns the FK-reference SchemaPoint identifier that lets a
// source field address the identifying field of its target model directly.
func SchemaRef(targetModelID, targetFieldID int64) (string, error) {
	if err := checkRange("target_model_id", targetModelID, MaxModelID); err != nil {
		return "", err
	}
	if err := checkRange("field_id", targetFieldID, MaxFieldID); err != nil {
		return "", err
	}
	return format(schemaPrefix, targetModelID, 0, 0, targetFieldID), nil
}

// Graph returns the identifier of a GraphEdgePoint.
func Graph(sourceModelID, targetModelID int64, kind models.RelationshipKind, fieldID int64) (string, error) {
	if err := checkRange("source_model_id", sourceModelID, MaxModelID); err != nil {
		return "", err
	}
	if err := checkRange("target_model_id", targetModelID, MaxModelID); err != nil {
		return "", err
	}
	code, ok := RelationshipCode(kind)
	if !ok {
		return "", apperrors.InvalidArgument("unsupported relationship kind %q", kind)
	}
	if err := checkRange("field_id", fieldID, MaxFieldID); err != nil {
		return "", err
	}
	return format(graphPrefix, sourceModelID, targetModelID, code, fieldID), nil
}

// MustData is Data for inputs already known to be in range.
func MustData(modelID, recordID int64) string {
	id, err := Data(modelID, recordID)
	if err != nil {
		panic(err)
	}
	return id
}

// DataIDs maps record ids of one model to DataPoint identifiers.
func DataIDs(modelID int64, recordIDs []int64) ([]string, error) {
	ids := make([]string, 0, len(recordIDs))
	for _, recordID := range recordIDs {
		id, err := Data(modelID, recordID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func checkRange(name string, v, max int64) error {
	if v < 0 {
		return apperrors.InvalidArgument("%s must be non-negative, got %d", name, v)
	}
	if v > max {
		return apperrors.InvalidArgument("%s %d exceeds maximum %d", name, v, max)
	}
	return nil
}

func format(prefix string, g2, g3, g4, g5 int64) string {
	return fmt.Sprintf("%s-%04d-%04d-%04d-%012d", prefix, g2, g3, g4, g5)
}

// groups splits an identifier into its numeric groups. It returns false
// unless the string has the exact 8-4-4-4-12 all-digit layout.
func groups(id string) (prefix string, g2, g3, g4, g5 int64, ok bool) {
	if len(id) != idLength || id[8] != '-' || id[13] != '-' || id[18] != '-' || id[23] != '-' {
		return "", 0, 0, 0, 0, false
	}
	for i := 0; i < idLength; i++ {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			continue
		}
		if id[i] < '0' || id[i] > '9' {
			return "", 0, 0, 0, 0, false
		}
	}
	// All-digit groups of bounded width always parse.
	g2, _ = strconv.ParseInt(id[9:13], 10, 64)
	g3, _ = strconv.ParseInt(id[14:18], 10, 64)
	g4, _ = strconv.ParseInt(id[19:23], 10, 64)
	g5, _ = strconv.ParseInt(id[24:], 10, 64)
	return id[:8], g2, g3, g4, g5, true
}

// ParseData returns the model and record ids of a Data identifier.
func ParseData(id string) (modelID, recordID int64, ok bool) {
	prefix, g2, g3, g4, g5, ok := groups(id)
	if !ok || prefix != dataPrefix || g3 != 0 || g4 != 0 {
		return 0, 0, false
	}
	return g2, g5, true
}

// ParseSchema returns the model group and field id of a Schema identifier.
// modelID is 4 for standard descriptors and the target model id for
// FK-reference addresses.
func ParseSchema(id string) (modelID, fieldID int64, ok bool) {
	prefix, g2, g3, g4, g5, ok := groups(id)
	if !ok || prefix != schemaPrefix || g3 != 0 || g4 != 0 {
		return 0, 0, false
	}
	return g2, g5, true
}

// ParseGraph returns the components of a Graph identifier.
func ParseGraph(id string) (Components, bool) {
	prefix, g2, g3, g4, g5, ok := groups(id)
	if !ok || prefix != graphPrefix {
		return Components{}, false
	}
	kind, ok := RelationshipForCode(g4)
	if !ok {
		return Components{}, false
	}
	return Components{
		Kind:          KindGraph,
		SourceModelID: g2,
		TargetModelID: g3,
		Relationship:  kind,
		FieldID:       g5,
	}, true
}

// Parse decodes an identifier of any kind. It never fails loudly: input that
// is not a valid identifier yields ok=false and callers treat it as "not
// one of ours".
func Parse(id string) (Components, bool) {
	if modelID, recordID, ok := ParseData(id); ok {
		return Components{Kind: KindData, ModelID: modelID, RecordID: recordID}, true
	}
	if modelID, fieldID, ok := ParseSchema(id); ok {
		return Components{Kind: KindSchema, ModelID: modelID, FieldID: fieldID}, true
	}
	return ParseGraph(id)
}

// Validate reports whether id is a valid identifier of some kind.
func Validate(id string) bool {
	_, ok := Parse(id)
	return ok
}

// Classify returns the kind of id by its namespace prefix. Strings that
// carry a known prefix but are malformed for that kind are KindUnknown, so
// no string is ever classified under two kinds.
func Classify(id string) Kind {
	c, ok := Parse(id)
	if !ok {
		return KindUnknown
	}
	return c.Kind
}

// UUID converts an identifier into the uuid.UUID form used by stores with a
// native uuid column. The identifier must be valid.
func UUID(id string) (uuid.UUID, error) {
	if !Validate(id) {
		return uuid.Nil, apperrors.InvalidArgument("not a point identifier: %q", id)
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperrors.InvalidArgument("point identifier %q: %v", id, err)
	}
	return u, nil
}

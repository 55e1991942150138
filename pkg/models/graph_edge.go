package models

import "time"

// RelationshipKind is the direction/multiplicity of a GraphEdgePoint.
type RelationshipKind string

const (
	RelationshipOneToOne   RelationshipKind = "one_to_one"
	RelationshipOneToMany  RelationshipKind = "one_to_many"
	RelationshipManyToOne  RelationshipKind = "many_to_one"
	RelationshipManyToMany RelationshipKind = "many_to_many"
)

// RelationshipKindForField maps a relational field type to the edge kind it produces.
func RelationshipKindForField(t FieldType) (RelationshipKind, bool) {
	switch t {
	case FieldTypeManyToOne:
		return RelationshipManyToOne, true
	case FieldTypeOneToMany:
		return RelationshipOneToMany, true
	case FieldTypeManyToMany:
		return RelationshipManyToMany, true
	default:
		return "", false
	}
}

// CardinalityClass classifies an edge by how many references land on each target.
type CardinalityClass string

const (
	CardinalityOneToOne  CardinalityClass = "one_to_one"
	CardinalityOneToFew  CardinalityClass = "one_to_few"
	CardinalityOneToMany CardinalityClass = "one_to_many"
)

// Point type discriminators stored on every payload.
const (
	PointTypeData      = "data"
	PointTypeSchema    = "schema"
	PointTypeGraphEdge = "graph_edge"
)

// Payload keys shared by the point writers and readers.
const (
	PayloadPointType     = "point_type"
	PayloadModelID       = "model_id"
	PayloadModelName     = "model_name"
	PayloadRecordID      = "record_id"
	PayloadRecord        = "record"
	PayloadFKRefs        = "fk_refs"
	PayloadSyncedAt      = "synced_at"
	PayloadFieldID       = "field_id"
	PayloadSourceModel   = "source_model"
	PayloadSourceModelID = "source_model_id"
	PayloadTargetModel   = "target_model"
	PayloadTargetModelID = "target_model_id"
)

// GraphEdgePayload is the payload of one GraphEdgePoint: statistics for a
// single FK field, recomputed wholesale by every graph build.
type GraphEdgePayload struct {
	SourceModel      string           `json:"source_model"`
	SourceModelID    int64            `json:"source_model_id"`
	TargetModel      string           `json:"target_model"`
	TargetModelID    int64            `json:"target_model_id"`
	FieldID          int64            `json:"field_id"`
	FieldName        string           `json:"field_name"`
	FieldLabel       string           `json:"field_label"`
	RelationshipType RelationshipKind `json:"relationship_type"`
	EdgeCount        int64            `json:"edge_count"`
	UniqueTargets    int64            `json:"unique_targets"`
	CardinalityClass CardinalityClass `json:"cardinality_class"`
	OrphanTargets    int64            `json:"orphan_targets"`
	IntegrityScore   float64          `json:"integrity_score"`
	BuiltAt          time.Time        `json:"built_at"`
}

// RelationshipInfo is one relationship as seen from a model's graph context.
type RelationshipInfo struct {
	FieldID          int64            `json:"field_id"`
	FieldName        string           `json:"field_name"`
	FieldLabel       string           `json:"field_label,omitempty"`
	SourceModel      string           `json:"source_model"`
	SourceModelID    int64            `json:"source_model_id"`
	TargetModel      string           `json:"target_model"`
	TargetModelID    int64            `json:"target_model_id"`
	RelationshipType RelationshipKind `json:"relationship_type"`
	EdgeCount        int64            `json:"edge_count"`
	UniqueTargets    int64            `json:"unique_targets"`
	CardinalityClass CardinalityClass `json:"cardinality_class"`
	IntegrityScore   float64          `json:"integrity_score"`
}

// GraphContext is the set of relationships touching one model.
type GraphContext struct {
	ModelName string             `json:"model_name"`
	Outgoing  []RelationshipInfo `json:"outgoing"`
	Incoming  []RelationshipInfo `json:"incoming"`
	// TotalEdges sums edge_count over outgoing and incoming relationships.
	TotalEdges int64 `json:"total_edges"`
}

// Degree is the number of relationships touching the model.
func (c *GraphContext) Degree() int {
	if c == nil {
		return 0
	}
	return len(c.Outgoing) + len(c.Incoming)
}

// ConnectionCount is the connectivity of one record.
type ConnectionCount struct {
	// Outgoing counts populated FK-reference fields on the record.
	Outgoing int `json:"outgoing"`
	// OutgoingFieldCount is the number of outgoing FK fields known for the model.
	OutgoingFieldCount int `json:"outgoing_field_count"`
	// IncomingEdgeCount sums edge_count over the model's incoming relationships.
	// It is model-level: nothing checks that this record is actually referenced.
	IncomingEdgeCount int64 `json:"incoming_edge_count"`
	Total             int64 `json:"total"`
}

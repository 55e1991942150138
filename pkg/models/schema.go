package models

import "strings"

// MetaFieldModelID is the id of the meta-model that holds field descriptors.
// Standard SchemaPoint identifiers always carry it in their model group.
const MetaFieldModelID int64 = 4

// FieldType is the source-system type of a field.
type FieldType string

// Relational field types. Everything else is treated as a scalar kind.
const (
	FieldTypeManyToOne  FieldType = "many_to_one"
	FieldTypeOneToMany  FieldType = "one_to_many"
	FieldTypeManyToMany FieldType = "many_to_many"
)

// odooFieldTypes maps the source system's own relational type names.
var odooFieldTypes = map[string]FieldType{
	"many2one":  FieldTypeManyToOne,
	"one2many":  FieldTypeOneToMany,
	"many2many": FieldTypeManyToMany,
}

// ParseFieldType normalizes a field type as written in a catalog. Odoo
// spellings (many2one, one2many, many2many) map to the relational
// constants; anything else is kept lower-cased as a scalar kind.
func ParseFieldType(s string) FieldType {
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := odooFieldTypes[s]; ok {
		return t
	}
	return FieldType(s)
}

// IsRelational returns true for field types that reference another model.
func (t FieldType) IsRelational() bool {
	switch t {
	case FieldTypeManyToOne, FieldTypeOneToMany, FieldTypeManyToMany:
		return true
	default:
		return false
	}
}

// IsArray returns true for field types whose value is a list of ids.
func (t FieldType) IsArray() bool {
	return t == FieldTypeOneToMany || t == FieldTypeManyToMany
}

// ModelDescriptor identifies a source model. Both values are assigned
// upstream and never change.
type ModelDescriptor struct {
	ModelID   int64  `json:"model_id" yaml:"model_id"`
	ModelName string `json:"model_name" yaml:"model_name"`
}

// FieldDescriptor describes one field of a model. FieldID is unique across
// all models, which makes SchemaPoint and GraphEdgePoint addresses collision-free.
type FieldDescriptor struct {
	FieldID     int64     `json:"field_id" yaml:"field_id"`
	ModelID     int64     `json:"model_id" yaml:"model_id"`
	ModelName   string    `json:"model_name" yaml:"model_name"`
	FieldName   string    `json:"field_name" yaml:"field_name"`
	FieldLabel  string    `json:"field_label" yaml:"field_label"`
	FieldType   FieldType `json:"field_type" yaml:"field_type"`
	Stored      bool      `json:"stored" yaml:"stored"`
	TargetModel string    `json:"target_model,omitempty" yaml:"target_model,omitempty"`
	// TargetModelID is zero when the target model could not be resolved.
	TargetModelID int64 `json:"target_model_id,omitempty" yaml:"target_model_id,omitempty"`
	// TargetFieldID is the identifying field of the target model, when known.
	TargetFieldID int64 `json:"target_field_id,omitempty" yaml:"target_field_id,omitempty"`
}

// IsFKUsable reports whether the field can drive dependency discovery:
// relational, with a resolved target, and stored in the source system.
// Computed fields cannot be fetched, so they are excluded.
func (f FieldDescriptor) IsFKUsable() bool {
	return f.FieldType.IsRelational() &&
		f.TargetModel != "" &&
		f.TargetModelID > 0 &&
		f.Stored
}

// Record is one raw source record as returned by the source fetcher.
type Record map[string]any

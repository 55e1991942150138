package models

import "github.com/ekaya-inc/ekaya-fkgraph/pkg/jsonutil"

// FKValueKind tags how a foreign-key value was present on a record.
type FKValueKind int

const (
	FKAbsent FKValueKind = iota
	FKScalar
	FKArray
)

func (k FKValueKind) String() string {
	switch k {
	case FKScalar:
		return "scalar"
	case FKArray:
		return "array"
	default:
		return "absent"
	}
}

// FKValue is a foreign-key value resolved once from a raw record field.
// IDs holds every valid (positive) id in source order; duplicates are kept
// so callers can count raw references.
type FKValue struct {
	Kind FKValueKind
	IDs  []int64
}

// Absent reports whether the value references nothing.
func (v FKValue) Absent() bool {
	return v.Kind == FKAbsent || len(v.IDs) == 0
}

// ResolveFKValue interprets a raw field value according to its field type.
//
// many_to_one accepts a bare id or an (id, label) pair; false, nil and
// non-positive ids mean "no reference". one_to_many and many_to_many accept
// a list of ids and skip non-positive or non-numeric entries. An absent FK
// is a valid state, never an error.
func ResolveFKValue(fieldType FieldType, raw any) FKValue {
	switch fieldType {
	case FieldTypeManyToOne:
		id, ok := manyToOneID(raw)
		if !ok {
			return FKValue{Kind: FKAbsent}
		}
		return FKValue{Kind: FKScalar, IDs: []int64{id}}
	case FieldTypeOneToMany, FieldTypeManyToMany:
		items, ok := raw.([]any)
		if !ok {
			items = int64Items(raw)
		}
		var ids []int64
		for _, item := range items {
			if id, ok := jsonutil.FlexibleInt64(item); ok && id > 0 {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return FKValue{Kind: FKAbsent}
		}
		return FKValue{Kind: FKArray, IDs: ids}
	default:
		return FKValue{Kind: FKAbsent}
	}
}

func manyToOneID(raw any) (int64, bool) {
	switch v := raw.(type) {
	case nil, bool:
		return 0, false
	case []any:
		if len(v) == 0 {
			return 0, false
		}
		raw = v[0]
	case []int64:
		if len(v) == 0 {
			return 0, false
		}
		raw = v[0]
	}
	id, ok := jsonutil.FlexibleInt64(raw)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// int64Items adapts typed id slices built in Go code (rather than decoded
// from JSON) to the generic item loop.
func int64Items(raw any) []any {
	switch v := raw.(type) {
	case []int64:
		items := make([]any, len(v))
		for i, id := range v {
			items[i] = id
		}
		return items
	case []int:
		items := make([]any, len(v))
		for i, id := range v {
			items[i] = id
		}
		return items
	default:
		return nil
	}
}

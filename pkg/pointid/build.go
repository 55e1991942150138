package pointid

import (
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
)

// Build constructs an identifier from loosely typed components, as they
// arrive from JSON tool arguments. Required components per kind:
//
//	data:   model_id, record_id
//	schema: field_id, plus target_model_id for an FK-reference address
//	graph:  source_model_id, target_model_id, relationship, field_id
//
// Missing, NaN, fractional or negative numbers and relationship values
// outside the enum fail with apperrors.ErrInvalidArgument.
func Build(kind Kind, args map[string]any) (string, error) {
	switch kind {
	case KindData:
		modelID, err := component(args, "model_id")
		if err != nil {
			return "", err
		}
		recordID, err := component(args, "record_id")
		if err != nil {
			return "", err
		}
		return Data(modelID, recordID)

	case KindSchema:
		fieldID, err := component(args, "field_id")
		if err != nil {
			return "", err
		}
		if _, present := args["target_model_id"]; present {
			targetModelID, err := component(args, "target_model_id")
			if err != nil {
				return "", err
			}
			return SchemaRef(targetModelID, fieldID)
		}
		return Schema(fieldID)

	case KindGraph:
		sourceModelID, err := component(args, "source_model_id")
		if err != nil {
			return "", err
		}
		targetModelID, err := component(args, "target_model_id")
		if err != nil {
			return "", err
		}
		rel, err := relationship(args)
		if err != nil {
			return "", err
		}
		fieldID, err := component(args, "field_id")
		if err != nil {
			return "", err
		}
		return Graph(sourceModelID, targetModelID, rel, fieldID)

	default:
		return "", apperrors.InvalidArgument("unknown identifier kind %q", kind)
	}
}

func component(args map[string]any, name string) (int64, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, apperrors.InvalidArgument("missing component %s", name)
	}
	v, ok := jsonutil.FlexibleInt64(raw)
	if !ok {
		return 0, apperrors.InvalidArgument("component %s must be a whole number, got %v", name, raw)
	}
	if v < 0 {
		return 0, apperrors.InvalidArgument("component %s must be non-negative, got %d", name, v)
	}
	return v, nil
}

// relationship accepts either a kind name ("many_to_one") or its numeric code (31).
func relationship(args map[string]any) (models.RelationshipKind, error) {
	raw, ok := args["relationship"]
	if !ok || raw == nil {
		return "", apperrors.InvalidArgument("missing component relationship")
	}
	if s, ok := raw.(string); ok {
		kind := models.RelationshipKind(s)
		if _, known := RelationshipCode(kind); !known {
			return "", apperrors.InvalidArgument("unsupported relationship kind %q", s)
		}
		return kind, nil
	}
	code, ok := jsonutil.FlexibleInt64(raw)
	if !ok {
		return "", apperrors.InvalidArgument("relationship must be a kind name or code, got %v", raw)
	}
	kind, known := RelationshipForCode(code)
	if !known {
		return "", apperrors.InvalidArgument("unsupported relationship code %d", code)
	}
	return kind, nil
}

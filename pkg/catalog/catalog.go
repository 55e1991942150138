// Package catalog answers schema questions about source models: which fields
// a model has and which of them can drive foreign-key dependency discovery.
package catalog

import (
	"context"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
)

// Catalog provides per-model field metadata.
type Catalog interface {
	// GetFields returns the fields of a model. An unknown model yields an
	// empty list and no error; it simply has no FK fields.
	GetFields(ctx context.Context, modelName string) ([]models.FieldDescriptor, error)
	// GetModel returns apperrors.ErrUnknownModel when the model is not known.
	GetModel(ctx context.Context, modelName string) (*models.ModelDescriptor, error)
	// ListModels returns every known model ordered by name.
	ListModels(ctx context.Context) ([]models.ModelDescriptor, error)
}

// FKFields returns the subset of fields usable for dependency discovery:
// relational, with a resolved target and stored in the source system.
func FKFields(fields []models.FieldDescriptor) []models.FieldDescriptor {
	var out []models.FieldDescriptor
	for _, f := range fields {
		if f.IsFKUsable() {
			out = append(out, f)
		}
	}
	return out
}

// GetFKFields is GetFields followed by FKFields.
func GetFKFields(ctx context.Context, c Catalog, modelName string) ([]models.FieldDescriptor, error) {
	fields, err := c.GetFields(ctx, modelName)
	if err != nil {
		return nil, err
	}
	return FKFields(fields), nil
}

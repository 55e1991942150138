package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/pointid"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/vectorstore"
)

// StoreCatalog reads field descriptors from SchemaPoints in the vector store.
type StoreCatalog struct {
	store    vectorstore.Store
	pageSize int
	logger   *zap.Logger
}

var _ Catalog = (*StoreCatalog)(nil)

// NewStoreCatalog creates a catalog backed by stored SchemaPoints.
func NewStoreCatalog(store vectorstore.Store, logger *zap.Logger) *StoreCatalog {
	return &StoreCatalog{
		store:    store,
		pageSize: 256,
		logger:   logger.Named("store-catalog"),
	}
}

func (c *StoreCatalog) GetFields(ctx context.Context, modelName string) ([]models.FieldDescriptor, error) {
	filter := vectorstore.Eq(models.PayloadPointType, models.PointTypeSchema).And(models.PayloadModelName, modelName)
	points, err := vectorstore.ScrollAll(ctx, c.store, filter, c.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields for %s: %w", modelName, err)
	}

	fields := make([]models.FieldDescriptor, 0, len(points))
	for _, p := range points {
		f, ok := fieldFromPayload(p.Payload)
		if !ok {
			c.logger.Warn("Skipping malformed schema point", zap.String("id", p.ID))
			continue
		}
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].FieldID < fields[j].FieldID })
	return fields, nil
}

func (c *StoreCatalog) GetModel(ctx context.Context, modelName string) (*models.ModelDescriptor, error) {
	filter := vectorstore.Eq(models.PayloadPointType, models.PointTypeSchema).And(models.PayloadModelName, modelName)
	page, err := c.store.ScrollByFilter(ctx, filter, 1, "")
	if err != nil {
		return nil, fmt.Errorf("failed to look up model %s: %w", modelName, err)
	}
	if len(page.Points) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownModel, modelName)
	}
	modelID, _ := jsonutil.FlexibleInt64(page.Points[0].Payload[models.PayloadModelID])
	return &models.ModelDescriptor{ModelID: modelID, ModelName: modelName}, nil
}

func (c *StoreCatalog) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	points, err := vectorstore.ScrollAll(ctx, c.store, vectorstore.Eq(models.PayloadPointType, models.PointTypeSchema), c.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	seen := make(map[string]models.ModelDescriptor)
	for _, p := range points {
		name := jsonutil.FlexibleString(p.Payload[models.PayloadModelName])
		if name == "" {
			continue
		}
		id, _ := jsonutil.FlexibleInt64(p.Payload[models.PayloadModelID])
		seen[name] = models.ModelDescriptor{ModelID: id, ModelName: name}
	}

	out := make([]models.ModelDescriptor, 0, len(seen))
	for _, m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelName < out[j].ModelName })
	return out, nil
}

// SchemaPoint renders a field descriptor as a SchemaPoint.
func SchemaPoint(f models.FieldDescriptor, now time.Time) (vectorstore.Point, error) {
	id, err := pointid.Schema(f.FieldID)
	if err != nil {
		return vectorstore.Point{}, err
	}

	payload := map[string]any{
		models.PayloadPointType:     models.PointTypeSchema,
		models.PayloadModelID:       f.ModelID,
		models.PayloadModelName:     f.ModelName,
		models.PayloadFieldID:       f.FieldID,
		"field_name":                f.FieldName,
		"field_label":               f.FieldLabel,
		"field_type":                string(f.FieldType),
		"stored":                    f.Stored,
		models.PayloadTargetModel:   f.TargetModel,
		models.PayloadTargetModelID: f.TargetModelID,
		models.PayloadSyncedAt:      now.UTC().Format(time.RFC3339),
	}
	if f.TargetModelID > 0 && f.TargetFieldID > 0 {
		ref, err := pointid.SchemaRef(f.TargetModelID, f.TargetFieldID)
		if err != nil {
			return vectorstore.Point{}, err
		}
		payload["target_field_id"] = f.TargetFieldID
		payload["target_schema_ref"] = ref
	}
	return vectorstore.Point{ID: id, Payload: payload}, nil
}

func fieldFromPayload(p map[string]any) (models.FieldDescriptor, bool) {
	fieldID, ok := jsonutil.FlexibleInt64(p[models.PayloadFieldID])
	if !ok {
		return models.FieldDescriptor{}, false
	}
	modelID, _ := jsonutil.FlexibleInt64(p[models.PayloadModelID])
	targetModelID, _ := jsonutil.FlexibleInt64(p[models.PayloadTargetModelID])
	targetFieldID, _ := jsonutil.FlexibleInt64(p["target_field_id"])
	stored, _ := p["stored"].(bool)

	return models.FieldDescriptor{
		FieldID:       fieldID,
		ModelID:       modelID,
		ModelName:     jsonutil.FlexibleString(p[models.PayloadModelName]),
		FieldName:     jsonutil.FlexibleString(p["field_name"]),
		FieldLabel:    jsonutil.FlexibleString(p["field_label"]),
		FieldType:     models.ParseFieldType(jsonutil.FlexibleString(p["field_type"])),
		Stored:        stored,
		TargetModel:   jsonutil.FlexibleString(p[models.PayloadTargetModel]),
		TargetModelID: targetModelID,
		TargetFieldID: targetFieldID,
	}, true
}

package catalog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/vectorstore"
)

// CachedCatalog memoizes GetFields and GetModel per model name until
// Invalidate is called. The model set is small and finite, so the cache is
// unbounded.
type CachedCatalog struct {
	next Catalog

	mu     sync.RWMutex
	fields map[string][]models.FieldDescriptor
	models map[string]models.ModelDescriptor
}

var _ Catalog = (*CachedCatalog)(nil)

// NewCachedCatalog wraps next with a cache.
func NewCachedCatalog(next Catalog) *CachedCatalog {
	c := &CachedCatalog{next: next}
	c.Invalidate()
	return c
}

func (c *CachedCatalog) GetFields(ctx context.Context, modelName string) ([]models.FieldDescriptor, error) {
	c.mu.RLock()
	fields, ok := c.fields[modelName]
	c.mu.RUnlock()
	if ok {
		return fields, nil
	}

	fields, err := c.next.GetFields(ctx, modelName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.fields[modelName] = fields
	c.mu.Unlock()
	return fields, nil
}

func (c *CachedCatalog) GetModel(ctx context.Context, modelName string) (*models.ModelDescriptor, error) {
	c.mu.RLock()
	m, ok := c.models[modelName]
	c.mu.RUnlock()
	if ok {
		return &m, nil
	}

	found, err := c.next.GetModel(ctx, modelName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.models[modelName] = *found
	c.mu.Unlock()
	return found, nil
}

// ListModels is not cached; it is only used by batch passes.
func (c *CachedCatalog) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	return c.next.ListModels(ctx)
}

// Invalidate drops every cached entry.
func (c *CachedCatalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields = make(map[string][]models.FieldDescriptor)
	c.models = make(map[string]models.ModelDescriptor)
}

// Seed writes a SchemaPoint for every field of every model in src. It is how
// a static YAML catalog is published so StoreCatalog readers can see it.
// It returns the number of points written.
func Seed(ctx context.Context, store vectorstore.Store, src Catalog, logger *zap.Logger) (int, error) {
	modelList, err := src.ListModels(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	written := 0
	for _, m := range modelList {
		fields, err := src.GetFields(ctx, m.ModelName)
		if err != nil {
			return written, err
		}
		points := make([]vectorstore.Point, 0, len(fields))
		for _, f := range fields {
			p, err := SchemaPoint(f, now)
			if err != nil {
				return written, err
			}
			points = append(points, p)
		}
		if err := store.UpsertPoints(ctx, points); err != nil {
			return written, err
		}
		written += len(points)
		logger.Debug("Seeded schema points", zap.String("model", m.ModelName), zap.Int("fields", len(points)))
	}

	logger.Info("Seeded catalog", zap.Int("models", len(modelList)), zap.Int("fields", written))
	return written, nil
}

package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/vectorstore"
)

// GraphContextService answers relationship queries from stored
// GraphEdgePoints. It never scans DataPoints.
type GraphContextService interface {
	// GetGraphContext returns the outgoing and incoming relationships of a
	// model. The returned value is shared with the cache and must not be modified.
	GetGraphContext(ctx context.Context, modelName string) (*models.GraphContext, error)
	// ComputeGraphBoost computes the ranking boost of a DataPoint payload,
	// loading the model's graph context when gctx is nil.
	ComputeGraphBoost(ctx context.Context, payload map[string]any, gctx *models.GraphContext, cfg *BoostConfig) (float64, error)
	// ClearGraphCache drops every cached context. Graph builds call it after
	// rewriting edges.
	ClearGraphCache()
}

type graphContextService struct {
	store    vectorstore.Store
	boost    BoostConfig
	pageSize int
	logger   *zap.Logger

	mu         sync.RWMutex
	cache      map[string]*models.GraphContext
	generation uint64
	loads      singleflight.Group
}

// NewGraphContextService creates a graph context engine with its own cache.
func NewGraphContextService(store vectorstore.Store, boost BoostConfig, logger *zap.Logger) GraphContextService {
	return &graphContextService{
		store:    store,
		boost:    boost,
		pageSize: 256,
		logger:   logger.Named("graph-context"),
		cache:    make(map[string]*models.GraphContext),
	}
}

var _ GraphContextService = (*graphContextService)(nil)

func (s *graphContextService) GetGraphContext(ctx context.Context, modelName string) (*models.GraphContext, error) {
	s.mu.RLock()
	cached, ok := s.cache[modelName]
	gen := s.generation
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := s.loads.Do(modelName, func() (any, error) {
		gctx, err := s.load(ctx, modelName)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		// A clear during the load means the edges may have been rebuilt.
		if s.generation == gen {
			s.cache[modelName] = gctx
		}
		s.mu.Unlock()
		return gctx, nil
	})
	if err != nil {
		s.logger.Error("Failed to load graph context",
			zap.String("model", modelName),
			zap.Error(err))
		return nil, err
	}
	return v.(*models.GraphContext), nil
}

func (s *graphContextService) ClearGraphCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*models.GraphContext)
	s.generation++
	s.logger.Debug("Graph context cache cleared")
}

func (s *graphContextService) ComputeGraphBoost(ctx context.Context, payload map[string]any, gctx *models.GraphContext, cfg *BoostConfig) (float64, error) {
	if gctx == nil {
		modelName := jsonutil.FlexibleString(payload[models.PayloadModelName])
		if modelName == "" {
			return 0, nil
		}
		var err error
		gctx, err = s.GetGraphContext(ctx, modelName)
		if err != nil {
			return 0, err
		}
	}
	if cfg == nil {
		cfg = &s.boost
	}
	return ComputeGraphBoost(payload, gctx, *cfg), nil
}

func (s *graphContextService) load(ctx context.Context, modelName string) (*models.GraphContext, error) {
	edges := vectorstore.Eq(models.PayloadPointType, models.PointTypeGraphEdge)

	outgoing, err := vectorstore.ScrollAll(ctx, s.store, edges.And(models.PayloadSourceModel, modelName), s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read outgoing edges of %s: %w", modelName, err)
	}
	incoming, err := vectorstore.ScrollAll(ctx, s.store, edges.And(models.PayloadTargetModel, modelName), s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read incoming edges of %s: %w", modelName, err)
	}

	gctx := &models.GraphContext{
		ModelName: modelName,
		Outgoing:  make([]models.RelationshipInfo, 0, len(outgoing)),
		Incoming:  make([]models.RelationshipInfo, 0, len(incoming)),
	}
	for _, p := range outgoing {
		rel := relationshipFromPayload(p.Payload)
		gctx.Outgoing = append(gctx.Outgoing, rel)
		gctx.TotalEdges += rel.EdgeCount
	}
	for _, p := range incoming {
		rel := relationshipFromPayload(p.Payload)
		gctx.Incoming = append(gctx.Incoming, rel)
		gctx.TotalEdges += rel.EdgeCount
	}

	s.logger.Debug("Loaded graph context",
		zap.String("model", modelName),
		zap.Int("outgoing", len(gctx.Outgoing)),
		zap.Int("incoming", len(gctx.Incoming)))
	return gctx, nil
}

func relationshipFromPayload(p map[string]any) models.RelationshipInfo {
	fieldID, _ := jsonutil.FlexibleInt64(p[models.PayloadFieldID])
	sourceModelID, _ := jsonutil.FlexibleInt64(p[models.PayloadSourceModelID])
	targetModelID, _ := jsonutil.FlexibleInt64(p[models.PayloadTargetModelID])
	edgeCount, _ := jsonutil.FlexibleInt64(p["edge_count"])
	uniqueTargets, _ := jsonutil.FlexibleInt64(p["unique_targets"])
	integrity, ok := jsonutil.FlexibleFloat64(p["integrity_score"])
	if !ok {
		integrity = 1
	}

	return models.RelationshipInfo{
		FieldID:          fieldID,
		FieldName:        jsonutil.FlexibleString(p["field_name"]),
		FieldLabel:       jsonutil.FlexibleString(p["field_label"]),
		SourceModel:      jsonutil.FlexibleString(p[models.PayloadSourceModel]),
		SourceModelID:    sourceModelID,
		TargetModel:      jsonutil.FlexibleString(p[models.PayloadTargetModel]),
		TargetModelID:    targetModelID,
		RelationshipType: models.RelationshipKind(jsonutil.FlexibleString(p["relationship_type"])),
		EdgeCount:        edgeCount,
		UniqueTargets:    uniqueTargets,
		CardinalityClass: models.CardinalityClass(jsonutil.FlexibleString(p["cardinality_class"])),
		IntegrityScore:   integrity,
	}
}

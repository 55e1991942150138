package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/catalog"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/pointid"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/vectorstore"
)

// GraphBuildReport summarizes one graph build.
type GraphBuildReport struct {
	Models       int                  `json:"models"`
	EdgesWritten int                  `json:"edges_written"`
	EdgesDeleted int64                `json:"edges_deleted"`
	Components   []ConnectedComponent `json:"components"`
	Islands      []string             `json:"islands"`
	Duration     time.Duration        `json:"duration"`
}

// GraphBuildService recomputes GraphEdgePoints from stored DataPoints.
type GraphBuildService interface {
	// BuildGraph rebuilds the edges of the named models, or of every catalog
	// model when names is empty. Each model's previous edges are replaced
	// wholesale and the graph context cache is cleared afterwards.
	BuildGraph(ctx context.Context, names []string) (*GraphBuildReport, error)
}

type graphBuildService struct {
	catalog  catalog.Catalog
	store    vectorstore.Store
	status   SyncStatusService
	contexts GraphContextService
	pageSize int
	now      func() time.Time
	logger   *zap.Logger
}

// NewGraphBuildService creates a graph builder.
func NewGraphBuildService(
	cat catalog.Catalog,
	store vectorstore.Store,
	status SyncStatusService,
	contexts GraphContextService,
	logger *zap.Logger,
) GraphBuildService {
	return &graphBuildService{
		catalog:  cat,
		store:    store,
		status:   status,
		contexts: contexts,
		pageSize: 256,
		now:      time.Now,
		logger:   logger.Named("graph-build"),
	}
}

var _ GraphBuildService = (*graphBuildService)(nil)

func (s *graphBuildService) BuildGraph(ctx context.Context, names []string) (*GraphBuildReport, error) {
	started := s.now()

	descs, err := s.resolveModels(ctx, names)
	if err != nil {
		return nil, err
	}

	report := &GraphBuildReport{Models: len(descs)}
	graph := NewModelGraph()
	defer s.contexts.ClearGraphCache()

	for _, desc := range descs {
		graph.AddModel(desc.ModelName)

		edges, err := s.buildModelEdges(ctx, desc)
		if err != nil {
			return nil, err
		}

		deleted, err := s.store.DeleteByFilter(ctx, vectorstore.
			Eq(models.PayloadPointType, models.PointTypeGraphEdge).
			And(models.PayloadSourceModelID, desc.ModelID))
		if err != nil {
			return nil, fmt.Errorf("failed to delete edges of %s: %w", desc.ModelName, err)
		}
		report.EdgesDeleted += deleted

		if len(edges) > 0 {
			if err := s.store.UpsertPoints(ctx, edges); err != nil {
				return nil, fmt.Errorf("failed to write edges of %s: %w", desc.ModelName, err)
			}
		}
		report.EdgesWritten += len(edges)

		for _, e := range edges {
			graph.AddRelationship(desc.ModelName, e.Payload[models.PayloadTargetModel].(string))
		}
	}

	report.Components, report.Islands = graph.FindConnectedComponents()
	report.Duration = s.now().Sub(started)
	LogConnectivity(report.EdgesWritten, report.Components, report.Islands, s.logger)
	s.logger.Info("Graph build complete",
		zap.Int("models", report.Models),
		zap.Int("edges_written", report.EdgesWritten),
		zap.Int64("edges_deleted", report.EdgesDeleted),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *graphBuildService) resolveModels(ctx context.Context, names []string) ([]models.ModelDescriptor, error) {
	if len(names) == 0 {
		all, err := s.catalog.ListModels(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list models: %w", err)
		}
		return all, nil
	}

	descs := make([]models.ModelDescriptor, 0, len(names))
	for _, name := range names {
		desc, err := s.catalog.GetModel(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve model %s: %w", name, err)
		}
		descs = append(descs, *desc)
	}
	return descs, nil
}

// buildModelEdges computes one GraphEdgePoint per FK field of desc that is
// referenced at least once.
func (s *graphBuildService) buildModelEdges(ctx context.Context, desc models.ModelDescriptor) ([]vectorstore.Point, error) {
	fkFields, err := catalog.GetFKFields(ctx, s.catalog, desc.ModelName)
	if err != nil {
		return nil, fmt.Errorf("failed to load FK fields of %s: %w", desc.ModelName, err)
	}
	if len(fkFields) == 0 {
		return nil, nil
	}

	points, err := vectorstore.ScrollAll(ctx, s.store, vectorstore.
		Eq(models.PayloadPointType, models.PointTypeData).
		And(models.PayloadModelID, desc.ModelID), s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s records: %w", desc.ModelName, err)
	}

	records := make([]models.Record, 0, len(points))
	for _, p := range points {
		if r, ok := p.Payload[models.PayloadRecord].(map[string]any); ok {
			records = append(records, r)
		}
	}

	builtAt := s.now().UTC()
	byField := make(map[string]models.FieldDescriptor, len(fkFields))
	for _, f := range fkFields {
		byField[f.FieldName] = f
	}

	var edges []vectorstore.Point
	for _, dep := range ExtractFkDependencies(records, fkFields) {
		field := byField[dep.Field]
		kind, ok := models.RelationshipKindForField(field.FieldType)
		if !ok {
			continue
		}

		status, err := s.status.CheckSyncedFkTargets(ctx, dep.TargetModel, dep.TargetModelID, dep.UniqueIDs)
		if err != nil {
			return nil, err
		}

		unique := int64(len(dep.UniqueIDs))
		orphans := int64(len(status.Missing))
		payload := models.GraphEdgePayload{
			SourceModel:      desc.ModelName,
			SourceModelID:    desc.ModelID,
			TargetModel:      dep.TargetModel,
			TargetModelID:    dep.TargetModelID,
			FieldID:          field.FieldID,
			FieldName:        field.FieldName,
			FieldLabel:       field.FieldLabel,
			RelationshipType: kind,
			EdgeCount:        int64(dep.TotalReferences),
			UniqueTargets:    unique,
			CardinalityClass: ClassifyCardinality(int64(dep.TotalReferences), unique),
			OrphanTargets:    orphans,
			IntegrityScore:   1 - float64(orphans)/float64(unique),
			BuiltAt:          builtAt,
		}

		point, err := graphEdgePoint(payload)
		if err != nil {
			return nil, err
		}
		edges = append(edges, point)
	}

	s.logger.Debug("Computed model edges",
		zap.String("model", desc.ModelName),
		zap.Int("records", len(records)),
		zap.Int("edges", len(edges)))
	return edges, nil
}

// graphEdgePoint addresses an edge by (source, target, relationship, field)
// and flattens its payload.
func graphEdgePoint(e models.GraphEdgePayload) (vectorstore.Point, error) {
	id, err := pointid.Graph(e.SourceModelID, e.TargetModelID, e.RelationshipType, e.FieldID)
	if err != nil {
		return vectorstore.Point{}, fmt.Errorf("failed to address edge %s.%s: %w", e.SourceModel, e.FieldName, err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return vectorstore.Point{}, err
	}
	payload := map[string]any{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return vectorstore.Point{}, err
	}
	payload[models.PayloadPointType] = models.PointTypeGraphEdge

	return vectorstore.Point{ID: id, Payload: payload}, nil
}

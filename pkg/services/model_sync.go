package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/catalog"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/embedding"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/pointid"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/source"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/vectorstore"
)

// ModelSyncer syncs the records of one model into the store. It is the
// primitive the cascade orchestrator drives.
type ModelSyncer interface {
	// SyncModel fetches the records selected by req, writes them as
	// DataPoints and returns the fetched records.
	SyncModel(ctx context.Context, model string, req models.SyncRequest) (*models.SyncResult, error)
}

type modelSyncService struct {
	catalog   catalog.Catalog
	fetcher   source.Fetcher
	store     vectorstore.Store
	embedder  embedding.Embedder
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

// NewModelSyncService creates a ModelSyncer. embedder may be nil, in which
// case DataPoints are written without vectors.
func NewModelSyncService(
	cat catalog.Catalog,
	fetcher source.Fetcher,
	store vectorstore.Store,
	embedder embedding.Embedder,
	batchSize int,
	logger *zap.Logger,
) ModelSyncer {
	if batchSize < 1 {
		batchSize = 100
	}
	return &modelSyncService{
		catalog:   cat,
		fetcher:   fetcher,
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger.Named("model-sync"),
	}
}

var _ ModelSyncer = (*modelSyncService)(nil)

func (s *modelSyncService) SyncModel(ctx context.Context, model string, req models.SyncRequest) (*models.SyncResult, error) {
	desc, err := s.catalog.GetModel(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model %s: %w", model, err)
	}
	fields, err := s.catalog.GetFields(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields of %s: %w", model, err)
	}

	records, err := s.fetch(ctx, model, req, fetchFieldNames(fields))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", model, err)
	}

	points, kept := s.buildPoints(desc, catalog.FKFields(fields), records)
	if err := s.embed(ctx, model, kept, points); err != nil {
		return nil, err
	}

	for start := 0; start < len(points); start += s.batchSize {
		end := min(start+s.batchSize, len(points))
		if err := s.store.UpsertPoints(ctx, points[start:end]); err != nil {
			return nil, fmt.Errorf("failed to write %s points: %w", model, err)
		}
	}

	result := &models.SyncResult{
		RecordsSynced: len(points),
		IDs:           make([]int64, 0, len(kept)),
		Records:       kept,
	}
	for _, r := range kept {
		id, _ := models.RecordID(r)
		result.IDs = append(result.IDs, id)
	}

	s.logger.Info("Model synced",
		zap.String("model", model),
		zap.Int64("model_id", desc.ModelID),
		zap.Int("requested_ids", len(req.IDs)),
		zap.Int("records_synced", result.RecordsSynced))
	return result, nil
}

func (s *modelSyncService) fetch(ctx context.Context, model string, req models.SyncRequest, fields []string) ([]models.Record, error) {
	if len(req.IDs) > 0 {
		return s.fetcher.Read(ctx, model, req.IDs, fields)
	}
	return s.fetcher.SearchRead(ctx, model, req.Domain, fields, 0)
}

// buildPoints turns records into DataPoints. Records without a usable id are
// skipped; the returned records line up with the points.
func (s *modelSyncService) buildPoints(desc *models.ModelDescriptor, fkFields []models.FieldDescriptor, records []models.Record) ([]vectorstore.Point, []models.Record) {
	syncedAt := s.now().UTC().Format(time.RFC3339)
	points := make([]vectorstore.Point, 0, len(records))
	kept := make([]models.Record, 0, len(records))

	for _, record := range records {
		recordID, ok := models.RecordID(record)
		if !ok {
			s.logger.Warn("Skipping record without id", zap.String("model", desc.ModelName))
			continue
		}
		id, err := pointid.Data(desc.ModelID, recordID)
		if err != nil {
			s.logger.Warn("Skipping record outside the identifier range",
				zap.String("model", desc.ModelName),
				zap.Int64("record_id", recordID),
				zap.Error(err))
			continue
		}

		points = append(points, vectorstore.Point{
			ID: id,
			Payload: map[string]any{
				models.PayloadPointType: models.PointTypeData,
				models.PayloadModelID:   desc.ModelID,
				models.PayloadModelName: desc.ModelName,
				models.PayloadRecordID:  recordID,
				models.PayloadRecord:    map[string]any(record),
				models.PayloadFKRefs:    FKRefs(record, fkFields),
				models.PayloadSyncedAt:  syncedAt,
			},
		})
		kept = append(kept, record)
	}
	return points, kept
}

func (s *modelSyncService) embed(ctx context.Context, model string, records []models.Record, points []vectorstore.Point) error {
	if s.embedder == nil || len(points) == 0 {
		return nil
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = embedding.RecordText(model, r)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed %s records: %w", model, err)
	}
	if len(vectors) != len(points) {
		return fmt.Errorf("failed to embed %s records: got %d vectors for %d records", model, len(vectors), len(points))
	}
	for i := range points {
		points[i].Vector = vectors[i]
	}
	return nil
}

// fetchFieldNames lists the stored fields to request, always including id.
// An empty catalog entry requests every field.
func fetchFieldNames(fields []models.FieldDescriptor) []string {
	var names []string
	hasID := false
	for _, f := range fields {
		if !f.Stored {
			continue
		}
		names = append(names, f.FieldName)
		if f.FieldName == "id" {
			hasID = true
		}
	}
	if len(names) > 0 && !hasID {
		names = append(names, "id")
	}
	return names
}

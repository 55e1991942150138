package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/pointid"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/vectorstore"
)

// SyncStatusService partitions foreign ids into already-synced and missing.
// Existence is checked by computing each DataPoint identifier directly, so
// no lookup query is needed.
type SyncStatusService interface {
	// CheckSyncedFkTargets keeps the order of ids in both partitions. Empty
	// ids return an empty result without touching the store. Store failures
	// wrap apperrors.ErrDependencyCheckFailed.
	CheckSyncedFkTargets(ctx context.Context, targetModel string, targetModelID int64, ids []int64) (*models.SyncedTargetsResult, error)
	// CheckAllSyncedTargets runs CheckSyncedFkTargets for every dependency,
	// concurrently, and keys the results by field name.
	CheckAllSyncedTargets(ctx context.Context, deps []models.FkDependency) (map[string]*models.SyncedTargetsResult, error)
}

type syncStatusService struct {
	store       vectorstore.Store
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

// NewSyncStatusService creates a resolver. batchSize bounds the ids per
// BatchGetPoints call; concurrency bounds parallel dependency checks.
func NewSyncStatusService(store vectorstore.Store, batchSize, concurrency int, logger *zap.Logger) SyncStatusService {
	if batchSize < 1 {
		batchSize = 500
	}
	if concurrency < 1 {
		concurrency = 4
	}
	return &syncStatusService{
		store:       store,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      logger.Named("sync-status"),
	}
}

var _ SyncStatusService = (*syncStatusService)(nil)

func (s *syncStatusService) CheckSyncedFkTargets(ctx context.Context, targetModel string, targetModelID int64, ids []int64) (*models.SyncedTargetsResult, error) {
	result := &models.SyncedTargetsResult{Synced: []int64{}, Missing: []int64{}}
	if len(ids) == 0 {
		return result, nil
	}

	pointIDs, err := pointid.DataIDs(targetModelID, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrDependencyCheckFailed, targetModel, err)
	}

	found := make(map[string]bool, len(pointIDs))
	for start := 0; start < len(pointIDs); start += s.batchSize {
		end := min(start+s.batchSize, len(pointIDs))
		points, err := s.store.BatchGetPoints(ctx, pointIDs[start:end])
		if err != nil {
			s.logger.Error("Existence check failed",
				zap.String("target_model", targetModel),
				zap.Int("ids", len(ids)),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %s (%d ids): %w", apperrors.ErrDependencyCheckFailed, targetModel, len(ids), err)
		}
		for id := range points {
			found[id] = true
		}
	}

	for i, id := range ids {
		if found[pointIDs[i]] {
			result.Synced = append(result.Synced, id)
		} else {
			result.Missing = append(result.Missing, id)
		}
	}
	return result, nil
}

func (s *syncStatusService) CheckAllSyncedTargets(ctx context.Context, deps []models.FkDependency) (map[string]*models.SyncedTargetsResult, error) {
	results := make([]*models.SyncedTargetsResult, len(deps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, dep := range deps {
		g.Go(func() error {
			r, err := s.CheckSyncedFkTargets(gctx, dep.TargetModel, dep.TargetModelID, dep.UniqueIDs)
			if err != nil {
				return fmt.Errorf("field %s: %w", dep.Field, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*models.SyncedTargetsResult, len(deps))
	for i, dep := range deps {
		out[dep.Field] = results[i]
	}
	return out, nil
}

// FilterMissingDependencies narrows each dependency to its missing ids and
// drops dependencies with nothing missing. A dependency with no status entry
// is kept whole.
func FilterMissingDependencies(deps []models.FkDependency, status map[string]*models.SyncedTargetsResult) []models.FkDependency {
	var out []models.FkDependency
	for _, dep := range deps {
		r, ok := status[dep.Field]
		if !ok || r == nil {
			out = append(out, dep)
			continue
		}
		if len(r.Missing) == 0 {
			continue
		}
		dep.UniqueIDs = append([]int64(nil), r.Missing...)
		out = append(out, dep)
	}
	return out
}

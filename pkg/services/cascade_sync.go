package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/catalog"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/workerpool"
)

// CascadeOptions bound one cascade run. Zero values fall back to the
// service defaults.
type CascadeOptions struct {
	// MaxDepth is the number of FK levels expanded after the primary sync.
	MaxDepth int `json:"max_depth"`
	// ConcurrencyLimit bounds concurrent target-model branches within a level.
	ConcurrencyLimit int `json:"concurrency_limit"`
	// Timeout, when set, derives a deadline from the start of the run.
	Timeout time.Duration `json:"timeout"`
	// Deadline, when set, stops new work from starting after it passes.
	Deadline time.Time `json:"deadline"`
}

// DefaultCascadeOptions returns the standard cascade bounds.
func DefaultCascadeOptions() CascadeOptions {
	return CascadeOptions{MaxDepth: 3, ConcurrencyLimit: 4}
}

// CascadeLevelReport summarizes one dependency level.
type CascadeLevelReport struct {
	Level          int            `json:"level"`
	TargetModels   int            `json:"target_models"`
	CandidateIDs   int            `json:"candidate_ids"`
	AlreadySynced  int            `json:"already_synced"`
	MissingIDs     int            `json:"missing_ids"`
	RecordsSynced  int            `json:"records_synced"`
	FailedBranches int            `json:"failed_branches"`
	SyncedByModel  map[string]int `json:"synced_by_model,omitempty"`
	Duration       time.Duration  `json:"duration"`
}

// CascadeSyncResult is the outcome of a cascade run. It is returned even
// when branches fail or the run is cut short.
type CascadeSyncResult struct {
	Model           string               `json:"model"`
	PrimarySynced   int                  `json:"primary_synced"`
	FkTargetsSynced int                  `json:"fk_targets_synced"`
	TotalSynced     int                  `json:"total_synced"`
	Errors          []string             `json:"errors"`
	Levels          []CascadeLevelReport `json:"levels"`
	// Truncated is set when MaxDepth stopped the run while referenced
	// records were still missing from the store.
	Truncated bool `json:"truncated"`
	// Cancelled is set when the context ended before the run finished.
	Cancelled bool `json:"cancelled"`

	BranchErrors []*apperrors.BranchError `json:"-"`
}

// CascadeSyncService syncs a model's records and, transitively, every record
// they reference that is not in the store yet.
type CascadeSyncService interface {
	CascadeSync(ctx context.Context, model string, domain []any, opts CascadeOptions) (*CascadeSyncResult, error)
}

type cascadeSyncService struct {
	catalog  catalog.Catalog
	status   SyncStatusService
	syncer   ModelSyncer
	defaults CascadeOptions
	logger   *zap.Logger
}

// NewCascadeSyncService creates the orchestrator.
func NewCascadeSyncService(
	cat catalog.Catalog,
	status SyncStatusService,
	syncer ModelSyncer,
	defaults CascadeOptions,
	logger *zap.Logger,
) CascadeSyncService {
	if defaults.MaxDepth < 1 {
		defaults.MaxDepth = DefaultCascadeOptions().MaxDepth
	}
	if defaults.ConcurrencyLimit < 1 {
		defaults.ConcurrencyLimit = DefaultCascadeOptions().ConcurrencyLimit
	}
	return &cascadeSyncService{
		catalog:  cat,
		status:   status,
		syncer:   syncer,
		defaults: defaults,
		logger:   logger.Named("cascade-sync"),
	}
}

var _ CascadeSyncService = (*cascadeSyncService)(nil)

// visitKey identifies one record across models.
type visitKey struct {
	modelID int64
	id      int64
}

// frontierGroup is a batch of freshly synced records of one model whose FK
// values feed the next level.
type frontierGroup struct {
	model   string
	modelID int64
	records []models.Record
}

// branch is the work for one target model within a level.
type branch struct {
	model   string
	modelID int64
	ids     []int64
}

type branchOutcome struct {
	synced  []int64
	missing []int64
	result  *models.SyncResult
	stage   error
}

// CascadeSync runs level 0 (the primary sync of model restricted by domain)
// and then expands breadth-first: each level extracts FK dependencies from
// the previous level's records, keeps the ids not yet visited and not yet in
// the store, and syncs them per target model.
//
// Levels are sequential. Branches within a level run concurrently, bounded
// by ConcurrencyLimit, and fail independently: a failed branch is recorded
// and its records are not expanded. Once ctx ends no new level or branch
// starts, but branches already running finish and their results are kept.
//
// The returned error is non-nil only when the primary sync fails; the
// partial result is returned alongside it.
func (s *cascadeSyncService) CascadeSync(ctx context.Context, model string, domain []any, opts CascadeOptions) (*CascadeSyncResult, error) {
	opts = s.resolveOptions(opts)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if !opts.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, opts.Deadline)
		defer cancel()
	}

	result := &CascadeSyncResult{Model: model, Errors: []string{}, Levels: []CascadeLevelReport{}}
	if err := ctx.Err(); err != nil {
		result.Cancelled = true
		return result, nil
	}

	// In-flight work survives cancellation; ctx only gates new work.
	runCtx := context.WithoutCancel(ctx)

	modelID, err := s.modelID(runCtx, model)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	primary, err := s.syncer.SyncModel(runCtx, model, models.SyncRequest{Domain: domain})
	if err != nil {
		branchErr := &apperrors.BranchError{Level: 0, Stage: apperrors.ErrSyncBranchFailed, Model: model, ModelID: modelID, Err: err}
		s.recordError(result, branchErr)
		return result, branchErr
	}

	result.PrimarySynced = primary.RecordsSynced
	result.TotalSynced = primary.RecordsSynced
	result.Levels = append(result.Levels, CascadeLevelReport{
		Level:         0,
		TargetModels:  1,
		RecordsSynced: primary.RecordsSynced,
		SyncedByModel: map[string]int{model: primary.RecordsSynced},
		Duration:      time.Since(started),
	})
	s.logger.Info("cascade level complete",
		zap.String("model", model),
		zap.Int("level", 0),
		zap.Int("records_synced", primary.RecordsSynced))

	visited := make(map[visitKey]bool)
	for _, id := range primary.IDs {
		visited[visitKey{modelID, id}] = true
	}
	frontier := []frontierGroup{{model: model, modelID: modelID, records: primary.Records}}
	pool := workerpool.New(workerpool.Config{MaxConcurrent: opts.ConcurrencyLimit}, s.logger)

	for level := 1; len(frontier) > 0; level++ {
		branches := s.planLevel(runCtx, result, level, frontier, visited)

		if level > opts.MaxDepth {
			if pending := s.pendingIDs(runCtx, branches); pending > 0 {
				result.Truncated = true
				s.logger.Info("cascade depth limit reached",
					zap.String("model", model),
					zap.Int("max_depth", opts.MaxDepth),
					zap.Int("pending_target_models", len(branches)),
					zap.Int("pending_ids", pending),
					zap.NamedError("reason", apperrors.ErrCascadeDepthExceeded))
			}
			break
		}
		if len(branches) == 0 {
			break
		}
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		frontier = s.runLevel(ctx, runCtx, pool, result, level, branches, visited)
	}

	if ctx.Err() != nil {
		result.Cancelled = true
	}
	return result, nil
}

// planLevel extracts the next level's dependencies from the frontier, merges
// them per target model and drops visited ids. It does no store I/O besides
// catalog lookups.
func (s *cascadeSyncService) planLevel(
	ctx context.Context,
	result *CascadeSyncResult,
	level int,
	frontier []frontierGroup,
	visited map[visitKey]bool,
) []branch {
	byTarget := make(map[int64]*branch)
	var order []int64

	for _, group := range frontier {
		fkFields, err := catalog.GetFKFields(ctx, s.catalog, group.model)
		if err != nil {
			s.recordError(result, &apperrors.BranchError{
				Level: level, Stage: apperrors.ErrDependencyCheckFailed,
				Model: group.model, ModelID: group.modelID, Err: err,
			})
			continue
		}

		for _, dep := range ExtractFkDependencies(group.records, fkFields) {
			b, ok := byTarget[dep.TargetModelID]
			if !ok {
				b = &branch{model: dep.TargetModel, modelID: dep.TargetModelID}
				byTarget[dep.TargetModelID] = b
				order = append(order, dep.TargetModelID)
			}
			for _, id := range dep.UniqueIDs {
				key := visitKey{dep.TargetModelID, id}
				if visited[key] {
					continue
				}
				visited[key] = true
				b.ids = append(b.ids, id)
			}
		}
	}

	var branches []branch
	for _, targetID := range order {
		if b := byTarget[targetID]; len(b.ids) > 0 {
			sort.Slice(b.ids, func(i, j int) bool { return b.ids[i] < b.ids[j] })
			branches = append(branches, *b)
		}
	}
	return branches
}

// runLevel checks and syncs every branch of one level and returns the next
// frontier. Branch results are merged here, on the calling goroutine only.
func (s *cascadeSyncService) runLevel(
	ctx, runCtx context.Context,
	pool *workerpool.Pool,
	result *CascadeSyncResult,
	level int,
	branches []branch,
	visited map[visitKey]bool,
) []frontierGroup {
	started := time.Now()
	report := CascadeLevelReport{Level: level, TargetModels: len(branches), SyncedByModel: map[string]int{}}

	items := make([]workerpool.WorkItem[*branchOutcome], len(branches))
	index := make(map[string]branch, len(branches))
	for i, b := range branches {
		report.CandidateIDs += len(b.ids)
		key := fmt.Sprintf("%d:%s", b.modelID, b.model)
		index[key] = b
		items[i] = workerpool.WorkItem[*branchOutcome]{
			ID: key,
			Execute: func(context.Context) (*branchOutcome, error) {
				return s.runBranch(runCtx, b)
			},
		}
	}

	var next []frontierGroup
	for _, r := range workerpool.Process(ctx, pool, items, nil) {
		b := index[r.ID]
		if r.Err != nil {
			stage := apperrors.ErrSyncBranchFailed
			if r.Result != nil && r.Result.stage != nil {
				stage = r.Result.stage
			}
			report.FailedBranches++
			s.recordError(result, &apperrors.BranchError{
				Level: level, Stage: stage, Model: b.model, ModelID: b.modelID, IDs: b.ids, Err: r.Err,
			})
			if !r.Started {
				// Never checked: let a later path schedule these ids again.
				for _, id := range b.ids {
					delete(visited, visitKey{b.modelID, id})
				}
			}
			continue
		}

		out := r.Result
		report.AlreadySynced += len(out.synced)
		report.MissingIDs += len(out.missing)
		if out.result == nil {
			continue
		}
		report.RecordsSynced += out.result.RecordsSynced
		report.SyncedByModel[b.model] += out.result.RecordsSynced
		result.FkTargetsSynced += out.result.RecordsSynced
		result.TotalSynced += out.result.RecordsSynced
		if len(out.result.Records) > 0 {
			next = append(next, frontierGroup{model: b.model, modelID: b.modelID, records: out.result.Records})
		}
	}

	report.Duration = time.Since(started)
	result.Levels = append(result.Levels, report)
	s.logger.Info("cascade level complete",
		zap.String("model", result.Model),
		zap.Int("level", level),
		zap.Int("target_models", report.TargetModels),
		zap.Int("candidate_ids", report.CandidateIDs),
		zap.Int("missing_ids", report.MissingIDs),
		zap.Int("records_synced", report.RecordsSynced),
		zap.Int("failed_branches", report.FailedBranches),
		zap.Duration("duration", report.Duration))

	sort.Slice(next, func(i, j int) bool { return next[i].model < next[j].model })
	return next
}

// runBranch checks which ids of one target model are missing and syncs them.
func (s *cascadeSyncService) runBranch(ctx context.Context, b branch) (*branchOutcome, error) {
	status, err := s.status.CheckSyncedFkTargets(ctx, b.model, b.modelID, b.ids)
	if err != nil {
		return &branchOutcome{stage: apperrors.ErrDependencyCheckFailed}, err
	}

	out := &branchOutcome{synced: status.Synced, missing: status.Missing}
	if len(status.Missing) == 0 {
		return out, nil
	}

	res, err := s.syncer.SyncModel(ctx, b.model, models.SyncRequest{IDs: status.Missing})
	if err != nil {
		out.stage = apperrors.ErrSyncBranchFailed
		return out, err
	}
	out.result = res
	return out, nil
}

// pendingIDs counts the ids of branches past the depth limit that are not
// in the store. Ids whose status cannot be checked count as pending.
func (s *cascadeSyncService) pendingIDs(ctx context.Context, branches []branch) int {
	pending := 0
	for _, b := range branches {
		status, err := s.status.CheckSyncedFkTargets(ctx, b.model, b.modelID, b.ids)
		if err != nil {
			s.logger.Warn("Failed to check targets past depth limit",
				zap.String("target_model", b.model),
				zap.Int("ids", len(b.ids)),
				zap.Error(err))
			pending += len(b.ids)
			continue
		}
		pending += len(status.Missing)
	}
	return pending
}

func (s *cascadeSyncService) recordError(result *CascadeSyncResult, err *apperrors.BranchError) {
	result.BranchErrors = append(result.BranchErrors, err)
	result.Errors = append(result.Errors, err.Error())
	s.logger.Warn("cascade branch failed",
		zap.String("model", result.Model),
		zap.Int("level", err.Level),
		zap.String("target_model", err.Model),
		zap.Int64("target_model_id", err.ModelID),
		zap.Int("ids", len(err.IDs)),
		zap.Error(err.Err))
}

func (s *cascadeSyncService) modelID(ctx context.Context, model string) (int64, error) {
	m, err := s.catalog.GetModel(ctx, model)
	if err != nil {
		// An unknown model has no FK fields, so nothing past level 0 expands.
		if errors.Is(err, apperrors.ErrUnknownModel) {
			s.logger.Debug("Cascade on model without schema entry", zap.String("model", model))
			return 0, nil
		}
		return 0, err
	}
	return m.ModelID, nil
}

func (s *cascadeSyncService) resolveOptions(opts CascadeOptions) CascadeOptions {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = s.defaults.MaxDepth
	}
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = s.defaults.ConcurrencyLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = s.defaults.Timeout
	}
	return opts
}

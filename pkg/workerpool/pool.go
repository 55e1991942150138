// Package workerpool runs independent units of work with bounded parallelism.
package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Config configures the worker pool.
type Config struct {
	MaxConcurrent int // Maximum concurrent work items (default: 4)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
	}
}

// Pool bounds how many work items run at once. It uses a semaphore to limit
// outstanding calls and collects results as they complete, so a slow item
// never holds back the start of the next one.
type Pool struct {
	config Config
	logger *zap.Logger
}

// New creates a worker pool.
func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &Pool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// MaxConcurrent returns the concurrency limit.
func (p *Pool) MaxConcurrent() int {
	return p.config.MaxConcurrent
}

// WorkItem represents a unit of work to be processed.
type WorkItem[T any] struct {
	ID      string                               // For logging/tracking
	Execute func(ctx context.Context) (T, error) // The work to be executed
}

// WorkResult represents the result of a work item.
type WorkResult[T any] struct {
	ID      string
	Result  T
	Err     error
	Started bool // false when ctx ended before the item got a slot
}

// Process executes all work items with bounded parallelism.
// Returns results in completion order (not submission order).
// Continues processing all items even if some fail.
//
// ctx gates admission only: once ctx is done no further item starts, and
// each unstarted item reports ctx.Err(). Items already running receive ctx
// unchanged; callers that want in-flight work to finish past a deadline
// detach inside Execute.
func Process[T any](
	ctx context.Context,
	pool *Pool,
	items []WorkItem[T],
	onProgress func(completed, total int),
) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]WorkResult[T], 0, len(items))
	resultsChan := make(chan WorkResult[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		go func(item WorkItem[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultsChan <- WorkResult[T]{ID: item.ID, Err: ctx.Err()}
				return
			}
			// select picks randomly when both cases are ready.
			if err := ctx.Err(); err != nil {
				resultsChan <- WorkResult[T]{ID: item.ID, Err: err}
				return
			}

			result, err := item.Execute(ctx)
			if err != nil {
				pool.logger.Debug("work item failed", zap.String("id", item.ID), zap.Error(err))
			}
			resultsChan <- WorkResult[T]{
				ID:      item.ID,
				Result:  result,
				Err:     err,
				Started: true,
			}
		}(item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	completed := 0
	for result := range resultsChan {
		results = append(results, result)
		completed++
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	}

	return results
}

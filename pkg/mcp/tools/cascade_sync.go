package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/services"
)

// maxToolDepth caps the depth a caller may request per run.
const maxToolDepth = 10

// SyncToolDeps contains dependencies for the cascade_sync tool.
type SyncToolDeps struct {
	Cascade services.CascadeSyncService
	Logger  *zap.Logger
}

// RegisterSyncTools registers cascade_sync.
func RegisterSyncTools(s *server.MCPServer, deps *SyncToolDeps) {
	tool := mcp.NewTool(
		"cascade_sync",
		mcp.WithDescription(
			"Syncs records of a model and, level by level, every record they reference through FK fields "+
				"that is not stored yet. Select records with ids or an Odoo domain. "+
				"Branch failures are reported in 'errors' without failing the run. "+
				"Example: cascade_sync(model='sale.order', ids=[42], max_depth=2)",
		),
		mcp.WithString(
			"model",
			mcp.Required(),
			mcp.Description("Technical model name of the primary records, e.g. 'sale.order'"),
		),
		mcp.WithArray(
			"ids",
			mcp.Description("Record ids to sync. Either ids or domain is required."),
		),
		mcp.WithArray(
			"domain",
			mcp.Description("Odoo domain selecting the records, e.g. [[\"state\", \"=\", \"sale\"]]"),
		),
		mcp.WithNumber(
			"max_depth",
			mcp.Description(fmt.Sprintf("Optional - FK levels to follow after the primary sync (1-%d, default from configuration)", maxToolDepth)),
		),
		mcp.WithNumber(
			"concurrency_limit",
			mcp.Description("Optional - target models synced concurrently within a level"),
		),
		mcp.WithNumber(
			"timeout_seconds",
			mcp.Description("Optional - stop starting new work after this many seconds; partial results are returned"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		model, err := req.RequireString("model")
		if err != nil {
			return NewErrorResult("invalid_parameters", "parameter 'model' is required"), nil
		}
		model = trimString(model)
		if model == "" {
			return NewErrorResult("invalid_parameters", "parameter 'model' cannot be empty"), nil
		}

		domain, err := selectionDomain(req)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		opts, err := cascadeOptions(req)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		result, err := deps.Cascade.CascadeSync(ctx, model, domain, opts)
		if err != nil {
			if errors.Is(err, apperrors.ErrUnknownModel) {
				return NewErrorResult("unknown_model", fmt.Sprintf("model %q is not in the catalog", model)), nil
			}
			var branchErr *apperrors.BranchError
			if errors.As(err, &branchErr) && result != nil {
				deps.Logger.Warn("cascade_sync primary sync failed",
					zap.String("model", model),
					zap.Error(err))
				return NewErrorResultWithDetails("sync_failed", err.Error(), result), nil
			}
			return nil, fmt.Errorf("cascade sync of %s failed: %w", model, err)
		}
		return jsonResult(result)
	})
}

// selectionDomain turns ids or domain into the domain handed to the fetcher.
func selectionDomain(req mcp.CallToolRequest) ([]any, error) {
	rawIDs, hasIDs := getOptionalArray(req, "ids")
	domain, hasDomain := getOptionalArray(req, "domain")

	switch {
	case hasIDs && hasDomain:
		return nil, fmt.Errorf("pass either 'ids' or 'domain', not both")
	case hasIDs:
		if len(rawIDs) == 0 {
			return nil, fmt.Errorf("parameter 'ids' cannot be empty")
		}
		ids := make([]int64, 0, len(rawIDs))
		for _, raw := range rawIDs {
			id, ok := jsonutil.FlexibleInt64(raw)
			if !ok || id <= 0 {
				return nil, fmt.Errorf("record ids must be positive whole numbers, got %v", raw)
			}
			ids = append(ids, id)
		}
		return []any{[]any{"id", "in", ids}}, nil
	case hasDomain:
		return domain, nil
	default:
		return nil, fmt.Errorf("one of 'ids' or 'domain' is required")
	}
}

func cascadeOptions(req mcp.CallToolRequest) (services.CascadeOptions, error) {
	var opts services.CascadeOptions

	depth, ok, err := getOptionalInt(req, "max_depth")
	if err != nil {
		return opts, err
	}
	if ok {
		if depth < 1 || depth > maxToolDepth {
			return opts, fmt.Errorf("parameter 'max_depth' must be between 1 and %d", maxToolDepth)
		}
		opts.MaxDepth = depth
	}

	limit, ok, err := getOptionalInt(req, "concurrency_limit")
	if err != nil {
		return opts, err
	}
	if ok {
		if limit < 1 {
			return opts, fmt.Errorf("parameter 'concurrency_limit' must be >= 1")
		}
		opts.ConcurrencyLimit = limit
	}

	if secs, ok := getOptionalFloat(req, "timeout_seconds"); ok {
		if secs <= 0 {
			return opts, fmt.Errorf("parameter 'timeout_seconds' must be > 0")
		}
		opts.Timeout = time.Duration(secs * float64(time.Second))
	}
	return opts, nil
}

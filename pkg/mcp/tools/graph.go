package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/pointid"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/services"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/vectorstore"
)

// GraphToolDeps contains dependencies for the graph tools.
type GraphToolDeps struct {
	Store        vectorstore.Store
	GraphContext services.GraphContextService
	GraphBuild   services.GraphBuildService
	Boost        services.BoostConfig
	Logger       *zap.Logger
}

// RegisterGraphTools registers graph_context, graph_boost and graph_build.
func RegisterGraphTools(s *server.MCPServer, deps *GraphToolDeps) {
	registerGraphContextTool(s, deps)
	registerGraphBoostTool(s, deps)
	registerGraphBuildTool(s, deps)
}

type graphContextResult struct {
	*models.GraphContext
	Degree int  `json:"degree"`
	IsHub  bool `json:"is_hub"`
}

func registerGraphContextTool(s *server.MCPServer, deps *GraphToolDeps) {
	tool := mcp.NewTool(
		"graph_context",
		mcp.WithDescription(
			"Returns the outgoing and incoming FK relationships of a model with edge counts, "+
				"cardinality class and integrity score, read from the prebuilt relationship graph. "+
				"Example: graph_context(model='res.partner')",
		),
		mcp.WithString(
			"model",
			mcp.Required(),
			mcp.Description("Technical model name, e.g. 'sale.order'"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
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

		gctx, err := deps.GraphContext.GetGraphContext(ctx, model)
		if err != nil {
			return nil, fmt.Errorf("failed to load graph context of %s: %w", model, err)
		}

		return jsonResult(graphContextResult{
			GraphContext: gctx,
			Degree:       gctx.Degree(),
			IsHub:        services.IsHub(gctx, deps.Boost.HubDegreeThreshold),
		})
	})
}

type graphBoostResult struct {
	PointID     string                 `json:"point_id"`
	ModelName   string                 `json:"model_name"`
	Boost       float64                `json:"boost"`
	Connections models.ConnectionCount `json:"connections"`
	IsHub       bool                   `json:"is_hub"`
}

func registerGraphBoostTool(s *server.MCPServer, deps *GraphToolDeps) {
	tool := mcp.NewTool(
		"graph_boost",
		mcp.WithDescription(
			"Computes the graph ranking boost of a stored record from its FK connections. "+
				"Optional weights override the configured defaults for this call only. "+
				"Example: graph_boost(point_id='00000002-0088-0000-0000-000000000007')",
		),
		mcp.WithString(
			"point_id",
			mcp.Required(),
			mcp.Description("DataPoint identifier of the record"),
		),
		mcp.WithNumber("max_boost", mcp.Description("Optional - upper bound of the boost before the hub multiplier")),
		mcp.WithNumber("outgoing_weight", mcp.Description("Optional - weight of outgoing references")),
		mcp.WithNumber("incoming_weight", mcp.Description("Optional - weight of incoming edges (log scaled)")),
		mcp.WithNumber("hub_degree_threshold", mcp.Description("Optional - relationship degree at which a model counts as a hub")),
		mcp.WithNumber("hub_boost_multiplier", mcp.Description("Optional - multiplier applied to hub models")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("point_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", "parameter 'point_id' is required"), nil
		}
		id = trimString(id)
		if pointid.Classify(id) != pointid.KindData {
			return NewErrorResult("invalid_parameters", fmt.Sprintf("%q is not a DataPoint identifier", id)), nil
		}

		cfg, err := boostOverrides(req, deps.Boost)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		point, err := deps.Store.GetPoint(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			return NewErrorResult("point_not_found", fmt.Sprintf("no point with id %s; sync the record first", id)), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load point %s: %w", id, err)
		}

		modelName, _ := point.Payload[models.PayloadModelName].(string)
		var gctx *models.GraphContext
		if modelName != "" {
			if gctx, err = deps.GraphContext.GetGraphContext(ctx, modelName); err != nil {
				return nil, fmt.Errorf("failed to load graph context of %s: %w", modelName, err)
			}
		}

		boost, err := deps.GraphContext.ComputeGraphBoost(ctx, point.Payload, gctx, &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to compute boost for %s: %w", id, err)
		}

		return jsonResult(graphBoostResult{
			PointID:     id,
			ModelName:   modelName,
			Boost:       boost,
			Connections: services.CountConnections(point.Payload, gctx),
			IsHub:       services.IsHub(gctx, cfg.HubDegreeThreshold),
		})
	})
}

// boostOverrides applies per-call weight overrides on top of base.
func boostOverrides(req mcp.CallToolRequest, base services.BoostConfig) (services.BoostConfig, error) {
	cfg := base
	for key, dst := range map[string]*float64{
		"max_boost":            &cfg.MaxBoost,
		"outgoing_weight":      &cfg.OutgoingWeight,
		"incoming_weight":      &cfg.IncomingWeight,
		"hub_boost_multiplier": &cfg.HubBoostMultiplier,
	} {
		if v, ok := getOptionalFloat(req, key); ok {
			if v < 0 {
				return cfg, fmt.Errorf("parameter '%s' must be >= 0", key)
			}
			*dst = v
		}
	}
	threshold, ok, err := getOptionalInt(req, "hub_degree_threshold")
	if err != nil {
		return cfg, err
	}
	if ok {
		if threshold < 0 {
			return cfg, fmt.Errorf("parameter 'hub_degree_threshold' must be >= 0")
		}
		cfg.HubDegreeThreshold = threshold
	}
	return cfg, nil
}

func registerGraphBuildTool(s *server.MCPServer, deps *GraphToolDeps) {
	tool := mcp.NewTool(
		"graph_build",
		mcp.WithDescription(
			"Recomputes relationship edges from the synced records. Each model's previous edges "+
				"are replaced. Without models, every catalog model is rebuilt. "+
				"Example: graph_build(models=['sale.order', 'res.partner'])",
		),
		mcp.WithArray(
			"models",
			mcp.Description("Optional - technical model names to rebuild"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names := getStringSlice(req, "models")

		report, err := deps.GraphBuild.BuildGraph(ctx, names)
		if err != nil {
			if IsInputError(err) {
				deps.Logger.Debug("graph_build rejected", zap.Strings("models", names), zap.Error(err))
				return NewErrorResult(InputErrorCode(err), err.Error()), nil
			}
			return nil, fmt.Errorf("graph build failed: %w", err)
		}
		return jsonResult(report)
	})
}

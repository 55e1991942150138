package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/pointid"
)

type pointIDResult struct {
	ID         string              `json:"id"`
	Kind       string              `json:"kind"`
	Valid      bool                `json:"valid"`
	Components *pointid.Components `json:"components,omitempty"`
}

// RegisterPointIDTool adds the point_id tool, which builds, parses and
// classifies point identifiers.
func RegisterPointIDTool(s *server.MCPServer, logger *zap.Logger) {
	tool := mcp.NewTool(
		"point_id",
		mcp.WithDescription(
			"Build, parse or classify a point identifier. "+
				"action='build' takes kind ('data', 'schema' or 'graph') and components, e.g. "+
				"point_id(action='build', kind='data', components={model_id: 88, record_id: 7}). "+
				"action='parse' returns the components of an id. "+
				"action='classify' returns the kind of an id, or 'unknown'.",
		),
		mcp.WithString(
			"action",
			mcp.Required(),
			mcp.Description("One of 'build', 'parse', 'classify'"),
		),
		mcp.WithString(
			"id",
			mcp.Description("Identifier to parse or classify"),
		),
		mcp.WithString(
			"kind",
			mcp.Description("Kind to build: 'data', 'schema' or 'graph'"),
		),
		mcp.WithObject(
			"components",
			mcp.Description("Components for build: data {model_id, record_id}; schema {field_id[, target_model_id]}; "+
				"graph {source_model_id, target_model_id, relationship, field_id}"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action, err := req.RequireString("action")
		if err != nil {
			return NewErrorResult("invalid_parameters", "parameter 'action' is required"), nil
		}

		switch trimString(action) {
		case "build":
			kind := pointid.ParseKind(trimString(getOptionalString(req, "kind")))
			components, _ := getOptionalObject(req, "components")
			id, err := pointid.Build(kind, components)
			if err != nil {
				logger.Debug("point_id build rejected", zap.Error(err))
				return NewErrorResult("invalid_parameters", err.Error()), nil
			}
			parsed, _ := pointid.Parse(id)
			return jsonResult(pointIDResult{ID: id, Kind: kind.String(), Valid: true, Components: &parsed})

		case "parse":
			id := trimString(getOptionalString(req, "id"))
			if id == "" {
				return NewErrorResult("invalid_parameters", "parameter 'id' cannot be empty"), nil
			}
			parsed, ok := pointid.Parse(id)
			if !ok {
				return NewErrorResultWithDetails("invalid_identifier",
					fmt.Sprintf("%q is not a valid point identifier", id),
					pointIDResult{ID: id, Kind: pointid.KindUnknown.String()}), nil
			}
			return jsonResult(pointIDResult{ID: id, Kind: parsed.Kind.String(), Valid: true, Components: &parsed})

		case "classify":
			id := trimString(getOptionalString(req, "id"))
			if id == "" {
				return NewErrorResult("invalid_parameters", "parameter 'id' cannot be empty"), nil
			}
			kind := pointid.Classify(id)
			return jsonResult(pointIDResult{ID: id, Kind: kind.String(), Valid: kind != pointid.KindUnknown})

		default:
			return NewErrorResult("invalid_parameters",
				fmt.Sprintf("unknown action %q (want build, parse or classify)", action)), nil
		}
	})
}

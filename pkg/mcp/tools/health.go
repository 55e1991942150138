package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/catalog"
)

type healthResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Models  int    `json:"models"`
	Error   string `json:"error,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and the number of catalog
// models; a catalog that cannot be read reports "degraded".
func RegisterHealthTool(s *server.MCPServer, version string, cat catalog.Catalog) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if cat != nil {
			models, err := cat.ListModels(ctx)
			if err != nil {
				result.Status = "degraded"
				result.Error = err.Error()
			}
			result.Models = len(models)
		}
		return jsonResult(result)
	})
}

package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/catalog"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/mcp/tools"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// ToolDeps bundles what the tool set needs.
type ToolDeps struct {
	Version string
	Catalog catalog.Catalog
	Graph   *tools.GraphToolDeps
	Sync    *tools.SyncToolDeps
}

// RegisterTools registers every fkgraph tool. Graph and sync tools are
// skipped when their dependencies are nil.
func (s *Server) RegisterTools(deps ToolDeps) {
	tools.RegisterHealthTool(s.mcp, deps.Version, deps.Catalog)
	tools.RegisterPointIDTool(s.mcp, s.logger)

	if deps.Graph != nil {
		if deps.Graph.Logger == nil {
			deps.Graph.Logger = s.logger
		}
		tools.RegisterGraphTools(s.mcp, deps.Graph)
	}
	if deps.Sync != nil {
		if deps.Sync.Logger == nil {
			deps.Sync.Logger = s.logger
		}
		tools.RegisterSyncTools(s.mcp, deps.Sync)
	}
	s.logger.Info("Registered MCP tools",
		zap.Bool("graph_tools", deps.Graph != nil),
		zap.Bool("sync_tools", deps.Sync != nil))
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

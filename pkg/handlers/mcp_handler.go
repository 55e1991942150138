package handlers

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/mcp"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/middleware"
)

// MCPHandler handles MCP protocol requests over HTTP.
type MCPHandler struct {
	httpServer *server.StreamableHTTPServer
	logger     *zap.Logger
}

// NewMCPHandler creates a new MCP handler from an MCP server.
func NewMCPHandler(mcpServer *mcp.Server, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{
		httpServer: mcpServer.NewStreamableHTTPServer(),
		logger:     logger,
	}
}

// RegisterRoutes registers the MCP endpoint at /mcp.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux) {
	// Method check runs before the JSON-RPC logger reads the body.
	loggedHandler := middleware.MCPRequestLogger(h.logger)(h.httpServer)
	mux.Handle("/mcp", h.requirePOST(loggedHandler))
}

// requirePOST returns 405 Method Not Allowed for non-POST requests.
// MCP over HTTP Streaming requires POST for JSON-RPC requests.
func (h *MCPHandler) requirePOST(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			if err := ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "MCP requires POST"); err != nil {
				h.logger.Error("Failed to encode error response", zap.Error(err))
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

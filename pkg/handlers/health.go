package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/catalog"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/config"
)

const healthCheckTimeout = 5 * time.Second

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Models  int    `json:"models"`
	Error   string `json:"error,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg     *config.Config
	catalog catalog.Catalog
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. A nil catalog skips the
// readiness check.
func NewHealthHandler(cfg *config.Config, cat catalog.Catalog, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, catalog: cat, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Reads the catalog through the configured store; a failure returns 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok", Backend: h.cfg.VectorStore.Backend}
	status := http.StatusOK

	if h.catalog != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		models, err := h.catalog.ListModels(ctx)
		if err != nil {
			h.logger.Warn("Health check failed", zap.Error(err))
			response.Status = "degraded"
			response.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
		response.Models = len(models)
	}

	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-fkgraph",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

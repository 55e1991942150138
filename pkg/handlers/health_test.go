package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/catalog"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/config"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
)

type failingCatalog struct{}

func (failingCatalog) GetFields(ctx context.Context, modelName string) ([]models.FieldDescriptor, error) {
	return nil, errors.New("connection refused")
}

func (failingCatalog) GetModel(ctx context.Context, modelName string) (*models.ModelDescriptor, error) {
	return nil, errors.New("connection refused")
}

func (failingCatalog) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	return nil, errors.New("connection refused")
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Version: "test-version",
		Env:     "test",
	}
	cfg.VectorStore.Backend = config.BackendMemory
	return cfg
}

func TestHealthHandler_Health_WithoutCatalog(t *testing.T) {
	handler := NewHealthHandler(testConfig(), nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
	if response.Backend != config.BackendMemory {
		t.Errorf("expected backend %q, got %q", config.BackendMemory, response.Backend)
	}
}

func TestHealthHandler_Health_WithCatalog(t *testing.T) {
	cat, err := catalog.ParseYAML([]byte(`
models:
  - model_id: 10
    model_name: sale.order
  - model_id: 20
    model_name: res.partner
`))
	if err != nil {
		t.Fatalf("failed to parse catalog: %v", err)
	}
	handler := NewHealthHandler(testConfig(), cat, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Models != 2 {
		t.Errorf("expected 2 models, got %d", response.Models)
	}
}

func TestHealthHandler_Health_CatalogFailure(t *testing.T) {
	handler := NewHealthHandler(testConfig(), failingCatalog{}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "degraded" {
		t.Errorf("expected status 'degraded', got '%s'", response.Status)
	}
	if response.Error != "connection refused" {
		t.Errorf("expected error to be reported, got %q", response.Error)
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	handler := NewHealthHandler(testConfig(), nil, zap.NewNop())

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Version != "test-version" {
		t.Errorf("expected version 'test-version', got '%s'", response.Version)
	}
	if response.Service != "ekaya-fkgraph" {
		t.Errorf("expected service 'ekaya-fkgraph', got '%s'", response.Service)
	}
	if response.Environment != "test" {
		t.Errorf("expected environment 'test', got '%s'", response.Environment)
	}
	if response.GoVersion == "" {
		t.Error("expected go_version to be set")
	}
}

func TestHealthHandler_RejectsPost(t *testing.T) {
	handler := NewHealthHandler(testConfig(), nil, zap.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

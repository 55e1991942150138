package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/services"
)

func newTestServer() *server.MCPServer {
	return server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
}

// toolResponse is the decoded result of a tools/call request.
type toolResponse struct {
	Text    string
	IsError bool
}

// callTool invokes a tool through the JSON-RPC entry point.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  params,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(context.Background(), request))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))
	if response.Error != nil {
		return toolResponse{Text: response.Error.Message, IsError: true}
	}
	require.NotEmpty(t, response.Result.Content, "tool returned no content: %s", raw)
	return toolResponse{Text: response.Result.Content[0].Text, IsError: response.Result.IsError}
}

// decode unmarshals a tool's JSON text into v.
func decode(t *testing.T, r toolResponse, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(r.Text), v), "response: %s", r.Text)
}

func decodeError(t *testing.T, r toolResponse) ErrorResponse {
	t.Helper()
	require.True(t, r.IsError, "expected an error result, got %s", r.Text)
	var resp ErrorResponse
	decode(t, r, &resp)
	return resp
}

type mockGraphContext struct {
	getFunc   func(ctx context.Context, modelName string) (*models.GraphContext, error)
	boostFunc func(ctx context.Context, payload map[string]any, gctx *models.GraphContext, cfg *services.BoostConfig) (float64, error)
	cleared   int
}

func (m *mockGraphContext) GetGraphContext(ctx context.Context, modelName string) (*models.GraphContext, error) {
	return m.getFunc(ctx, modelName)
}

func (m *mockGraphContext) ComputeGraphBoost(ctx context.Context, payload map[string]any, gctx *models.GraphContext, cfg *services.BoostConfig) (float64, error) {
	return m.boostFunc(ctx, payload, gctx, cfg)
}

func (m *mockGraphContext) ClearGraphCache() { m.cleared++ }

type mockGraphBuild struct {
	buildFunc func(ctx context.Context, names []string) (*services.GraphBuildReport, error)
}

func (m *mockGraphBuild) BuildGraph(ctx context.Context, names []string) (*services.GraphBuildReport, error) {
	return m.buildFunc(ctx, names)
}

type mockCascade struct {
	cascadeFunc func(ctx context.Context, model string, domain []any, opts services.CascadeOptions) (*services.CascadeSyncResult, error)
}

func (m *mockCascade) CascadeSync(ctx context.Context, model string, domain []any, opts services.CascadeOptions) (*services.CascadeSyncResult, error) {
	return m.cascadeFunc(ctx, model, domain, opts)
}

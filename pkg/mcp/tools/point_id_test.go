package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
)

func newPointIDServer() *server.MCPServer {
	s := newTestServer()
	RegisterPointIDTool(s, zap.NewNop())
	return s
}

func TestPointIDTool_Build(t *testing.T) {
	s := newPointIDServer()

	tests := []struct {
		name       string
		kind       string
		components map[string]any
		want       string
	}{
		{"data", "data", map[string]any{"model_id": 88, "record_id": 7}, "00000002-0088-0000-0000-000000000007"},
		{"schema", "schema", map[string]any{"field_id": 9012}, "00000003-0004-0000-0000-000000009012"},
		{"schema reference", "schema", map[string]any{"field_id": 12, "target_model_id": 20}, "00000003-0020-0000-0000-000000000012"},
		{"graph by name", "graph", map[string]any{"source_model_id": 10, "target_model_id": 20, "relationship": "many_to_one", "field_id": 101}, "00000001-0010-0020-0031-000000000101"},
		{"graph by code", "graph", map[string]any{"source_model_id": 10, "target_model_id": 60, "relationship": 41, "field_id": 104}, "00000001-0010-0060-0041-000000000104"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := callTool(t, s, "point_id", map[string]any{"action": "build", "kind": tt.kind, "components": tt.components})
			require.False(t, r.IsError, r.Text)

			var got pointIDResult
			decode(t, r, &got)
			assert.Equal(t, tt.want, got.ID)
			assert.True(t, got.Valid)
			require.NotNil(t, got.Components)
		})
	}
}

func TestPointIDTool_BuildRejectsInvalidComponents(t *testing.T) {
	s := newPointIDServer()

	tests := []struct {
		name       string
		kind       string
		components map[string]any
	}{
		{"model id out of range", "data", map[string]any{"model_id": 10000, "record_id": 1}},
		{"missing record id", "data", map[string]any{"model_id": 1}},
		{"fractional", "data", map[string]any{"model_id": 1.5, "record_id": 1}},
		{"negative", "schema", map[string]any{"field_id": -1}},
		{"unknown relationship", "graph", map[string]any{"source_model_id": 1, "target_model_id": 2, "relationship": "sideways", "field_id": 3}},
		{"unknown kind", "vertex", map[string]any{"model_id": 1, "record_id": 1}},
		{"no components", "data", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{"action": "build", "kind": tt.kind}
			if tt.components != nil {
				args["components"] = tt.components
			}
			resp := decodeError(t, callTool(t, s, "point_id", args))
			assert.Equal(t, "invalid_parameters", resp.Code)
			assert.Contains(t, resp.Message, "invalid argument")
		})
	}
}

func TestPointIDTool_Parse(t *testing.T) {
	s := newPointIDServer()

	r := callTool(t, s, "point_id", map[string]any{"action": "parse", "id": "00000001-0010-0020-0031-000000000101"})
	require.False(t, r.IsError, r.Text)

	var got pointIDResult
	decode(t, r, &got)
	assert.Equal(t, "graph", got.Kind)
	require.NotNil(t, got.Components)
	assert.Equal(t, int64(10), got.Components.SourceModelID)
	assert.Equal(t, int64(20), got.Components.TargetModelID)
	assert.Equal(t, models.RelationshipManyToOne, got.Components.Relationship)
	assert.Equal(t, int64(101), got.Components.FieldID)

	resp := decodeError(t, callTool(t, s, "point_id", map[string]any{"action": "parse", "id": "00000001-0010-0020-0099-000000000101"}))
	assert.Equal(t, "invalid_identifier", resp.Code, "relationship code 99 is not defined")
}

func TestPointIDTool_Classify(t *testing.T) {
	s := newPointIDServer()

	tests := []struct {
		id   string
		want string
	}{
		{"00000002-0088-0000-0000-000000000007", "data"},
		{"00000003-0004-0000-0000-000000009012", "schema"},
		{"00000001-0010-0020-0031-000000000101", "graph"},
		{"00000002-0088-0001-0000-000000000007", "unknown"},
		{"not-an-id", "unknown"},
	}

	for _, tt := range tests {
		r := callTool(t, s, "point_id", map[string]any{"action": "classify", "id": tt.id})
		require.False(t, r.IsError, r.Text)
		var got pointIDResult
		decode(t, r, &got)
		assert.Equal(t, tt.want, got.Kind, tt.id)
		assert.Equal(t, tt.want != "unknown", got.Valid, tt.id)
	}
}

func TestPointIDTool_InvalidAction(t *testing.T) {
	s := newPointIDServer()

	resp := decodeError(t, callTool(t, s, "point_id", map[string]any{"action": "explode"}))
	assert.Equal(t, "invalid_parameters", resp.Code)

	resp = decodeError(t, callTool(t, s, "point_id", map[string]any{"action": "parse", "id": "  "}))
	assert.Contains(t, resp.Message, "cannot be empty")

	resp = decodeError(t, callTool(t, s, "point_id", map[string]any{}))
	assert.Contains(t, resp.Message, "action")
}

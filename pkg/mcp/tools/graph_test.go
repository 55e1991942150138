package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/pointid"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/services"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/vectorstore"
)

func partnerContext() *models.GraphContext {
	return &models.GraphContext{
		ModelName: "res.partner",
		Outgoing: []models.RelationshipInfo{{
			FieldName: "country_id", SourceModel: "res.partner", TargetModel: "res.country",
			RelationshipType: models.RelationshipManyToOne, EdgeCount: 9, CardinalityClass: models.CardinalityOneToFew,
		}},
		Incoming: []models.RelationshipInfo{{
			FieldName: "partner_id", SourceModel: "sale.order", TargetModel: "res.partner",
			RelationshipType: models.RelationshipManyToOne, EdgeCount: 40, CardinalityClass: models.CardinalityOneToMany,
		}},
		TotalEdges: 49,
	}
}

func newGraphServer(deps *GraphToolDeps) *server.MCPServer {
	if deps.Store == nil {
		deps.Store = vectorstore.NewMemoryStore()
	}
	if deps.Boost.MaxBoost == 0 {
		deps.Boost = services.DefaultBoostConfig()
	}
	deps.Logger = zap.NewNop()
	s := newTestServer()
	RegisterGraphTools(s, deps)
	return s
}

func TestGraphContextTool(t *testing.T) {
	var asked string
	s := newGraphServer(&GraphToolDeps{
		GraphContext: &mockGraphContext{getFunc: func(ctx context.Context, modelName string) (*models.GraphContext, error) {
			asked = modelName
			return partnerContext(), nil
		}},
	})

	r := callTool(t, s, "graph_context", map[string]any{"model": " res.partner "})
	require.False(t, r.IsError, r.Text)
	assert.Equal(t, "res.partner", asked)

	var got struct {
		ModelName  string                    `json:"model_name"`
		Outgoing   []models.RelationshipInfo `json:"outgoing"`
		Incoming   []models.RelationshipInfo `json:"incoming"`
		TotalEdges int64                     `json:"total_edges"`
		Degree     int                       `json:"degree"`
		IsHub      bool                      `json:"is_hub"`
	}
	decode(t, r, &got)
	assert.Equal(t, "res.partner", got.ModelName)
	require.Len(t, got.Outgoing, 1)
	assert.Equal(t, "res.country", got.Outgoing[0].TargetModel)
	require.Len(t, got.Incoming, 1)
	assert.Equal(t, int64(40), got.Incoming[0].EdgeCount)
	assert.Equal(t, int64(49), got.TotalEdges)
	assert.Equal(t, 2, got.Degree)
	assert.False(t, got.IsHub)
}

func TestGraphContextTool_Errors(t *testing.T) {
	s := newGraphServer(&GraphToolDeps{
		GraphContext: &mockGraphContext{getFunc: func(ctx context.Context, modelName string) (*models.GraphContext, error) {
			return nil, errors.New("connection refused")
		}},
	})

	resp := decodeError(t, callTool(t, s, "graph_context", map[string]any{"model": "  "}))
	assert.Equal(t, "invalid_parameters", resp.Code)

	r := callTool(t, s, "graph_context", map[string]any{"model": "res.partner"})
	assert.True(t, r.IsError, "store failures are system errors")
	assert.Contains(t, r.Text, "connection refused")
}

func TestGraphBoostTool(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	id := pointid.MustData(20, 7)
	require.NoError(t, store.UpsertPoints(context.Background(), []vectorstore.Point{{
		ID: id,
		Payload: map[string]any{
			models.PayloadPointType: models.PointTypeData,
			models.PayloadModelName: "res.partner",
			models.PayloadFKRefs:    map[string]any{"country_id": pointid.MustData(40, 3)},
		},
	}}))

	var gotCfg *services.BoostConfig
	s := newGraphServer(&GraphToolDeps{
		Store: store,
		GraphContext: &mockGraphContext{
			getFunc: func(ctx context.Context, modelName string) (*models.GraphContext, error) {
				return partnerContext(), nil
			},
			boostFunc: func(ctx context.Context, payload map[string]any, gctx *models.GraphContext, cfg *services.BoostConfig) (float64, error) {
				gotCfg = cfg
				require.NotNil(t, gctx)
				return services.ComputeGraphBoost(payload, gctx, *cfg), nil
			},
		},
	})

	r := callTool(t, s, "graph_boost", map[string]any{"point_id": id, "max_boost": 0.1})
	require.False(t, r.IsError, r.Text)

	var got graphBoostResult
	decode(t, r, &got)
	assert.Equal(t, id, got.PointID)
	assert.Equal(t, "res.partner", got.ModelName)
	assert.Equal(t, 1, got.Connections.Outgoing)
	assert.Equal(t, int64(40), got.Connections.IncomingEdgeCount)
	assert.Greater(t, got.Boost, 0.0)
	assert.LessOrEqual(t, got.Boost, 0.1)

	require.NotNil(t, gotCfg)
	assert.Equal(t, 0.1, gotCfg.MaxBoost, "override applies")
	assert.Equal(t, 0.5, gotCfg.IncomingWeight, "other weights keep their defaults")
}

func TestGraphBoostTool_Errors(t *testing.T) {
	s := newGraphServer(&GraphToolDeps{GraphContext: &mockGraphContext{}})

	tests := []struct {
		name string
		args map[string]any
		code string
	}{
		{"not a data point", map[string]any{"point_id": "00000003-0004-0000-0000-000000009012"}, "invalid_parameters"},
		{"garbage", map[string]any{"point_id": "abc"}, "invalid_parameters"},
		{"negative weight", map[string]any{"point_id": pointid.MustData(20, 7), "outgoing_weight": -1.0}, "invalid_parameters"},
		{"fractional threshold", map[string]any{"point_id": pointid.MustData(20, 7), "hub_degree_threshold": 2.5}, "invalid_parameters"},
		{"not synced", map[string]any{"point_id": pointid.MustData(20, 7)}, "point_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := decodeError(t, callTool(t, s, "graph_boost", tt.args))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestGraphBuildTool(t *testing.T) {
	var gotNames []string
	s := newGraphServer(&GraphToolDeps{
		GraphContext: &mockGraphContext{},
		GraphBuild: &mockGraphBuild{buildFunc: func(ctx context.Context, names []string) (*services.GraphBuildReport, error) {
			gotNames = names
			return &services.GraphBuildReport{
				Models:       2,
				EdgesWritten: 3,
				Components:   []services.ConnectedComponent{{Models: []string{"res.partner", "sale.order"}, Size: 2}},
				Islands:      []string{},
			}, nil
		}},
	})

	r := callTool(t, s, "graph_build", map[string]any{"models": []any{"sale.order", " res.partner ", 7}})
	require.False(t, r.IsError, r.Text)
	assert.Equal(t, []string{"sale.order", "res.partner"}, gotNames)

	var got services.GraphBuildReport
	decode(t, r, &got)
	assert.Equal(t, 3, got.EdgesWritten)
	require.Len(t, got.Components, 1)
}

func TestGraphBuildTool_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"unknown model", fmt.Errorf("failed to resolve model x: %w", apperrors.ErrUnknownModel), "unknown_model"},
		{"store failure", errors.New("store unavailable"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newGraphServer(&GraphToolDeps{
				GraphContext: &mockGraphContext{},
				GraphBuild: &mockGraphBuild{buildFunc: func(ctx context.Context, names []string) (*services.GraphBuildReport, error) {
					return nil, tt.err
				}},
			})

			r := callTool(t, s, "graph_build", nil)
			require.True(t, r.IsError)
			if tt.wantCode == "" {
				assert.Contains(t, r.Text, "store unavailable")
				return
			}
			assert.Equal(t, tt.wantCode, decodeError(t, r).Code)
		})
	}
}

package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/catalog"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/pointid"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/vectorstore"
)

// testSchema is shared by the service tests.
//
//	a <-> b                        two-model cycle
//	sale.order -> res.partner, res.users, model.x, model.y
//	res.users  -> res.partner, res.country
//	res.partner -> res.country
//	model.x    -> model.z
const testSchema = `
models:
  - model_id: 1
    model_name: a
    fields:
      - {field_id: 11, field_name: b_id, field_type: many_to_one, stored: true, target_model: b}
  - model_id: 2
    model_name: b
    fields:
      - {field_id: 21, field_name: a_id, field_type: many_to_one, stored: true, target_model: a}
  - model_id: 10
    model_name: sale.order
    fields:
      - {field_id: 100, field_name: name, field_type: char, stored: true}
      - {field_id: 101, field_name: partner_id, field_type: many_to_one, stored: true, target_model: res.partner}
      - {field_id: 102, field_name: user_id, field_type: many_to_one, stored: true, target_model: res.users}
      - {field_id: 103, field_name: x_id, field_type: many_to_one, stored: true, target_model: model.x}
      - {field_id: 104, field_name: y_ids, field_type: many_to_many, stored: true, target_model: model.y}
      - {field_id: 105, field_name: amount_total, field_type: monetary, stored: false}
  - model_id: 20
    model_name: res.partner
    fields:
      - {field_id: 201, field_name: country_id, field_type: many_to_one, stored: true, target_model: res.country}
  - model_id: 30
    model_name: res.users
    fields:
      - {field_id: 301, field_name: partner_id, field_type: many_to_one, stored: true, target_model: res.partner}
      - {field_id: 302, field_name: country_id, field_type: many_to_one, stored: true, target_model: res.country}
  - model_id: 40
    model_name: res.country
  - model_id: 50
    model_name: model.x
    fields:
      - {field_id: 501, field_name: z_id, field_type: many_to_one, stored: true, target_model: model.z}
  - model_id: 60
    model_name: model.y
  - model_id: 70
    model_name: model.z
`

func newTestCatalog(t *testing.T) *catalog.YAMLCatalog {
	t.Helper()
	c, err := catalog.ParseYAML([]byte(testSchema))
	require.NoError(t, err)
	return c
}

// idDomain builds the [["id", "in", ids]] domain understood by fakeSource.
func idDomain(ids ...int64) []any {
	return []any{[]any{"id", "in", ids}}
}

// fakeSource is an in-memory source system: records by model and id.
type fakeSource struct {
	mu      sync.Mutex
	records map[string]map[int64]models.Record
	calls   []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{records: make(map[string]map[int64]models.Record)}
}

func (f *fakeSource) add(model string, record models.Record) {
	id, _ := models.RecordID(record)
	if f.records[model] == nil {
		f.records[model] = make(map[int64]models.Record)
	}
	f.records[model][id] = record
}

func (f *fakeSource) SearchRead(_ context.Context, model string, domain []any, _ []string, _ int) ([]models.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "search_read "+model)
	f.mu.Unlock()

	if len(domain) == 1 {
		if clause, ok := domain[0].([]any); ok && len(clause) == 3 && clause[0] == "id" {
			return f.lookup(model, clause[2].([]int64)), nil
		}
	}
	var ids []int64
	for id := range f.records[model] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return f.lookup(model, ids), nil
}

func (f *fakeSource) Read(_ context.Context, model string, ids []int64, _ []string) ([]models.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("read %s %v", model, ids))
	f.mu.Unlock()
	return f.lookup(model, ids), nil
}

func (f *fakeSource) lookup(model string, ids []int64) []models.Record {
	out := []models.Record{}
	for _, id := range ids {
		if r, ok := f.records[model][id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// recordingSyncer wraps a ModelSyncer, records every call and can fail or
// intercept chosen models.
type recordingSyncer struct {
	next ModelSyncer

	mu     sync.Mutex
	calls  []syncCall
	fail   map[string]error
	before func(model string, req models.SyncRequest)
}

type syncCall struct {
	Model string
	IDs   []int64
}

func (r *recordingSyncer) SyncModel(ctx context.Context, model string, req models.SyncRequest) (*models.SyncResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, syncCall{Model: model, IDs: append([]int64(nil), req.IDs...)})
	before := r.before
	err := r.fail[model]
	r.mu.Unlock()

	if before != nil {
		before(model, req)
	}
	if err != nil {
		return nil, err
	}
	return r.next.SyncModel(ctx, model, req)
}

func (r *recordingSyncer) callsFor(model string) []syncCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []syncCall
	for _, c := range r.calls {
		if c.Model == model {
			out = append(out, c)
		}
	}
	return out
}

// mockSyncStatus is a SyncStatusService with overridable behavior.
type mockSyncStatus struct {
	checkFunc    func(ctx context.Context, targetModel string, targetModelID int64, ids []int64) (*models.SyncedTargetsResult, error)
	checkAllFunc func(ctx context.Context, deps []models.FkDependency) (map[string]*models.SyncedTargetsResult, error)
}

func (m *mockSyncStatus) CheckSyncedFkTargets(ctx context.Context, targetModel string, targetModelID int64, ids []int64) (*models.SyncedTargetsResult, error) {
	return m.checkFunc(ctx, targetModel, targetModelID, ids)
}

func (m *mockSyncStatus) CheckAllSyncedTargets(ctx context.Context, deps []models.FkDependency) (map[string]*models.SyncedTargetsResult, error) {
	return m.checkAllFunc(ctx, deps)
}

// mockStore overrides selected Store methods and delegates the rest.
type mockStore struct {
	vectorstore.Store
	batchGetFunc func(ctx context.Context, ids []string) (map[string]*vectorstore.Point, error)
	scrollFunc   func(ctx context.Context, filter vectorstore.Filter, limit int, cursor string) (*vectorstore.Page, error)
}

func (m *mockStore) BatchGetPoints(ctx context.Context, ids []string) (map[string]*vectorstore.Point, error) {
	if m.batchGetFunc != nil {
		return m.batchGetFunc(ctx, ids)
	}
	return m.Store.BatchGetPoints(ctx, ids)
}

func (m *mockStore) ScrollByFilter(ctx context.Context, filter vectorstore.Filter, limit int, cursor string) (*vectorstore.Page, error) {
	if m.scrollFunc != nil {
		return m.scrollFunc(ctx, filter, limit, cursor)
	}
	return m.Store.ScrollByFilter(ctx, filter, limit, cursor)
}

// putDataPoint stores a minimal DataPoint for (modelID, recordID).
func putDataPoint(t *testing.T, store vectorstore.Store, modelID int64, modelName string, record models.Record) {
	t.Helper()
	recordID, ok := models.RecordID(record)
	require.True(t, ok)
	err := store.UpsertPoints(context.Background(), []vectorstore.Point{{
		ID: pointid.MustData(modelID, recordID),
		Payload: map[string]any{
			models.PayloadPointType: models.PointTypeData,
			models.PayloadModelID:   modelID,
			models.PayloadModelName: modelName,
			models.PayloadRecordID:  recordID,
			models.PayloadRecord:    map[string]any(record),
		},
	}})
	require.NoError(t, err)
}

// mockModelSyncer is a ModelSyncer backed by a function.
type mockModelSyncer struct {
	syncFunc func(ctx context.Context, model string, req models.SyncRequest) (*models.SyncResult, error)
}

func (m *mockModelSyncer) SyncModel(ctx context.Context, model string, req models.SyncRequest) (*models.SyncResult, error) {
	return m.syncFunc(ctx, model, req)
}

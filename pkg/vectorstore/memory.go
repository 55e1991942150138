package vectorstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps points in a map. It backs tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]Point
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]Point)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) GetPoint(ctx context.Context, id string) (*Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.points[id]
	if !ok {
		return nil, ErrPointNotFound
	}
	return clonePoint(p), nil
}

func (s *MemoryStore) BatchGetPoints(ctx context.Context, ids []string) (map[string]*Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Point, len(ids))
	for _, id := range ids {
		if p, ok := s.points[id]; ok {
			out[id] = clonePoint(p)
		}
	}
	return out, nil
}

func (s *MemoryStore) ScrollByFilter(ctx context.Context, filter Filter, limit int, cursor string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}
	limit = scrollLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.points))
	for id, p := range s.points {
		if id > cursor && filter.Matches(p.Payload) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &Page{}
	for i, id := range ids {
		if i == limit {
			page.NextCursor = ids[i-1]
			break
		}
		page.Points = append(page.Points, *clonePoint(s.points[id]))
	}
	return page, nil
}

func (s *MemoryStore) UpsertPoints(ctx context.Context, points []Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized := make([]Point, 0, len(points))
	for _, p := range points {
		payload, err := normalizePayload(p.Payload)
		if err != nil {
			return err
		}
		normalized = append(normalized, Point{
			ID:      p.ID,
			Vector:  append([]float32(nil), p.Vector...),
			Payload: payload,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range normalized {
		s.points[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) DeleteByFilter(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, p := range s.points {
		if filter.Matches(p.Payload) {
			delete(s.points, id)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored points.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func (s *MemoryStore) Close() error { return nil }

// clonePoint copies the top-level payload map so callers can't mutate
// stored state. Nested values are shared but never modified by the store.
func clonePoint(p Point) *Point {
	payload := make(map[string]any, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = v
	}
	return &Point{
		ID:      p.ID,
		Vector:  append([]float32(nil), p.Vector...),
		Payload: payload,
	}
}

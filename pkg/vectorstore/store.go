// Package vectorstore persists points (id, vector, payload) and exposes the
// small set of operations the graph and sync services need: direct lookups
// by identifier, filtered scrolling and batch writes.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/apperrors"
)

// ErrPointNotFound is returned by GetPoint when no point has the identifier.
var ErrPointNotFound = fmt.Errorf("point %w", apperrors.ErrNotFound)

// DefaultScrollLimit is the page size used when a caller passes limit <= 0.
const DefaultScrollLimit = 100

// Point is one stored entity. Payload values follow JSON semantics: numbers
// read back from a store are float64.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload"`
}

// Match is an equality condition on a top-level payload key.
type Match struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Filter selects points whose payload satisfies every Must condition.
// An empty filter matches all points.
type Filter struct {
	Must []Match `json:"must,omitempty"`
}

// Page is one page of a scroll. NextCursor is empty on the last page.
type Page struct {
	Points     []Point `json:"points"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// Store is the persistence port.
type Store interface {
	// GetPoint returns ErrPointNotFound when id is absent.
	GetPoint(ctx context.Context, id string) (*Point, error)
	// BatchGetPoints returns the found points keyed by id; missing ids are omitted.
	BatchGetPoints(ctx context.Context, ids []string) (map[string]*Point, error)
	// ScrollByFilter returns points ordered by id, starting after cursor.
	ScrollByFilter(ctx context.Context, filter Filter, limit int, cursor string) (*Page, error)
	UpsertPoints(ctx context.Context, points []Point) error
	DeleteByFilter(ctx context.Context, filter Filter) (int64, error)
	Close() error
}

// Eq builds a single-condition filter.
func Eq(key string, value any) Filter {
	return Filter{Must: []Match{{Key: key, Value: value}}}
}

// And returns a copy of f with an extra condition.
func (f Filter) And(key string, value any) Filter {
	must := make([]Match, 0, len(f.Must)+1)
	must = append(must, f.Must...)
	must = append(must, Match{Key: key, Value: value})
	return Filter{Must: must}
}

// ScrollAll drains a scroll and returns every matching point.
func ScrollAll(ctx context.Context, store Store, filter Filter, pageSize int) ([]Point, error) {
	var all []Point
	cursor := ""
	for {
		page, err := store.ScrollByFilter(ctx, filter, pageSize, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Points...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// normalizePayload round-trips a payload through JSON so in-memory values
// compare the same way persisted ones do.
func normalizePayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

func normalizeValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// Matches reports whether a normalized payload satisfies the filter.
func (f Filter) Matches(payload map[string]any) bool {
	for _, m := range f.Must {
		got, ok := payload[m.Key]
		if !ok || !reflect.DeepEqual(got, normalizeValue(m.Value)) {
			return false
		}
	}
	return true
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func (f Filter) validate() error {
	for _, m := range f.Must {
		if !validKey(m.Key) {
			return apperrors.InvalidArgument("invalid filter key %q", m.Key)
		}
	}
	return nil
}

func scrollLimit(limit int) int {
	if limit <= 0 {
		return DefaultScrollLimit
	}
	return limit
}

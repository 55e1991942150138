package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/pointid"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/retry"
)

// PostgresStore keeps points in the fkgraph_points table created by
// database.RunMigrations. Payload filters use jsonb containment so they are
// served by the GIN index on payload.
type PostgresStore struct {
	pool   *pgxpool.Pool
	retry  *retry.Config
	logger *zap.Logger
}

// NewPostgresStore wraps an open pool. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		retry:  retry.DefaultConfig(),
		logger: logger.Named("pg-vectorstore"),
	}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) GetPoint(ctx context.Context, id string) (*Point, error) {
	pid, err := pointid.UUID(id)
	if err != nil {
		return nil, ErrPointNotFound
	}

	query := `SELECT id, vector, payload FROM fkgraph_points WHERE id = $1`

	var p *Point
	err = retry.DoIfRetryable(ctx, s.retry, func() error {
		var scanErr error
		p, scanErr = scanPoint(s.pool.QueryRow(ctx, query, pid))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPointNotFound
		}
		return nil, fmt.Errorf("failed to get point %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) BatchGetPoints(ctx context.Context, ids []string) (map[string]*Point, error) {
	if len(ids) == 0 {
		return map[string]*Point{}, nil
	}

	uuids := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		// Strings that are not point identifiers can't exist in the table.
		if u, err := pointid.UUID(id); err == nil {
			uuids = append(uuids, u)
		}
	}
	out := make(map[string]*Point, len(uuids))
	if len(uuids) == 0 {
		return out, nil
	}

	query := `SELECT id, vector, payload FROM fkgraph_points WHERE id = ANY($1)`

	err := retry.DoIfRetryable(ctx, s.retry, func() error {
		rows, err := s.pool.Query(ctx, query, uuids)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPoint(rows)
			if err != nil {
				return err
			}
			out[p.ID] = p
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to batch get %d points: %w", len(uuids), err)
	}
	return out, nil
}

func (s *PostgresStore) ScrollByFilter(ctx context.Context, filter Filter, limit int, cursor string) (*Page, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	limit = scrollLimit(limit)

	containment, err := filterJSON(filter)
	if err != nil {
		return nil, err
	}

	args := []any{containment, limit + 1}
	var query strings.Builder
	query.WriteString(`SELECT id, vector, payload FROM fkgraph_points WHERE payload @> $1::jsonb`)
	if cursor != "" {
		after, err := uuid.Parse(cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid scroll cursor %q: %w", cursor, err)
		}
		args = append(args, after)
		query.WriteString(` AND id > $3`)
	}
	query.WriteString(` ORDER BY id LIMIT $2`)

	var points []Point
	err = retry.DoIfRetryable(ctx, s.retry, func() error {
		points = points[:0]
		rows, err := s.pool.Query(ctx, query.String(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPoint(rows)
			if err != nil {
				return err
			}
			points = append(points, *p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll points: %w", err)
	}

	page := &Page{Points: points}
	if len(points) > limit {
		page.Points = points[:limit]
		page.NextCursor = points[limit-1].ID
	}
	return page, nil
}

func (s *PostgresStore) UpsertPoints(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	query := `
		INSERT INTO fkgraph_points (id, vector, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET vector = EXCLUDED.vector, payload = EXCLUDED.payload, updated_at = now()`

	batch := &pgx.Batch{}
	for _, p := range points {
		pid, err := pointid.UUID(p.ID)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of %s: %w", p.ID, err)
		}
		batch.Queue(query, pid, nullVector(p.Vector), payload)
	}

	err := retry.DoIfRetryable(ctx, s.retry, func() error {
		return s.pool.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

func (s *PostgresStore) DeleteByFilter(ctx context.Context, filter Filter) (int64, error) {
	if err := filter.validate(); err != nil {
		return 0, err
	}
	containment, err := filterJSON(filter)
	if err != nil {
		return 0, err
	}

	result, err := s.pool.Exec(ctx, `DELETE FROM fkgraph_points WHERE payload @> $1::jsonb`, containment)
	if err != nil {
		return 0, fmt.Errorf("failed to delete points: %w", err)
	}
	s.logger.Debug("Deleted points", zap.Int64("count", result.RowsAffected()))
	return result.RowsAffected(), nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error { return nil }

func scanPoint(row pgx.Row) (*Point, error) {
	var (
		id      uuid.UUID
		vector  []float32
		payload map[string]any
	)
	if err := row.Scan(&id, &vector, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return &Point{ID: id.String(), Vector: vector, Payload: payload}, nil
}

func filterJSON(filter Filter) ([]byte, error) {
	obj := make(map[string]any, len(filter.Must))
	for _, m := range filter.Must {
		obj[m.Key] = m.Value
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}
	return raw, nil
}

func nullVector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return v
}

package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS points (
	id         TEXT PRIMARY KEY,
	point_type TEXT GENERATED ALWAYS AS (json_extract(payload, '$.point_type')) VIRTUAL,
	vector     BLOB,
	payload    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_points_point_type ON points(point_type);
`

// SQLiteStore keeps points in a single SQLite file. Payloads are JSON text
// and filters compile to json_extract comparisons.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger.Named("sqlite-vectorstore")}, nil
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) GetPoint(ctx context.Context, id string) (*Point, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, vector, payload FROM points WHERE id = ?`, id)
	p, err := scanSQLitePoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPointNotFound
		}
		return nil, fmt.Errorf("failed to get point %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) BatchGetPoints(ctx context.Context, ids []string) (map[string]*Point, error) {
	out := make(map[string]*Point, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector, payload FROM points WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch get %d points: %w", len(ids), err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanSQLitePoint(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ScrollByFilter(ctx context.Context, filter Filter, limit int, cursor string) (*Page, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	limit = scrollLimit(limit)

	where, args, err := sqliteWhere(filter)
	if err != nil {
		return nil, err
	}
	if cursor != "" {
		where = append(where, "id > ?")
		args = append(args, cursor)
	}

	query := `SELECT id, vector, payload FROM points`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll points: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		p, err := scanSQLitePoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &Page{Points: points}
	if len(points) > limit {
		page.Points = points[:limit]
		page.NextCursor = points[limit-1].ID
	}
	return page, nil
}

func (s *SQLiteStore) UpsertPoints(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points(id, vector, payload) VALUES(?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET vector = excluded.vector, payload = excluded.payload`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point id must be set")
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, EncodeVector(p.Vector), string(payload)); err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) DeleteByFilter(ctx context.Context, filter Filter) (int64, error) {
	if err := filter.validate(); err != nil {
		return 0, err
	}
	where, args, err := sqliteWhere(filter)
	if err != nil {
		return 0, err
	}
	query := `DELETE FROM points`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Deleted points", zap.Int64("count", n))
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteWhere compiles equality matches. Scalars compare against
// json_extract directly; arrays and objects compare as canonical JSON text.
func sqliteWhere(filter Filter) ([]string, []any, error) {
	where := make([]string, 0, len(filter.Must))
	args := make([]any, 0, len(filter.Must))
	for _, m := range filter.Must {
		path := "$." + m.Key
		switch v := normalizeValue(m.Value).(type) {
		case nil:
			where = append(where, "json_type(payload, ?) = 'null'")
			args = append(args, path)
		case bool:
			where = append(where, "json_extract(payload, ?) = ?")
			args = append(args, path, boolInt(v))
		case float64, string:
			where = append(where, "json_extract(payload, ?) = ?")
			args = append(args, path, v)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to encode filter value for %s: %w", m.Key, err)
			}
			where = append(where, "json(json_extract(payload, ?)) = json(?)")
			args = append(args, path, string(raw))
		}
	}
	return where, args, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanSQLitePoint(row interface{ Scan(dest ...any) error }) (*Point, error) {
	var (
		id      string
		blob    []byte
		payload string
	)
	if err := row.Scan(&id, &blob, &payload); err != nil {
		return nil, err
	}
	vector, err := DecodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("point %s: %w", id, err)
	}
	p := &Point{ID: id, Vector: vector, Payload: map[string]any{}}
	if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
		return nil, fmt.Errorf("point %s: decode payload: %w", id, err)
	}
	return p, nil
}

// EncodeVector packs a vector as little-endian float32 values.
func EncodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

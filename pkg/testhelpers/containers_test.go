//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_MigrationsApplied(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	var exists bool
	err := testDB.DB.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'fkgraph_points')").
		Scan(&exists)
	if err != nil {
		t.Fatalf("failed to query schema: %v", err)
	}
	if !exists {
		t.Error("expected fkgraph_points table to exist")
	}
}

func TestTestDB_ResetPoints(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := context.Background()

	_, err := testDB.DB.Exec(ctx,
		`INSERT INTO fkgraph_points (id, payload) VALUES ('00000002-0001-0000-0000-000000000001', '{"point_type":"data"}')
		 ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		t.Fatalf("failed to insert point: %v", err)
	}

	testDB.ResetPoints(t)

	var count int
	if err := testDB.DB.QueryRow(ctx, "SELECT COUNT(*) FROM fkgraph_points").Scan(&count); err != nil {
		t.Fatalf("failed to count points: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 points after reset, got %d", count)
	}
}

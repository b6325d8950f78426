package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printshop/scheduler/internal/logx"
	"github.com/printshop/scheduler/internal/repository/sqlite"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.db")
	db, err := sqlite.Open(sqlite.DefaultConnectionConfig(path), logx.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_AppliesSchema(t *testing.T) {
	db := openTestDB(t)
	require.NotNil(t, db.Conn())

	var count int
	err := db.Conn().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='production_stage_instances'`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestReset_ClearsCapacityTables(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Conn().ExecContext(ctx, `
		INSERT INTO stage_time_slots (slot_id, stage_id, date, slot_start, slot_end, duration_minutes, job_id, instance_id)
		VALUES ('s1', 'press', '2026-08-03', ?, ?, 60, 'job1', 'inst1')`,
		time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC), time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, db.Reset(ctx))

	var count int
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM stage_time_slots`).Scan(&count))
	require.Equal(t, 0, count)
}

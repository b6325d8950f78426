// Package sqlite is the persistence adapter of spec.md §4.11: a
// mattn/go-sqlite3-backed implementation of every Store/Repository/Writer
// interface the scheduler packages depend on.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/printshop/scheduler/internal/logx"
)

//go:embed schema.sql
var schemaFS embed.FS

// DB wraps a *sql.DB with the scheduler's connection pooling defaults and
// timezone conversion helpers.
type DB struct {
	db       *sql.DB
	dbPath   string
	mu       sync.RWMutex
	timezone *time.Location
	log      logx.Logger
}

// ConnectionConfig configures a new DB.
type ConnectionConfig struct {
	DBPath          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Timezone        string
}

// DefaultConnectionConfig returns pooling defaults tuned for SQLite's
// single-writer/many-reader model.
func DefaultConnectionConfig(dbPath string) *ConnectionConfig {
	return &ConnectionConfig{
		DBPath:          dbPath,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		Timezone:        "Africa/Johannesburg",
	}
}

// Open creates the database directory if needed, opens the connection with
// WAL journaling enabled, and applies schema.sql inside a transaction.
func Open(cfg *ConnectionConfig, log logx.Logger) (*DB, error) {
	if cfg == nil || cfg.DBPath == "" {
		return nil, fmt.Errorf("sqlite: database path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: creating database directory: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn("failed to load database timezone, falling back to UTC", "timezone", cfg.Timezone, "error", err)
		loc = time.UTC
	}

	dsn := cfg.DBPath +
		"?_foreign_keys=on" +
		"&_journal_mode=WAL" +
		"&_synchronous=NORMAL" +
		"&_timeout=5000"

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := &DB{db: sqlDB, dbPath: cfg.DBPath, timezone: loc, log: log}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: connection test failed: %w", err)
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("sqlite: reading embedded schema: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("sqlite: applying schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing schema transaction: %w", err)
	}

	d.log.Info("sqlite schema applied", "path", d.dbPath)
	return nil
}

// Conn exposes the underlying *sql.DB for repository implementations.
func (d *DB) Conn() *sql.DB { return d.db }

// Timezone returns the configured storage timezone.
func (d *DB) Timezone() *time.Location { return d.timezone }

// ToDBTime converts t into the storage timezone, leaving the zero value
// untouched.
func (d *DB) ToDBTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(d.timezone)
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// Reset clears stage_time_slots and stage_capacity_records in one
// transaction, used by BatchRecomputer ahead of a full recalculation.
func (d *DB) Reset(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning reset transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_time_slots; DELETE FROM stage_capacity_records;`); err != nil {
		return fmt.Errorf("sqlite: resetting capacity tables: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing reset transaction: %w", err)
	}
	return nil
}

// Package graphstore models a job's stage-instance dependency DAG in an
// embedded KuzuDB graph, used for canStageStart-style dependency analytics
// that are awkward to express as relational joins: "what is blocking this
// instance", "how deep is the remaining chain", "which stages converge
// into this one".
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/kuzudb/go-kuzu"

	"github.com/printshop/scheduler/internal/logx"
)

// ConnectionConfig configures the embedded graph database.
type ConnectionConfig struct {
	DatabasePath   string
	MaxConnections int
	QueryTimeout   time.Duration
	BufferPoolMB   uint64
}

// DefaultConnectionConfig returns sensible defaults for an embedded,
// single-host deployment.
func DefaultConnectionConfig(path string) ConnectionConfig {
	return ConnectionConfig{
		DatabasePath:   path,
		MaxConnections: 4,
		QueryTimeout:   30 * time.Second,
		BufferPoolMB:   256,
	}
}

// ConnectionManager owns the KuzuDB database handle and hands out pooled
// connections for graph queries.
type ConnectionManager struct {
	config      ConnectionConfig
	database    *kuzu.Database
	connections chan *kuzu.Connection
	log         logx.Logger
}

// Open creates (or attaches to) the embedded graph database and
// pre-populates the connection pool, then ensures the workflow graph
// schema exists.
func Open(cfg ConnectionConfig, log logx.Logger) (*ConnectionManager, error) {
	db, err := kuzu.OpenDatabase(cfg.DatabasePath, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("graphstore: opening database at %s: %w", cfg.DatabasePath, err)
	}

	mgr := &ConnectionManager{
		config:      cfg,
		database:    db,
		connections: make(chan *kuzu.Connection, cfg.MaxConnections),
		log:         log,
	}

	for i := 0; i < cfg.MaxConnections; i++ {
		conn, err := kuzu.NewConnection(db)
		if err != nil {
			mgr.Close()
			return nil, fmt.Errorf("graphstore: creating connection %d: %w", i, err)
		}
		mgr.connections <- conn
	}

	if err := mgr.applySchema(); err != nil {
		mgr.Close()
		return nil, err
	}

	log.Info("graphstore opened", "path", cfg.DatabasePath)
	return mgr, nil
}

func (m *ConnectionManager) acquire(ctx context.Context) (*kuzu.Connection, error) {
	select {
	case conn := <-m.connections:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *ConnectionManager) release(conn *kuzu.Connection) {
	select {
	case m.connections <- conn:
	default:
		conn.Close()
	}
}

// Query runs a parameterized Cypher statement against a pooled connection,
// within the configured query timeout. query should reference params by
// name ($param), the same $param convention the teacher's Kuzu
// repositories use, never by interpolating values into the query text.
func (m *ConnectionManager) Query(ctx context.Context, query string, params map[string]interface{}) (*kuzu.QueryResult, error) {
	conn, err := m.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("graphstore: acquiring connection: %w", err)
	}
	defer m.release(conn)

	ctx, cancel := context.WithTimeout(ctx, m.config.QueryTimeout)
	defer cancel()

	type result struct {
		res *kuzu.QueryResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		stmt, perr := conn.Prepare(query)
		if perr != nil {
			done <- result{nil, fmt.Errorf("preparing statement: %w", perr)}
			return
		}
		res, err := conn.Execute(stmt, params)
		done <- result{res, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("graphstore: query failed: %w", r.err)
		}
		return r.res, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("graphstore: query timed out: %w", ctx.Err())
	}
}

// applySchema creates the node and relationship tables backing the
// dependency DAG, if they do not already exist.
func (m *ConnectionManager) applySchema() error {
	statements := []string{
		`CREATE NODE TABLE IF NOT EXISTS StageInstance (
			instanceId STRING,
			jobId STRING,
			stageId STRING,
			stageOrder INT64,
			partAssignment STRING,
			status STRING,
			PRIMARY KEY (instanceId)
		)`,
		`CREATE REL TABLE IF NOT EXISTS PRECEDES (FROM StageInstance TO StageInstance)`,
		`CREATE REL TABLE IF NOT EXISTS CONVERGES_INTO (FROM StageInstance TO StageInstance)`,
	}
	for _, stmt := range statements {
		if _, err := m.Query(context.Background(), stmt, nil); err != nil {
			return fmt.Errorf("graphstore: applying schema: %w", err)
		}
	}
	return nil
}

// Close releases every pooled connection and the database handle.
func (m *ConnectionManager) Close() error {
	close(m.connections)
	for conn := range m.connections {
		conn.Close()
	}
	if m.database != nil {
		m.database.Close()
	}
	return nil
}

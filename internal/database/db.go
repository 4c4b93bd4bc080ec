// Package database provides the SQLite-backed record store for axdns.
//
// Records are kept in a single table keyed by (name, type, data), where data
// is the uncompressed RDATA. The schema is versioned with golang-migrate and
// embedded in the binary.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/xzax/axdns/internal/config"
)

// DB wraps a SQLite connection pool.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database described by cfg and migrates it to
// the latest schema version.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isMemoryPath(cfg.Path) {
		// Every connection to :memory: is a separate database.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", cfg.Path, err)
	}

	db := &DB{conn: conn, path: cfg.Path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

func dsn(cfg config.DatabaseConfig) string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()),
		"_pragma=foreign_keys(1)",
		"_txlock=immediate",
	}
	if !isMemoryPath(cfg.Path) {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	return "file:" + cfg.Path + "?" + strings.Join(pragmas, "&")
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database location it was opened with.
func (db *DB) Path() string {
	return db.path
}

// Health checks database connectivity.
func (db *DB) Health(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// BeginTx starts a transaction for multi-statement operations.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

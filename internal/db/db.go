package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps pgxpool.Pool for database operations
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates a new DB connection pool
func NewDB(ctx context.Context, url string) (*DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (d *DB) Close() {
	d.pool.Close()
}

// Pool returns the underlying pgxpool.Pool
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rules (
		rid TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner TEXT NOT NULL,
		status TEXT NOT NULL,
		creationtime TEXT NOT NULL,
		lasttriggered TEXT NOT NULL,
		timestriggered BIGINT NOT NULL DEFAULT 0,
		periodic INTEGER NOT NULL DEFAULT 0,
		conditions TEXT NOT NULL,
		actions TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS auth (
		apikey TEXT PRIMARY KEY,
		devicetype TEXT NOT NULL,
		useragent TEXT NOT NULL DEFAULT '',
		createdate TIMESTAMPTZ NOT NULL,
		lastusedate TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// EnsureSchema creates the tables the gateway persists into
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

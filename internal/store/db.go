package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB is the shared Postgres handle behind every repository. A single pool
// serves the API, so it is sized for the redemption hot path: a classroom
// of students scanning within a few seconds, each scan a short transaction.
type DB struct {
	Client *sql.DB
}

// PoolOptions tunes the connection pool. Zero values fall back to defaults
// sized for one section redeeming at once.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 5
	}
	if o.MaxIdleConns > o.MaxOpenConns {
		o.MaxIdleConns = o.MaxOpenConns
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = time.Hour
	}
	return o
}

// NewDB opens a pgx-backed pool and verifies connectivity with a ping.
func NewDB(connString string, opts PoolOptions) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

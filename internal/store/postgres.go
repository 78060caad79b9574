// Package store persists ingestion documents in PostgreSQL.
//
// Each connection profile names a collection, which maps to one table holding
// whole documents as JSONB:
//
//	id          uuid PRIMARY KEY
//	file_name   text
//	ingested_at timestamptz
//	data        jsonb          -- the cleansed rows
//
// Writes go through Writer (bounded, retried inserts). Reads for the
// reporting path go through Reader, which flattens documents into
// warehouse rows.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/celllog/internal/config"
)

// DB is an open connection pool bound to one profile's collection.
type DB struct {
	pool    *pgxpool.Pool
	table   string // sanitized identifier
	profile string
}

// Open connects using a profile and verifies the connection.
func Open(ctx context.Context, name string, p config.Profile, maxConns int) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(p.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect profile %q: %w", name, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping profile %q: %w", name, err)
	}

	slog.Info("connected to store",
		"profile", name,
		"host", p.Host,
		"database", p.AuthSource,
		"collection", p.Collection,
	)

	return &DB{
		pool:    pool,
		table:   tableName(p.Collection),
		profile: name,
	}, nil
}

func tableName(collection string) string {
	return pgx.Identifier{collection}.Sanitize()
}

// EnsureSchema creates the collection table if it does not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          uuid PRIMARY KEY,
			file_name   text NOT NULL,
			ingested_at timestamptz NOT NULL,
			data        jsonb NOT NULL
		)`, db.table))
	if err != nil {
		return fmt.Errorf("create %s: %w", db.table, err)
	}
	return nil
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Writer returns a document writer for this collection.
func (db *DB) Writer(policy RetryPolicy) *Writer {
	return NewWriter(db.pool, db.table, policy)
}

// Reader returns a warehouse reader for this collection.
func (db *DB) Reader() *Reader {
	return NewReader(db.pool, db.table)
}

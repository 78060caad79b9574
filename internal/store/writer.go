package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/celllog/internal/ingest"
	"github.com/JonMunkholm/celllog/internal/logging"
)

// execer is the subset of *pgxpool.Pool used for writes.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Writer inserts documents with bounded, retried attempts.
type Writer struct {
	db     execer
	table  string
	policy RetryPolicy
}

// NewWriter creates a writer for a sanitized table name.
func NewWriter(db execer, table string, policy RetryPolicy) *Writer {
	return &Writer{db: db, table: table, policy: policy}
}

// Insert stores doc. A document id that already exists is not an error, so a
// retried attempt whose first try actually landed does not fail the commit.
func (w *Writer) Insert(ctx context.Context, doc ingest.Document) error {
	rows := doc.Data
	if rows == nil {
		rows = []ingest.Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, file_name, ingested_at, data) VALUES ($1, $2, $3, $4::jsonb) ON CONFLICT (id) DO NOTHING`,
		w.table,
	)
	args := []any{
		pgtype.UUID{Bytes: doc.ID, Valid: true},
		pgtype.Text{String: doc.FileName, Valid: true},
		pgtype.Timestamptz{Time: doc.IngestedAt, Valid: true},
		string(data),
	}

	log := logging.FromContext(ctx)
	attempt := 0
	return w.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		tag, err := w.db.Exec(ctx, query, args...)
		if err != nil {
			log.Warn("insert attempt failed",
				"document_id", doc.ID.String(),
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		if tag.RowsAffected() == 0 {
			log.Debug("document already stored", "document_id", doc.ID.String())
			return nil
		}
		log.Debug("document inserted",
			"document_id", doc.ID.String(),
			"rows", len(rows),
			"bytes", len(data),
		)
		return nil
	})
}

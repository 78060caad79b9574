package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/celllog/internal/logging"
)

// querier is the subset of *pgxpool.Pool used for reads.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Reader serves the reporting path.
type Reader struct {
	db    querier
	table string
}

// NewReader creates a reader for a sanitized table name.
func NewReader(db querier, table string) *Reader {
	return &Reader{db: db, table: table}
}

// Warehouse reads every stored document and returns the flattened rows.
func (r *Reader) Warehouse(ctx context.Context) ([]WarehouseRow, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT data FROM %s ORDER BY ingested_at`, r.table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.table, err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]byte, error) {
		var data []byte
		err := row.Scan(&data)
		return data, err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.table, err)
	}

	out, dropped, err := ProjectWarehouse(docs)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug("warehouse projected",
		"documents", len(docs),
		"rows", len(out),
		"dropped", dropped,
	)
	return out, nil
}

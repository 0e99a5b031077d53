package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Copier is anything that speaks the COPY protocol: a pool or an open tx.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// CopyFrom bulk-loads rows into table using the COPY protocol.
func CopyFrom(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := c.CopyFrom(ctx, identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// TableRows is the full new contents of one table.
type TableRows struct {
	Table   string
	Columns []string
	Rows    [][]any
}

// ReplaceTables swaps the contents of every given table inside a single
// transaction. Readers see either all old rows or all new ones.
func ReplaceTables(ctx context.Context, pool Pool, tables ...TableRows) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var total int64
	for _, t := range tables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+identifier(t.Table).Sanitize()); err != nil {
			return 0, eris.Wrapf(err, "db: replace %s: delete", t.Table)
		}
		n, err := CopyFrom(ctx, tx, t.Table, t.Columns, t.Rows)
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace %s", t.Table)
		}
		total += n
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit")
	}
	return total, nil
}

// identifier splits an optional schema prefix ("analytics.cost") into a
// pgx identifier.
func identifier(table string) pgx.Identifier {
	for i := 0; i < len(table); i++ {
		if table[i] == '.' {
			return pgx.Identifier{table[:i], table[i+1:]}
		}
	}
	return pgx.Identifier{table}
}

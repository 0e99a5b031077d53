package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/costdb/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The DSN ":memory:" yields a private in-memory database.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: empty dsn")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if dsn == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	input      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	summary    TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS standardized_items (
	seq                 INTEGER NOT NULL,
	run_id              TEXT NOT NULL,
	po_id               TEXT NOT NULL,
	item_description    TEXT NOT NULL,
	canonical_item_name TEXT NOT NULL,
	item_code           TEXT NOT NULL,
	category            TEXT NOT NULL,
	confidence_score    REAL NOT NULL,
	attributes          TEXT
);

CREATE TABLE IF NOT EXISTS cost_analytics (
	seq                 INTEGER NOT NULL,
	run_id              TEXT NOT NULL,
	item_code           TEXT NOT NULL,
	canonical_item_name TEXT NOT NULL,
	region              TEXT NOT NULL,
	supplier            TEXT NOT NULL,
	avg_price           REAL NOT NULL,
	median_price        REAL NOT NULL,
	min_price           REAL NOT NULL,
	max_price           REAL NOT NULL,
	price_std           REAL NOT NULL,
	trend_direction     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS anomalies (
	seq            INTEGER NOT NULL,
	run_id         TEXT NOT NULL,
	po_id          TEXT NOT NULL,
	item_code      TEXT NOT NULL,
	unit_price     REAL NOT NULL,
	expected_price REAL NOT NULL,
	anomaly_flag   INTEGER NOT NULL,
	anomaly_reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS embedding_cache (
	model      TEXT NOT NULL,
	text_hash  TEXT NOT NULL,
	vector     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (model, text_hash)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_standardized_items_item_code ON standardized_items(item_code);
CREATE INDEX IF NOT EXISTS idx_cost_analytics_item_code ON cost_analytics(item_code);
CREATE INDEX IF NOT EXISTS idx_anomalies_item_code ON anomalies(item_code);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run input")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(inputJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Input:     input,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, summary, "")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, summary *model.RunSummary, reason string) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, summary, reason)
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, reason string) error {
	summaryJSON, err := marshalNullable(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), summaryJSON, nullString(reason), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, input, status, summary, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	c := &conditions{placeholder: sqlitePlaceholder}
	if filter.Status != "" {
		c.add("status = %s", string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		c.add("created_at >= %s", filter.CreatedAfter.UTC())
	}
	query := `SELECT id, input, status, summary, error, created_at, updated_at FROM runs` +
		c.where() + c.page("created_at DESC", filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ReplaceOutputs(ctx context.Context, runID string, out *model.Outputs) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace outputs")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"standardized_items", "cost_analytics", "anomalies"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", table)
		}
	}

	items, costs, anomalies := outputRows(runID, out)
	for _, batch := range []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"standardized_items", itemTableColumns, items},
		{"cost_analytics", costTableColumns, costs},
		{"anomalies", anomalyTableColumns, anomalies},
	} {
		if err := insertRows(ctx, tx, batch.table, batch.columns, batch.rows); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace outputs")
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+table+" ("+strings.Join(columns, ", ")+") VALUES ("+marks+")")
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}
	return nil
}

func (s *SQLiteStore) ListStandardizedItems(ctx context.Context, filter OutputFilter) ([]model.StandardizedItem, error) {
	c := itemConditions(filter, sqlitePlaceholder)
	query := `SELECT po_id, item_description, canonical_item_name, item_code, category, confidence_score, attributes
		FROM standardized_items` + c.where() + c.page("seq", filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list standardized items")
	}
	defer rows.Close() //nolint:errcheck

	var items []model.StandardizedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan standardized item")
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list standardized items iterate")
}

func (s *SQLiteStore) ListCostAnalytics(ctx context.Context, filter OutputFilter) ([]model.CostAggregate, error) {
	c := costConditions(filter, sqlitePlaceholder)
	query := `SELECT item_code, canonical_item_name, region, supplier, avg_price, median_price,
		min_price, max_price, price_std, trend_direction FROM cost_analytics` +
		c.where() + c.page("seq", filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cost analytics")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CostAggregate
	for rows.Next() {
		a, err := scanCost(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cost aggregate")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list cost analytics iterate")
}

func (s *SQLiteStore) ListAnomalies(ctx context.Context, filter OutputFilter) ([]model.AnomalyRecord, error) {
	c := anomalyConditions(filter, sqlitePlaceholder)
	query := `SELECT po_id, item_code, unit_price, expected_price, anomaly_flag, anomaly_reason
		FROM anomalies` + c.where() + c.page("seq", filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list anomalies")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AnomalyRecord
	for rows.Next() {
		var a model.AnomalyRecord
		if err := rows.Scan(&a.POID, &a.ItemCode, &a.UnitPrice, &a.ExpectedPrice, &a.AnomalyFlag, &a.AnomalyReason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan anomaly")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list anomalies iterate")
}

// sqliteMaxVars stays under SQLITE_MAX_VARIABLE_NUMBER on older builds.
const sqliteMaxVars = 500

func (s *SQLiteStore) GetCachedEmbeddings(ctx context.Context, modelName string, hashes []string) (map[string][]float64, error) {
	found := make(map[string][]float64, len(hashes))
	for start := 0; start < len(hashes); start += sqliteMaxVars {
		end := min(start+sqliteMaxVars, len(hashes))
		chunk := hashes[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, modelName)
		for _, h := range chunk {
			args = append(args, h)
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")

		rows, err := s.db.QueryContext(ctx,
			`SELECT text_hash, vector FROM embedding_cache WHERE model = ? AND text_hash IN (`+marks+`)`,
			args...,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: get cached embeddings")
		}
		for rows.Next() {
			var hash, vecJSON string
			if err := rows.Scan(&hash, &vecJSON); err != nil {
				rows.Close() //nolint:errcheck
				return nil, eris.Wrap(err, "sqlite: scan cached embedding")
			}
			var vec []float64
			if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
				rows.Close() //nolint:errcheck
				return nil, eris.Wrap(err, "sqlite: unmarshal cached embedding")
			}
			found[hash] = vec
		}
		err = rows.Err()
		rows.Close() //nolint:errcheck
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: get cached embeddings iterate")
		}
	}
	return found, nil
}

func (s *SQLiteStore) SetCachedEmbeddings(ctx context.Context, modelName string, vectors map[string][]float64) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin set cached embeddings")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO embedding_cache (model, text_hash, vector, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (model, text_hash) DO UPDATE SET vector = excluded.vector, created_at = excluded.created_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare set cached embeddings")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for hash, vec := range vectors {
		vecJSON, err := json.Marshal(vec)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal embedding")
		}
		if _, err := stmt.ExecContext(ctx, modelName, hash, string(vecJSON), now); err != nil {
			return eris.Wrap(err, "sqlite: set cached embedding")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit cached embeddings")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalNullable(v *model.RunSummary) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

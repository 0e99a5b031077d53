package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/costdb/internal/db"
	"github.com/sells-group/costdb/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on every new connection.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, input, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"finish_run":        `UPDATE runs SET status = $1, summary = $2, error = $3, updated_at = $4 WHERE id = $5`,
	"get_run":           `SELECT id, input, status, summary, error, created_at, updated_at FROM runs WHERE id = $1`,
	"get_embeddings":    `SELECT text_hash, vector FROM embedding_cache WHERE model = $1 AND text_hash = ANY($2)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	summary    JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS standardized_items (
	seq                 INTEGER NOT NULL,
	run_id              TEXT NOT NULL,
	po_id               TEXT NOT NULL,
	item_description    TEXT NOT NULL,
	canonical_item_name TEXT NOT NULL,
	item_code           TEXT NOT NULL,
	category            TEXT NOT NULL,
	confidence_score    DOUBLE PRECISION NOT NULL,
	attributes          JSONB
);

CREATE TABLE IF NOT EXISTS cost_analytics (
	seq                 INTEGER NOT NULL,
	run_id              TEXT NOT NULL,
	item_code           TEXT NOT NULL,
	canonical_item_name TEXT NOT NULL,
	region              TEXT NOT NULL,
	supplier            TEXT NOT NULL,
	avg_price           DOUBLE PRECISION NOT NULL,
	median_price        DOUBLE PRECISION NOT NULL,
	min_price           DOUBLE PRECISION NOT NULL,
	max_price           DOUBLE PRECISION NOT NULL,
	price_std           DOUBLE PRECISION NOT NULL,
	trend_direction     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS anomalies (
	seq            INTEGER NOT NULL,
	run_id         TEXT NOT NULL,
	po_id          TEXT NOT NULL,
	item_code      TEXT NOT NULL,
	unit_price     DOUBLE PRECISION NOT NULL,
	expected_price DOUBLE PRECISION NOT NULL,
	anomaly_flag   BOOLEAN NOT NULL,
	anomaly_reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS embedding_cache (
	model      TEXT NOT NULL,
	text_hash  TEXT NOT NULL,
	vector     DOUBLE PRECISION[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (model, text_hash)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_standardized_items_item_code ON standardized_items(item_code);
CREATE INDEX IF NOT EXISTS idx_cost_analytics_item_code ON cost_analytics(item_code);
CREATE INDEX IF NOT EXISTS idx_anomalies_item_code ON anomalies(item_code);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run input")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, input, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(inputJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Input:     input,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, summary, "")
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, summary *model.RunSummary, reason string) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, summary, reason)
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, reason string) error {
	summaryJSON, err := marshalNullable(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), summaryJSON, nullString(reason), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, input, status, summary, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	c := &conditions{placeholder: postgresPlaceholder}
	if filter.Status != "" {
		c.add("status = %s", string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		c.add("created_at >= %s", filter.CreatedAfter.UTC())
	}
	query := `SELECT id, input, status, summary, error, created_at, updated_at FROM runs` +
		c.where() + c.page("created_at DESC", filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ReplaceOutputs(ctx context.Context, runID string, out *model.Outputs) error {
	items, costs, anomalies := outputRows(runID, out)
	_, err := db.ReplaceTables(ctx, s.pool,
		db.TableRows{Table: "standardized_items", Columns: itemTableColumns, Rows: items},
		db.TableRows{Table: "cost_analytics", Columns: costTableColumns, Rows: costs},
		db.TableRows{Table: "anomalies", Columns: anomalyTableColumns, Rows: anomalies},
	)
	return eris.Wrap(err, "postgres: replace outputs")
}

func (s *PostgresStore) ListStandardizedItems(ctx context.Context, filter OutputFilter) ([]model.StandardizedItem, error) {
	c := itemConditions(filter, postgresPlaceholder)
	query := `SELECT po_id, item_description, canonical_item_name, item_code, category, confidence_score, attributes
		FROM standardized_items` + c.where() + c.page("seq", filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list standardized items")
	}
	defer rows.Close()

	var items []model.StandardizedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan standardized item")
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list standardized items iterate")
}

func (s *PostgresStore) ListCostAnalytics(ctx context.Context, filter OutputFilter) ([]model.CostAggregate, error) {
	c := costConditions(filter, postgresPlaceholder)
	query := `SELECT item_code, canonical_item_name, region, supplier, avg_price, median_price,
		min_price, max_price, price_std, trend_direction FROM cost_analytics` +
		c.where() + c.page("seq", filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cost analytics")
	}
	defer rows.Close()

	var out []model.CostAggregate
	for rows.Next() {
		a, err := scanCost(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan cost aggregate")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list cost analytics iterate")
}

func (s *PostgresStore) ListAnomalies(ctx context.Context, filter OutputFilter) ([]model.AnomalyRecord, error) {
	c := anomalyConditions(filter, postgresPlaceholder)
	query := `SELECT po_id, item_code, unit_price, expected_price, anomaly_flag, anomaly_reason
		FROM anomalies` + c.where() + c.page("seq", filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list anomalies")
	}
	defer rows.Close()

	var out []model.AnomalyRecord
	for rows.Next() {
		var a model.AnomalyRecord
		if err := rows.Scan(&a.POID, &a.ItemCode, &a.UnitPrice, &a.ExpectedPrice, &a.AnomalyFlag, &a.AnomalyReason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan anomaly")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list anomalies iterate")
}

func (s *PostgresStore) GetCachedEmbeddings(ctx context.Context, modelName string, hashes []string) (map[string][]float64, error) {
	found := make(map[string][]float64, len(hashes))
	if len(hashes) == 0 {
		return found, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT text_hash, vector FROM embedding_cache WHERE model = $1 AND text_hash = ANY($2)`,
		modelName, hashes,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached embeddings")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			hash string
			vec  []float64
		)
		if err := rows.Scan(&hash, &vec); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cached embedding")
		}
		found[hash] = vec
	}
	return found, eris.Wrap(rows.Err(), "postgres: get cached embeddings iterate")
}

func (s *PostgresStore) SetCachedEmbeddings(ctx context.Context, modelName string, vectors map[string][]float64) error {
	if len(vectors) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(vectors))
	for hash, vec := range vectors {
		rows = append(rows, []any{modelName, hash, vec, now})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "embedding_cache",
		Columns:      []string{"model", "text_hash", "vector", "created_at"},
		ConflictKeys: []string{"model", "text_hash"},
	}, rows)
	return eris.Wrap(err, "postgres: set cached embeddings")
}

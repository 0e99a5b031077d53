// Package store persists run history, the latest output tables, and the
// embedding cache. SQLite serves local use; PostgreSQL serves shared
// deployments.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/costdb/internal/config"
	"github.com/sells-group/costdb/internal/model"
)

// DefaultSQLitePath is used when the sqlite driver has no database_url.
const DefaultSQLitePath = "costdb.db"

// ErrNotFound is wrapped by lookups that match no row. Test with errors.Is.
var ErrNotFound = eris.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// OutputFilter narrows the output table listings. Empty fields match all.
type OutputFilter struct {
	ItemCode string `json:"item_code,omitempty"`
	Region   string `json:"region,omitempty"`
	Supplier string `json:"supplier,omitempty"`
	// FlaggedOnly restricts anomaly listings to rows with anomaly_flag set.
	FlaggedOnly bool `json:"flagged_only,omitempty"`
	Limit       int  `json:"limit,omitempty"`
	Offset      int  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the cost pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, summary *model.RunSummary, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Outputs. ReplaceOutputs swaps all three tables in one transaction.
	ReplaceOutputs(ctx context.Context, runID string, out *model.Outputs) error
	ListStandardizedItems(ctx context.Context, filter OutputFilter) ([]model.StandardizedItem, error)
	ListCostAnalytics(ctx context.Context, filter OutputFilter) ([]model.CostAggregate, error)
	ListAnomalies(ctx context.Context, filter OutputFilter) ([]model.AnomalyRecord, error)

	// Embedding cache, keyed by model and text hash.
	GetCachedEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float64, error)
	SetCachedEmbeddings(ctx context.Context, model string, vectors map[string][]float64) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the store named by cfg.Driver and migrates it. Driver "none"
// returns a nil Store and no error.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		s, err = NewSQLite(dsn)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

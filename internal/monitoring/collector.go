package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/costdb/internal/model"
	"github.com/sells-group/costdb/internal/store"
)

// MetricsSnapshot summarizes run history over a lookback window.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsActive   int     `json:"runs_active"`
	FailRate     float64 `json:"fail_rate"`

	// Totals over completed runs.
	CleanRows   int     `json:"clean_rows"`
	Flagged     int     `json:"flagged"`
	AnomalyRate float64 `json:"anomaly_rate"`
	DroppedRows int     `json:"dropped_rows"`

	LastError     string    `json:"last_error,omitempty"`
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run-health metrics from the store.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect builds a snapshot of runs created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{LookbackHours: lookbackHours, CollectedAt: now}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var lastFailure time.Time
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			if r.Summary != nil {
				snap.CleanRows += r.Summary.CleanRows
				snap.Flagged += r.Summary.Flagged
				snap.DroppedRows += r.Summary.DroppedRows
			}
		case model.RunStatusFailed:
			snap.RunsFailed++
			if r.UpdatedAt.After(lastFailure) {
				lastFailure = r.UpdatedAt
				snap.LastError = r.Error
			}
		default:
			snap.RunsActive++
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.CleanRows > 0 {
		snap.AnomalyRate = float64(snap.Flagged) / float64(snap.CleanRows)
	}
	return snap, nil
}

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/analytics"
	"github.com/sells-group/costdb/internal/config"
	"github.com/sells-group/costdb/internal/fetcher"
	"github.com/sells-group/costdb/internal/model"
	"github.com/sells-group/costdb/internal/monitoring"
	"github.com/sells-group/costdb/internal/standardize"
	"github.com/sells-group/costdb/internal/store"
	"github.com/sells-group/costdb/internal/table"
)

// Phase names, in execution order.
const (
	PhaseLoad        = "1_load"
	PhaseValidate    = "2_validate"
	PhaseStandardize = "3_standardize"
	PhaseMerge       = "4_merge"
	PhaseAggregate   = "5_aggregate"
	PhaseAnomalies   = "6_anomalies"
	PhaseWrite       = "7_write"
)

// Pipeline runs the full recomputation: load, validate, standardize, merge,
// aggregate, detect anomalies, write.
type Pipeline struct {
	cfg          *config.Config
	store        store.Store
	fetcher      fetcher.Fetcher
	standardizer *standardize.Standardizer
	metrics      *monitoring.Metrics
}

// New creates a Pipeline. st and metrics may be nil; without a store no run
// history or output mirror is kept.
func New(
	cfg *config.Config,
	st store.Store,
	f fetcher.Fetcher,
	std *standardize.Standardizer,
	metrics *monitoring.Metrics,
) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		store:        st,
		fetcher:      f,
		standardizer: std,
		metrics:      metrics,
	}
}

// Result is the outcome of one run.
type Result struct {
	RunID    string
	Outputs  *model.Outputs
	Summary  *model.RunSummary
	Files    []string
	Rejected []analytics.Rejection
}

// Run recomputes every output table from in. Outputs are only written once
// all stages have succeeded, so a failed run leaves the previous outputs in
// place.
func (p *Pipeline) Run(ctx context.Context, in model.RunInput) (*Result, error) {
	log := zap.L().With(zap.String("raw_path", in.RawPath), zap.String("output_dir", in.OutputDir))
	log.Info("pipeline: starting run")

	summary := &model.RunSummary{}
	result := &Result{Summary: summary}

	if p.store != nil {
		run, err := p.store.CreateRun(ctx, in)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		result.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	setStatus := func(status model.RunStatus) {
		if p.store == nil {
			return
		}
		if statusErr := p.store.UpdateRunStatus(ctx, result.RunID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) error {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "pipeline: %s", name)
		}

		start := time.Now()
		phaseResult, fnErr := fn()
		elapsed := time.Since(start)

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{}
		}
		phaseResult.Name = name
		phaseResult.Duration = elapsed.Milliseconds()

		if fnErr != nil {
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", phaseResult.Duration),
				zap.Error(fnErr),
			)
		} else {
			if phaseResult.Status == "" {
				phaseResult.Status = model.PhaseStatusComplete
			}
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.String("status", string(phaseResult.Status)),
				zap.Int("rows", phaseResult.Rows),
				zap.Int64("duration_ms", phaseResult.Duration),
			)
		}

		p.metrics.ObserveStage(name, elapsed, phaseResult.Rows)
		summary.Phases = append(summary.Phases, *phaseResult)
		return fnErr
	}

	fail := func(err error) (*Result, error) {
		p.metrics.RunFinished(string(model.RunStatusFailed), 0, summary.DroppedRows, 0)
		if p.store != nil {
			if failErr := p.store.FailRun(ctx, result.RunID, summary, err.Error()); failErr != nil {
				log.Warn("pipeline: failed to record run failure", zap.Error(failErr))
			}
		}
		return result, err
	}

	// ===== Phase 1: Load =====
	setStatus(model.RunStatusLoading)

	var (
		raw      []model.RawPurchaseOrder
		external []model.StandardizedItem
	)
	err := trackPhase(PhaseLoad, func() (*model.PhaseResult, error) {
		var loadErr error
		raw, loadErr = table.LoadRawPurchaseOrders(ctx, p.fetcher, in.RawPath)
		if loadErr != nil {
			return nil, loadErr
		}
		meta := map[string]any{"source": in.RawPath}
		if in.StandardizedPath != "" {
			external, loadErr = table.LoadStandardizedItems(ctx, p.fetcher, in.StandardizedPath)
			if loadErr != nil {
				return nil, loadErr
			}
			meta["standardized_source"] = in.StandardizedPath
			meta["standardized_rows"] = len(external)
		}
		return &model.PhaseResult{Rows: len(raw), Metadata: meta}, nil
	})
	if err != nil {
		return fail(err)
	}
	summary.RawRows = len(raw)

	// ===== Phase 2: Validate =====
	var valid []model.RawPurchaseOrder
	err = trackPhase(PhaseValidate, func() (*model.PhaseResult, error) {
		if dupErr := analytics.CheckUniqueOrders(raw); dupErr != nil {
			return nil, dupErr
		}
		valid, result.Rejected = analytics.FilterValid(raw, p.cfg.Analytics.DateLayouts)
		return &model.PhaseResult{
			Rows:     len(valid),
			Metadata: map[string]any{"rejected": len(result.Rejected), "reasons": rejectionReasons(result.Rejected)},
		}, nil
	})
	if err != nil {
		return fail(err)
	}
	summary.ValidRows = len(valid)
	summary.DroppedRows = len(raw) - len(valid)
	for _, r := range result.Rejected {
		log.Debug("pipeline: rejected row", zap.String("po_id", r.POID), zap.String("reason", r.Reason))
	}

	// ===== Phase 3: Standardize =====
	setStatus(model.RunStatusStandardizing)

	var items []model.StandardizedItem
	err = trackPhase(PhaseStandardize, func() (*model.PhaseResult, error) {
		if external != nil {
			items = external
			return &model.PhaseResult{
				Status:   model.PhaseStatusSkipped,
				Rows:     len(items),
				Metadata: map[string]any{"reason": "standardized table supplied"},
			}, nil
		}
		res, stdErr := p.standardizer.Standardize(ctx, valid)
		if stdErr != nil {
			return nil, stdErr
		}
		items = res.Items
		return &model.PhaseResult{
			Rows: len(items),
			Metadata: map[string]any{
				"canonical_items":   res.CanonicalItems,
				"reduction_percent": res.ReductionPercent,
			},
		}, nil
	})
	if err != nil {
		return fail(err)
	}

	// ===== Phase 4: Merge =====
	setStatus(model.RunStatusAnalyzing)

	var records []model.CleanRecord
	err = trackPhase(PhaseMerge, func() (*model.PhaseResult, error) {
		var mergeErr error
		records, mergeErr = analytics.CleanAndMerge(valid, items, p.cfg.Analytics.DateLayouts)
		if mergeErr != nil {
			return nil, mergeErr
		}
		if len(records) == 0 {
			return nil, &model.EmptyResultError{Stage: "clean_and_merge"}
		}
		return &model.PhaseResult{Rows: len(records)}, nil
	})
	if err != nil {
		return fail(err)
	}
	summary.CleanRows = len(records)

	// Rejected orders appear in no output table, including an external
	// standardized table that still lists them.
	items = onlyOrders(items, valid)
	summary.CanonicalItems = standardize.CountCanonical(items)
	summary.ReductionPercent = standardize.ReductionPercent(len(items), summary.CanonicalItems)

	// ===== Phase 5: Aggregate =====
	var aggs []model.CostAggregate
	_ = trackPhase(PhaseAggregate, func() (*model.PhaseResult, error) {
		volatile := analytics.VolatileLabel(p.cfg.Analytics.TrendLabels)
		aggs = analytics.LabelTrends(analytics.Aggregate(records), p.cfg.Thresholds.VolatilityThreshold, volatile)
		return &model.PhaseResult{
			Rows:     len(aggs),
			Metadata: map[string]any{"volatile_groups": countTrend(aggs, volatile)},
		}, nil
	})
	summary.Aggregates = len(aggs)

	// ===== Phase 6: Anomalies =====
	var anomalies []model.AnomalyRecord
	_ = trackPhase(PhaseAnomalies, func() (*model.PhaseResult, error) {
		anomalies = analytics.DetectAnomalies(records, p.cfg.Thresholds)
		return &model.PhaseResult{Rows: len(anomalies)}, nil
	})
	summary.Anomalies = len(anomalies)
	summary.Flagged = countFlagged(anomalies)

	// ===== Phase 7: Write =====
	setStatus(model.RunStatusWriting)

	result.Outputs = &model.Outputs{
		StandardizedItems: items,
		CostAnalytics:     aggs,
		Anomalies:         anomalies,
	}
	err = trackPhase(PhaseWrite, func() (*model.PhaseResult, error) {
		files, writeErr := p.writeOutputs(ctx, result.RunID, in.OutputDir, result.Outputs)
		result.Files = files
		if writeErr != nil {
			return nil, writeErr
		}
		return &model.PhaseResult{
			Rows:     len(items) + len(aggs) + len(anomalies),
			Metadata: map[string]any{"files": files, "mirrored": p.store != nil},
		}, nil
	})
	if err != nil {
		return fail(err)
	}

	// Finalize.
	if p.store != nil {
		if saveErr := p.store.CompleteRun(ctx, result.RunID, summary); saveErr != nil {
			log.Warn("pipeline: failed to save run summary", zap.Error(saveErr))
		}
	}
	p.metrics.RunFinished(string(model.RunStatusComplete), summary.Flagged, summary.DroppedRows, summary.CanonicalItems)

	log.Info("pipeline: run complete",
		zap.Int("raw_rows", summary.RawRows),
		zap.Int("dropped_rows", summary.DroppedRows),
		zap.Int("canonical_items", summary.CanonicalItems),
		zap.Float64("reduction_percent", summary.ReductionPercent),
		zap.Int("aggregates", summary.Aggregates),
		zap.Int("flagged", summary.Flagged),
	)

	return result, nil
}

// Standardize loads and validates the raw table, standardizes the valid
// orders and writes only the standardized item table. No run is recorded.
func (p *Pipeline) Standardize(ctx context.Context, in model.RunInput) (*standardize.Result, string, error) {
	raw, err := table.LoadRawPurchaseOrders(ctx, p.fetcher, in.RawPath)
	if err != nil {
		return nil, "", err
	}
	if err := analytics.CheckUniqueOrders(raw); err != nil {
		return nil, "", err
	}
	valid, rejected := analytics.FilterValid(raw, p.cfg.Analytics.DateLayouts)
	if len(rejected) > 0 {
		zap.L().Info("pipeline: rejected invalid rows",
			zap.Int("rejected", len(rejected)),
			zap.Any("reasons", rejectionReasons(rejected)),
		)
	}

	res, err := p.standardizer.Standardize(ctx, valid)
	if err != nil {
		return nil, "", err
	}

	if err := os.MkdirAll(in.OutputDir, 0o755); err != nil {
		return nil, "", eris.Wrapf(err, "pipeline: create output dir %s", in.OutputDir)
	}
	path := filepath.Join(in.OutputDir, table.StandardizedItemsFile)
	if err := table.WriteCSV(path, table.StandardizedItemRows(res.Items)); err != nil {
		return nil, "", err
	}
	return res, path, nil
}

func (p *Pipeline) writeOutputs(ctx context.Context, runID, dir string, out *model.Outputs) ([]string, error) {
	files, err := table.WriteOutputs(dir, out)
	if err != nil {
		return files, err
	}
	if p.cfg.Output.XLSX {
		path := filepath.Join(dir, table.WorkbookFile)
		if err := table.WriteWorkbook(path, out); err != nil {
			return files, err
		}
		files = append(files, path)
	}
	if p.store != nil {
		if err := p.store.ReplaceOutputs(ctx, runID, out); err != nil {
			return files, eris.Wrap(err, "pipeline: mirror outputs")
		}
	}
	return files, nil
}

// onlyOrders keeps the items whose po_id belongs to one of orders.
func onlyOrders(items []model.StandardizedItem, orders []model.RawPurchaseOrder) []model.StandardizedItem {
	ids := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		ids[strings.TrimSpace(o.POID)] = struct{}{}
	}
	out := make([]model.StandardizedItem, 0, len(items))
	for _, it := range items {
		if _, ok := ids[strings.TrimSpace(it.POID)]; ok {
			out = append(out, it)
		}
	}
	return out
}

func rejectionReasons(rejected []analytics.Rejection) map[string]int {
	reasons := make(map[string]int)
	for _, r := range rejected {
		reasons[r.Reason]++
	}
	return reasons
}

func countTrend(aggs []model.CostAggregate, label model.TrendDirection) int {
	n := 0
	for _, a := range aggs {
		if a.TrendDirection == label {
			n++
		}
	}
	return n
}

func countFlagged(anomalies []model.AnomalyRecord) int {
	n := 0
	for _, a := range anomalies {
		if a.AnomalyFlag {
			n++
		}
	}
	return n
}

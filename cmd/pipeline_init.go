package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/embed"
	"github.com/sells-group/costdb/internal/fetcher"
	"github.com/sells-group/costdb/internal/monitoring"
	"github.com/sells-group/costdb/internal/pipeline"
	"github.com/sells-group/costdb/internal/standardize"
	"github.com/sells-group/costdb/internal/store"
	"github.com/sells-group/costdb/internal/taxonomy"
)

// pipelineEnv holds the store, taxonomy and pipeline shared by the run,
// standardize, analyze and serve commands.
type pipelineEnv struct {
	Store    store.Store // nil when store.driver is none
	Taxonomy *taxonomy.Taxonomy
	Fetcher  fetcher.Fetcher
	Metrics  *monitoring.Metrics
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates cfg for mode, opens the store and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string, reg prometheus.Registerer) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	tax, err := taxonomy.Load(cfg.Standardize.TaxonomyPath)
	if err != nil {
		closeStore(st)
		return nil, eris.Wrap(err, "load taxonomy")
	}

	metrics := monitoring.NewMetrics(reg)

	provider, err := embed.New(cfg.Embedding, st, metrics)
	if err != nil {
		closeStore(st)
		return nil, eris.Wrap(err, "init embedding provider")
	}

	std := standardize.New(tax, provider, nil, cfg.Thresholds, cfg.Standardize.Confidence)
	f := fetcher.New(cfg.FTP)

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("embedding", provider.Model()),
		zap.Int("categories", len(tax.Categories)),
	)

	return &pipelineEnv{
		Store:    st,
		Taxonomy: tax,
		Fetcher:  f,
		Metrics:  metrics,
		Pipeline: pipeline.New(cfg, st, f, std, metrics),
	}, nil
}

// openStore opens the configured store for the history commands, which
// need one.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if st == nil {
		return nil, eris.New("store.driver is none; run history needs sqlite or postgres")
	}
	return st, nil
}

func closeStore(st store.Store) {
	if st != nil {
		_ = st.Close()
	}
}

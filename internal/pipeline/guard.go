package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/model"
)

// ErrRunActive is returned when a run is requested while another is still
// in progress.
var ErrRunActive = eris.New("pipeline: a run is already in progress")

// Runner executes one run.
type Runner interface {
	Run(ctx context.Context, in model.RunInput) (*Result, error)
}

// Guard lets at most one run execute at a time. Overlapping requests are
// rejected with ErrRunActive rather than queued.
type Guard struct {
	runner Runner
	active atomic.Bool
	wg     sync.WaitGroup
}

// NewGuard wraps runner.
func NewGuard(runner Runner) *Guard {
	return &Guard{runner: runner}
}

// Active reports whether a run is in progress.
func (g *Guard) Active() bool {
	return g.active.Load()
}

// Run executes a run synchronously.
func (g *Guard) Run(ctx context.Context, in model.RunInput) (*Result, error) {
	if !g.active.CompareAndSwap(false, true) {
		return nil, ErrRunActive
	}
	defer g.active.Store(false)
	return g.runner.Run(ctx, in)
}

// Start executes a run in the background and returns immediately.
func (g *Guard) Start(ctx context.Context, in model.RunInput) error {
	if !g.active.CompareAndSwap(false, true) {
		return ErrRunActive
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.active.Store(false)

		res, err := g.runner.Run(ctx, in)
		if err != nil {
			zap.L().Error("pipeline: background run failed", zap.Error(err))
			return
		}
		zap.L().Info("pipeline: background run complete",
			zap.String("run_id", res.RunID),
			zap.Int("flagged", res.Summary.Flagged),
		)
	}()
	return nil
}

// Wait blocks until background runs have finished.
func (g *Guard) Wait() {
	g.wg.Wait()
}

// NewScheduler returns a cron scheduler that starts a guarded run on every
// tick of spec (standard five-field syntax). Ticks that land on an active
// run are skipped. The caller starts and stops the scheduler.
func NewScheduler(ctx context.Context, spec string, g *Guard, in model.RunInput) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		err := g.Start(ctx, in)
		switch {
		case errors.Is(err, ErrRunActive):
			zap.L().Warn("pipeline: skipping scheduled run, previous run still active")
		case err != nil:
			zap.L().Error("pipeline: scheduled run not started", zap.Error(err))
		default:
			zap.L().Info("pipeline: scheduled run started", zap.String("schedule", spec))
		}
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: invalid schedule %q", spec)
	}
	return c, nil
}

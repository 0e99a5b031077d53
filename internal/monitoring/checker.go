package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates run health on a fixed interval while serving and keeps
// the alerts of the latest check.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	lookback  int
	interval  time.Duration

	mu   sync.Mutex
	last []Alert
}

// NewChecker creates a Checker. A non-positive check interval selects five
// minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		lookback:  cfg.LookbackWindowHours,
		interval:  interval,
	}
}

// Start schedules Check every interval until the returned stop function is
// called. stop waits for a running check to finish.
func (c *Checker) Start(ctx context.Context) (stop func(), err error) {
	sched := cron.New()
	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", c.interval), func() { c.Check(ctx) }); err != nil {
		return nil, eris.Wrap(err, "monitoring: schedule checker")
	}
	sched.Start()
	zap.L().Info("monitoring: alert checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)
	return func() { <-sched.Stop().Done() }, nil
}

// Check collects one snapshot, notifies the webhook of any alerts and
// returns them.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: collect failed", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	c.mu.Lock()
	c.last = alerts
	c.mu.Unlock()

	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts")
		return nil
	}
	if err := c.alerter.Notify(ctx, alerts); err != nil {
		log.Error("monitoring: notify failed", zap.Int("alerts", len(alerts)), zap.Error(err))
	}
	return alerts
}

// Last returns the alerts raised by the most recent check.
func (c *Checker) Last() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.last...)
}

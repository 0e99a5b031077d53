package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/costdb/internal/model"
)

func TestChecker_Check(t *testing.T) {
	var hooks atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hooks.Add(1)
	}))
	defer srv.Close()

	now := time.Now().UTC()
	runs := &mockRuns{}
	for i := 0; i < 4; i++ {
		runs.runs = append(runs.runs, model.Run{Status: model.RunStatusFailed, CreatedAt: now, UpdatedAt: now})
	}

	cfg := testMonitoringConfig(srv.URL)
	c := NewChecker(NewCollector(runs), NewAlerter(cfg), cfg)

	alerts := c.Check(context.Background())
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertStaleOutputs, alerts[0].Type)
	assert.Equal(t, AlertRunFailureRate, alerts[1].Type)
	assert.Equal(t, int32(1), hooks.Load())
	assert.Equal(t, alerts, c.Last())
}

func TestChecker_CheckClearsLast(t *testing.T) {
	now := time.Now().UTC()
	runs := &mockRuns{runs: []model.Run{{Status: model.RunStatusFailed, CreatedAt: now, UpdatedAt: now}}}
	cfg := testMonitoringConfig("")
	c := NewChecker(NewCollector(runs), NewAlerter(cfg), cfg)

	require.Len(t, c.Check(context.Background()), 1)
	require.Len(t, c.Last(), 1)

	runs.runs = append(runs.runs, model.Run{Status: model.RunStatusComplete, CreatedAt: now, UpdatedAt: now})
	assert.Empty(t, c.Check(context.Background()))
	assert.Empty(t, c.Last())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := testMonitoringConfig("")
	c := NewChecker(NewCollector(&mockRuns{listErr: errors.New("db down")}), NewAlerter(cfg), cfg)
	assert.Nil(t, c.Check(context.Background()))
}

func TestChecker_DefaultInterval(t *testing.T) {
	cfg := testMonitoringConfig("")
	c := NewChecker(NewCollector(&mockRuns{}), NewAlerter(cfg), cfg)
	assert.Equal(t, 5*time.Minute, c.interval)

	cfg.CheckIntervalSecs = 30
	c = NewChecker(NewCollector(&mockRuns{}), NewAlerter(cfg), cfg)
	assert.Equal(t, 30*time.Second, c.interval)
}

func TestChecker_StartStop(t *testing.T) {
	cfg := testMonitoringConfig("")
	cfg.CheckIntervalSecs = 1
	c := NewChecker(NewCollector(&mockRuns{}), NewAlerter(cfg), cfg)

	stop, err := c.Start(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop")
	}
}

package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/costdb/internal/model"
)

type blockingRunner struct {
	release chan struct{}
	started chan struct{}
	calls   atomic.Int32
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
}

func (b *blockingRunner) Run(_ context.Context, _ model.RunInput) (*Result, error) {
	b.calls.Add(1)
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	if b.err != nil {
		return nil, b.err
	}
	return &Result{RunID: "run-1", Summary: &model.RunSummary{}}, nil
}

func TestGuard_RejectsOverlap(t *testing.T) {
	r := newBlockingRunner()
	g := NewGuard(r)
	ctx := context.Background()

	require.NoError(t, g.Start(ctx, model.RunInput{}))
	<-r.started
	assert.True(t, g.Active())

	err := g.Start(ctx, model.RunInput{})
	assert.True(t, errors.Is(err, ErrRunActive))

	_, err = g.Run(ctx, model.RunInput{})
	assert.True(t, errors.Is(err, ErrRunActive))

	close(r.release)
	g.Wait()
	assert.False(t, g.Active())
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestGuard_RunReleasesAfterFailure(t *testing.T) {
	r := newBlockingRunner()
	r.err = errors.New("boom")
	close(r.release)
	g := NewGuard(r)

	_, err := g.Run(context.Background(), model.RunInput{})
	require.EqualError(t, err, "boom")
	assert.False(t, g.Active())

	require.NoError(t, g.Start(context.Background(), model.RunInput{}))
	g.Wait()
	assert.Equal(t, int32(2), r.calls.Load())
	assert.False(t, g.Active())
}

func TestNewScheduler(t *testing.T) {
	g := NewGuard(newBlockingRunner())

	c, err := NewScheduler(context.Background(), "0 3 * * *", g, model.RunInput{})
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = NewScheduler(context.Background(), "every tuesday", g, model.RunInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

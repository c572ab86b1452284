package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadsurge/internal/behavior"
	"loadsurge/internal/stats"
)

type releaseCounter struct {
	behavior.ExecutorFunc
	mu       sync.Mutex
	released []string
}

func (r *releaseCounter) Release(id string) {
	r.mu.Lock()
	r.released = append(r.released, id)
	r.mu.Unlock()
}

func modelWith(t *testing.T, exec behavior.Executor, timeout time.Duration, think behavior.Range) *behavior.Model {
	t.Helper()
	reg := behavior.NewRegistry()
	require.NoError(t, reg.Register("test", exec))
	spec := behavior.SingleAction("test", behavior.Target{}, think, timeout)
	m, err := behavior.NewModel(spec, reg)
	require.NoError(t, err)
	return m
}

func sleepFor(d time.Duration) behavior.ExecutorFunc {
	return func(ctx context.Context, _ *behavior.Action, _ string) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestActorRecordsUntilDeadline(t *testing.T) {
	exec := &releaseCounter{ExecutorFunc: sleepFor(10 * time.Millisecond)}
	m := modelWith(t, exec, time.Second, behavior.Range{})
	c := stats.NewCollector()

	a := NewActor(ActorConfig{ID: "a1", Deadline: time.Now().Add(100 * time.Millisecond), Seed: 1}, m, c, nil)
	assert.Equal(t, StateIdle, a.State())
	a.Run(context.Background())
	c.Finish()

	assert.Equal(t, StateEnded, a.State())
	agg := c.Summarize()
	assert.InDelta(t, 10, float64(agg.Requests), 5)
	assert.Zero(t, agg.Errors)
	assert.GreaterOrEqual(t, agg.MeanMs, 10.0)

	require.Equal(t, 1, agg.Sessions.Closed)
	assert.Equal(t, float64(agg.Requests), agg.Sessions.AvgActions)
	assert.Equal(t, int64(agg.Requests), a.Actions())
	assert.Equal(t, []string{"a1"}, exec.released)
}

func TestActorTurnsFailuresIntoSamples(t *testing.T) {
	calls := 0
	boom := behavior.ExecutorFunc(func(context.Context, *behavior.Action, string) error {
		calls++
		if calls%2 == 0 {
			panic("kaboom")
		}
		return errors.New("bad gateway")
	})
	m := modelWith(t, boom, time.Second, behavior.Fixed(time.Millisecond))
	c := stats.NewCollector()

	NewActor(ActorConfig{ID: "a1", Deadline: time.Now().Add(30 * time.Millisecond)}, m, c, nil).Run(context.Background())

	agg := c.Summarize()
	require.Greater(t, agg.Requests, uint64(2))
	assert.Equal(t, agg.Requests, agg.Errors)
	assert.Equal(t, 1.0, agg.ErrorRate)
	assert.Zero(t, agg.MeanMs)
	assert.Positive(t, agg.ErrorCounts["bad gateway"])
	assert.Positive(t, agg.ErrorCounts["action request panicked: kaboom"])
}

func TestActorRecordsTimeouts(t *testing.T) {
	m := modelWith(t, sleepFor(time.Second), 5*time.Millisecond, behavior.Range{})
	c := stats.NewCollector()

	NewActor(ActorConfig{ID: "a1", Deadline: time.Now().Add(30 * time.Millisecond)}, m, c, nil).Run(context.Background())

	agg := c.Summarize()
	require.Positive(t, agg.Errors)
	assert.Equal(t, agg.Errors, agg.ErrorCounts[ErrTimeout.Error()])
}

func TestTeardownEndsSessionWithoutErrorSample(t *testing.T) {
	m := modelWith(t, sleepFor(time.Second), time.Minute, behavior.Range{})
	c := stats.NewCollector()

	pop := NewPopulation(context.Background())
	for _, id := range []string{"a1", "a2", "a3"} {
		pop.Start(NewActor(ActorConfig{ID: id, Deadline: time.Now().Add(time.Minute)}, m, c, nil))
	}
	assert.Eventually(t, func() bool { return pop.Running() == 3 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		pop.Teardown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("teardown did not return")
	}

	agg := c.Summarize()
	assert.Zero(t, agg.Requests)
	assert.Equal(t, 3, agg.Sessions.Closed)
	assert.Zero(t, agg.Sessions.Open)
	assert.Equal(t, 3, pop.Size())
	assert.Zero(t, pop.Running())
	assert.Equal(t, []string{"a1", "a2", "a3"}, pop.IDs())
}

func TestThinkTimeIsCutAtDeadline(t *testing.T) {
	m := modelWith(t, sleepFor(0), time.Second, behavior.Fixed(time.Hour))
	c := stats.NewCollector()

	start := time.Now()
	NewActor(ActorConfig{ID: "a1", Deadline: start.Add(20 * time.Millisecond)}, m, c, nil).Run(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, uint64(1), c.Summarize().Requests)
}

func TestActorRunsOnce(t *testing.T) {
	m := modelWith(t, sleepFor(0), time.Second, behavior.Range{})
	c := stats.NewCollector()
	a := NewActor(ActorConfig{ID: "a1", Deadline: time.Now().Add(5 * time.Millisecond)}, m, c, nil)
	a.Run(context.Background())
	a.Run(context.Background())
	assert.Equal(t, 1, c.Summarize().Sessions.Total)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "ended", StateEnded.String())
}

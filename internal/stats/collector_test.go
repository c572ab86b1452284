package stats

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestCollectorConcurrentWriters(t *testing.T) {
	c := NewCollector()
	const actors, perActor = 50, 200

	var wg sync.WaitGroup
	for i := 0; i < actors; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			c.StartSession(id)
			for j := 0; j < perActor; j++ {
				if j%10 == 0 {
					c.RecordError("checkout", errors.New("timeout"))
				} else {
					c.RecordSuccess("browse", time.Millisecond)
				}
				c.IncrementSessionActions(id)
			}
			c.EndSession(id)
		}(fmt.Sprintf("actor-%d", i))
	}
	wg.Wait()
	c.Finish()

	agg := c.Summarize()
	assert.Equal(t, uint64(actors*perActor), agg.Requests)
	assert.Equal(t, uint64(actors*perActor/10), agg.Errors)
	assert.InDelta(t, 0.1, agg.ErrorRate, 1e-9)
	assert.Equal(t, actors, agg.Sessions.Closed)
	assert.InDelta(t, float64(perActor), agg.Sessions.AvgActions, 1e-9)

	live := c.Live()
	assert.Equal(t, agg.Requests, live.Requests)
	assert.Equal(t, agg.Successes, live.Success)
}

func TestSummarizeBeforeFinish(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	c := newCollectorWithClock(clock.Now)
	c.RecordSuccess("a", 10*time.Millisecond)
	clock.Advance(2 * time.Second)

	agg := c.Summarize()
	assert.Zero(t, agg.Duration)
	assert.Zero(t, agg.Throughput)

	peek := c.Peek(clock.Now())
	assert.Equal(t, 2*time.Second, peek.Duration)
	assert.InDelta(t, 0.5, peek.Throughput, 1e-9)

	c.Finish()
	clock.Advance(time.Hour)
	c.Finish()
	agg = c.Summarize()
	assert.Equal(t, 2*time.Second, agg.Duration)
	assert.True(t, c.Finished())
}

func TestCollectorSessions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := newCollectorWithClock(clock.Now)

	c.StartSession("a")
	c.StartSession("b")
	c.IncrementSessionActions("a")
	clock.Advance(time.Second)
	c.EndSession("a")

	// restarting an id opens a second session
	c.StartSession("a")
	c.IncrementSessionActions("ghost")

	in := c.Snapshot()
	require.Len(t, in.Sessions, 3)
	assert.Equal(t, 1, in.Sessions[0].Actions)
	assert.False(t, in.Sessions[0].Open())
	assert.True(t, in.Sessions[1].Open())
	assert.True(t, in.Sessions[2].Open())

	agg := c.Summarize()
	assert.Equal(t, 1, agg.Sessions.Closed)
	assert.Equal(t, 2, agg.Sessions.Open)
	assert.Equal(t, time.Second, agg.Sessions.AvgDuration)
}

func TestCollectorResources(t *testing.T) {
	c := NewCollector()
	for _, v := range []float64{10, 20, 30, 40} {
		c.RecordResourceSnapshot(ResourceMemory, v)
	}
	c.RecordResourceSnapshot(ResourceCPU, 12)

	agg := c.Summarize()
	mem := agg.Resources[ResourceMemory]
	assert.Equal(t, 4, mem.Samples)
	assert.Equal(t, 40.0, mem.Last)
	assert.Equal(t, 10.0, mem.Min)
	assert.Equal(t, 25.0, mem.Mean)
	assert.Equal(t, TrendIncreasing, mem.Trend)
	assert.Equal(t, TrendStable, agg.Resources[ResourceCPU].Trend)
}

func TestTeeSkipsNil(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	r := Tee(a, nil, b)
	r.StartSession("x")
	r.RecordSuccess("act", 5*time.Millisecond)
	r.RecordError("act", nil)
	r.IncrementSessionActions("x")
	r.EndSession("x")

	for _, c := range []*Collector{a, b} {
		agg := c.Summarize()
		assert.Equal(t, uint64(2), agg.Requests)
		assert.Equal(t, uint64(1), agg.ErrorCounts["unknown error"])
		assert.Equal(t, 1, agg.Sessions.Closed)
	}
}

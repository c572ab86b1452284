package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeEmpty(t *testing.T) {
	agg := Summarize(Input{})

	assert.Zero(t, agg.MeanMs)
	assert.Zero(t, agg.MedianMs)
	assert.Zero(t, agg.P95Ms)
	assert.Zero(t, agg.P99Ms)
	assert.Equal(t, 0.0, agg.ErrorRate)
	assert.Equal(t, 0.0, agg.Throughput)
}

func TestSummarizePercentiles(t *testing.T) {
	latencies := make([]float64, 0, 100)
	for i := 100; i >= 1; i-- {
		latencies = append(latencies, float64(i))
	}
	start := time.Unix(1000, 0)

	agg := Summarize(Input{
		Latencies: latencies,
		Requests:  100,
		Start:     start,
		End:       start.Add(10 * time.Second),
	})

	assert.InDelta(t, 50.5, agg.MeanMs, 1e-9)
	assert.Equal(t, 51.0, agg.MedianMs)
	assert.Equal(t, 96.0, agg.P95Ms)
	assert.Equal(t, 100.0, agg.P99Ms)
	assert.Equal(t, 1.0, agg.MinMs)
	assert.Equal(t, 100.0, agg.MaxMs)
	assert.InDelta(t, 10.0, agg.Throughput, 1e-9)
	assert.Equal(t, 10*time.Second, agg.Duration)
}

func TestPercentileIndexBoundsAndMonotonic(t *testing.T) {
	prev95, prev99 := 0, 0
	for n := 1; n <= 1000; n++ {
		i95 := PercentileIndex(n, 0.95)
		i99 := PercentileIndex(n, 0.99)
		require.GreaterOrEqual(t, i95, 0)
		require.Less(t, i95, n)
		require.GreaterOrEqual(t, i99, 0)
		require.Less(t, i99, n)
		require.GreaterOrEqual(t, i95, prev95)
		require.GreaterOrEqual(t, i99, prev99)
		prev95, prev99 = i95, i99
	}
	assert.Equal(t, 0, PercentileIndex(0, 0.95))
}

func TestPercentilesGrowWithLargerValues(t *testing.T) {
	var latencies []float64
	var prevP95, prevP99 float64
	for i := 1; i <= 200; i++ {
		latencies = append(latencies, float64(i*3))
		agg := Summarize(Input{Latencies: latencies, Requests: uint64(i)})
		require.GreaterOrEqual(t, agg.P95Ms, prevP95)
		require.GreaterOrEqual(t, agg.P99Ms, prevP99)
		prevP95, prevP99 = agg.P95Ms, agg.P99Ms
	}
}

func TestErrorRate(t *testing.T) {
	tests := []struct {
		name     string
		requests uint64
		errors   uint64
		want     float64
	}{
		{"no requests", 0, 0, 0},
		{"no errors", 10, 0, 0},
		{"some errors", 10, 3, 0.3},
		{"all errors", 4, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Summarize(Input{Requests: tt.requests, Errors: tt.errors})
			assert.InDelta(t, tt.want, agg.ErrorRate, 1e-9)
			assert.GreaterOrEqual(t, agg.ErrorRate, 0.0)
			assert.LessOrEqual(t, agg.ErrorRate, 1.0)
		})
	}
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		values []float64
		want   Trend
	}{
		{[]float64{10, 20, 30, 40}, TrendIncreasing},
		{[]float64{50, 50, 50, 50}, TrendStable},
		{[]float64{40, 30, 20, 10}, TrendDecreasing},
		{[]float64{100, 105, 100, 105}, TrendStable},
		{[]float64{7}, TrendStable},
		{nil, TrendStable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyTrend(tt.values), "values %v", tt.values)
	}
}

func TestSessionAveragesExcludeOpenSessions(t *testing.T) {
	base := time.Unix(0, 0)
	agg := Summarize(Input{Sessions: []Session{
		{ActorID: "a", Start: base, End: base.Add(2 * time.Second), Actions: 4},
		{ActorID: "b", Start: base, End: base.Add(4 * time.Second), Actions: 8},
		{ActorID: "c", Start: base, Actions: 100},
	}})

	assert.Equal(t, 3, agg.Sessions.Total)
	assert.Equal(t, 2, agg.Sessions.Closed)
	assert.Equal(t, 1, agg.Sessions.Open)
	assert.Equal(t, 3*time.Second, agg.Sessions.AvgDuration)
	assert.InDelta(t, 6.0, agg.Sessions.AvgActions, 1e-9)
}

func TestAllRequestsFailed(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 5; i++ {
		c.RecordError("login", errors.New("boom"))
	}
	c.Finish()

	agg := c.Summarize()
	assert.Equal(t, 1.0, agg.ErrorRate)
	assert.Zero(t, agg.MeanMs)
	assert.Zero(t, agg.P99Ms)
	assert.Equal(t, uint64(5), agg.ErrorCounts["boom"])
	assert.Equal(t, uint64(5), agg.Actions["login"].Errors)
}

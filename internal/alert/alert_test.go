package alert

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"loadsurge/internal/stats"
)

var thresholds = Thresholds{
	ResponseTime: Limit(200 * time.Millisecond),
	ErrorRate:    Limit(0.05),
	Throughput:   Limit(10.0),
	MemoryMB:     Limit(512.0),
	CPUPercent:   Limit(80.0),
}

func aggregate(meanMs, errRate, throughput, mem, cpu float64) stats.Aggregate {
	return stats.Aggregate{
		MeanMs:     meanMs,
		ErrorRate:  errRate,
		Throughput: throughput,
		Duration:   time.Second,
		Resources: map[stats.ResourceKind]stats.ResourceStats{
			stats.ResourceMemory: {Samples: 1, Last: mem},
			stats.ResourceCPU:    {Samples: 1, Last: cpu},
		},
	}
}

func TestEvaluateWithinBounds(t *testing.T) {
	alerts := Evaluate(aggregate(100, 0.01, 50, 100, 10), thresholds, time.Now())
	assert.Empty(t, alerts)
}

func TestEvaluateEqualityDoesNotAlert(t *testing.T) {
	alerts := Evaluate(aggregate(200, 0.05, 10, 512, 80), thresholds, time.Now())
	assert.Empty(t, alerts)
}

func TestEvaluateEachViolation(t *testing.T) {
	tests := []struct {
		name     string
		agg      stats.Aggregate
		metric   string
		severity Severity
	}{
		{"latency", aggregate(200.01, 0, 50, 0, 0), MetricResponseTime, SeverityWarning},
		{"errors", aggregate(0, 0.051, 50, 0, 0), MetricErrorRate, SeverityError},
		{"memory", aggregate(0, 0, 50, 513, 0), MetricMemory, SeverityCritical},
		{"cpu", aggregate(0, 0, 50, 0, 80.5), MetricCPU, SeverityCritical},
		{"throughput", aggregate(0, 0, 9.99, 0, 0), MetricThroughput, SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Unix(42, 0)
			alerts := Evaluate(tt.agg, thresholds, now)
			require.Len(t, alerts, 1)
			a := alerts[0]
			assert.Equal(t, tt.metric, a.Metric)
			assert.Equal(t, tt.severity, a.Severity)
			assert.Equal(t, now, a.Timestamp)
			assert.NotEmpty(t, a.Message)
		})
	}
}

func TestEvaluateMessageEmbedsValues(t *testing.T) {
	alerts := Evaluate(aggregate(250, 0, 50, 0, 0), thresholds, time.Now())
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "250.00")
	assert.Contains(t, alerts[0].Message, "200.00")
}

func TestEvaluateDisabledThresholds(t *testing.T) {
	alerts := Evaluate(aggregate(1e6, 1, 0, 1e6, 100), Thresholds{}, time.Now())
	assert.Empty(t, alerts)

	// no elapsed time yet: throughput floor is not judged
	agg := aggregate(0, 0, 0, 0, 0)
	agg.Duration = 0
	assert.Empty(t, Evaluate(agg, Thresholds{Throughput: Limit(5.0)}, time.Now()))
}

func TestEvaluateZeroThresholdIsALimit(t *testing.T) {
	th := Thresholds{ErrorRate: Limit(0.0), ResponseTime: Limit(time.Duration(0))}

	alerts := Evaluate(aggregate(0, 1, 0, 0, 0), th, time.Now())
	require.Len(t, alerts, 1)
	assert.Equal(t, MetricErrorRate, alerts[0].Metric)
	assert.Zero(t, alerts[0].Threshold)

	// zero observed against a zero limit is equality
	assert.Empty(t, Evaluate(aggregate(0, 0, 0, 0, 0), th, time.Now()))

	alerts = Evaluate(aggregate(0.5, 0, 0, 0, 0), th, time.Now())
	require.Len(t, alerts, 1)
	assert.Equal(t, MetricResponseTime, alerts[0].Metric)
}

func TestManagerPrune(t *testing.T) {
	m := NewManager(time.Hour, nil)
	now := time.Unix(10_000, 0)
	m.Record(
		Alert{Metric: "old", Timestamp: now.Add(-2 * time.Hour)},
		Alert{Metric: "edge", Timestamp: now.Add(-time.Hour)},
		Alert{Metric: "new", Timestamp: now},
	)
	require.Len(t, m.History(), 3)

	assert.Equal(t, 1, m.Prune(now))
	hist := m.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "edge", hist[0].Metric)
	assert.Equal(t, "new", hist[1].Metric)
}

func TestManagerLogsAndNotifies(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := NewManager(0, zap.New(core))

	var got []Alert
	m.OnAlert(func(a Alert) { got = append(got, a) })

	raised := m.Check(aggregate(500, 0.5, 50, 0, 0), thresholds, time.Now())
	require.Len(t, raised, 2)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestMonitorPolls(t *testing.T) {
	m := NewManager(time.Hour, nil)
	var mu sync.Mutex
	polls := 0
	mon := &Monitor{
		Manager:    m,
		Thresholds: Thresholds{ErrorRate: Limit(0.1)},
		Interval:   5 * time.Millisecond,
		Source: func(time.Time) stats.Aggregate {
			mu.Lock()
			polls++
			mu.Unlock()
			return stats.Aggregate{ErrorRate: 0.5}
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	require.NoError(t, mon.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, polls, 2)
	assert.Len(t, m.History(), polls)
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, thresholds.Validate())
	assert.NoError(t, Thresholds{}.Validate())
	assert.NoError(t, Thresholds{ErrorRate: Limit(0.0)}.Validate())
	assert.Error(t, Thresholds{ErrorRate: Limit(2.0)}.Validate())
	assert.Error(t, Thresholds{ErrorRate: Limit(math.NaN())}.Validate())
	assert.Error(t, Thresholds{ResponseTime: Limit(time.Duration(-1))}.Validate())
	assert.Error(t, Thresholds{MemoryMB: Limit(-1.0)}.Validate())
	assert.Error(t, Thresholds{CPUPercent: Limit(math.Inf(1))}.Validate())
}

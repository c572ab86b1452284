package stats

import (
	"math"
	"sort"
	"time"
)

// Input is the raw material the aggregator works from.
type Input struct {
	Latencies   []float64 // ms, successes only
	Requests    uint64
	Errors      uint64
	Start       time.Time
	End         time.Time
	Resources   map[ResourceKind][]ResourceSnapshot
	Sessions    []Session
	ErrorCounts map[string]uint64
	Actions     map[string]ActionCounts
}

type Trend string

const (
	TrendStable     Trend = "stable"
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
)

type ResourceStats struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Last    float64 `json:"last"`
	Trend   Trend   `json:"trend"`
}

type SessionStats struct {
	Total       int           `json:"total"`
	Closed      int           `json:"closed"`
	Open        int           `json:"open"`
	AvgDuration time.Duration `json:"avg_duration"`
	AvgActions  float64       `json:"avg_actions"`
}

type ActionStats struct {
	Requests uint64  `json:"requests"`
	Errors   uint64  `json:"errors"`
	MeanMs   float64 `json:"mean_ms"`
}

// Aggregate is the statistical summary of one collector.
type Aggregate struct {
	Requests   uint64        `json:"requests"`
	Successes  uint64        `json:"successes"`
	Errors     uint64        `json:"errors"`
	MeanMs     float64       `json:"mean_ms"`
	MedianMs   float64       `json:"median_ms"`
	P95Ms      float64       `json:"p95_ms"`
	P99Ms      float64       `json:"p99_ms"`
	MinMs      float64       `json:"min_ms"`
	MaxMs      float64       `json:"max_ms"`
	ErrorRate  float64       `json:"error_rate"`
	Throughput float64       `json:"throughput"`
	Duration   time.Duration `json:"duration"`

	Resources   map[ResourceKind]ResourceStats `json:"resources,omitempty"`
	Sessions    SessionStats                   `json:"sessions"`
	ErrorCounts map[string]uint64              `json:"error_counts,omitempty"`
	Actions     map[string]ActionStats         `json:"actions,omitempty"`
}

// Summarize derives an Aggregate from raw samples. It never divides by zero:
// empty inputs produce zero values.
func Summarize(in Input) Aggregate {
	agg := Aggregate{
		Requests:    in.Requests,
		Errors:      in.Errors,
		Resources:   make(map[ResourceKind]ResourceStats, len(in.Resources)),
		Sessions:    summarizeSessions(in.Sessions),
		ErrorCounts: in.ErrorCounts,
		Actions:     make(map[string]ActionStats, len(in.Actions)),
	}
	if in.Requests >= in.Errors {
		agg.Successes = in.Requests - in.Errors
	}

	sorted := append([]float64(nil), in.Latencies...)
	sort.Float64s(sorted)
	if n := len(sorted); n > 0 {
		var sum float64
		for _, v := range sorted {
			sum += v
		}
		agg.MeanMs = sum / float64(n)
		agg.MinMs = sorted[0]
		agg.MaxMs = sorted[n-1]
		agg.MedianMs = sorted[PercentileIndex(n, 0.5)]
		agg.P95Ms = sorted[PercentileIndex(n, 0.95)]
		agg.P99Ms = sorted[PercentileIndex(n, 0.99)]
	}

	if in.Requests > 0 {
		agg.ErrorRate = float64(in.Errors) / float64(in.Requests)
	}

	if !in.End.IsZero() && in.End.After(in.Start) {
		agg.Duration = in.End.Sub(in.Start)
		agg.Throughput = float64(in.Requests) / agg.Duration.Seconds()
	}

	for kind, snaps := range in.Resources {
		agg.Resources[kind] = summarizeResource(snaps)
	}

	for name, c := range in.Actions {
		s := ActionStats{Requests: c.Success + c.Errors, Errors: c.Errors}
		if c.Success > 0 {
			s.MeanMs = float64(c.LatencySum) / float64(time.Millisecond) / float64(c.Success)
		}
		agg.Actions[name] = s
	}

	return agg
}

// PercentileIndex returns floor(n*q) clamped into [0, n).
func PercentileIndex(n int, q float64) int {
	if n <= 0 {
		return 0
	}
	idx := int(math.Floor(float64(n) * q))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// ClassifyTrend compares the mean of the second half of values against the
// first half: more than 10% up is increasing, more than 10% down is decreasing.
func ClassifyTrend(values []float64) Trend {
	if len(values) < 2 {
		return TrendStable
	}
	half := len(values) / 2
	first := mean(values[:half])
	second := mean(values[half:])
	switch {
	case second > first*1.1:
		return TrendIncreasing
	case second < first*0.9:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func summarizeResource(snaps []ResourceSnapshot) ResourceStats {
	if len(snaps) == 0 {
		return ResourceStats{Trend: TrendStable}
	}
	values := make([]float64, len(snaps))
	rs := ResourceStats{
		Samples: len(snaps),
		Min:     snaps[0].Value,
		Max:     snaps[0].Value,
		Last:    snaps[len(snaps)-1].Value,
	}
	for i, s := range snaps {
		values[i] = s.Value
		rs.Min = math.Min(rs.Min, s.Value)
		rs.Max = math.Max(rs.Max, s.Value)
	}
	rs.Mean = mean(values)
	rs.Trend = ClassifyTrend(values)
	return rs
}

// summarizeSessions averages over closed sessions only; open ones are tallied.
func summarizeSessions(sessions []Session) SessionStats {
	st := SessionStats{Total: len(sessions)}
	var total time.Duration
	var actions int
	for _, s := range sessions {
		if s.Open() {
			st.Open++
			continue
		}
		st.Closed++
		total += s.End.Sub(s.Start)
		actions += s.Actions
	}
	if st.Closed > 0 {
		st.AvgDuration = total / time.Duration(st.Closed)
		st.AvgActions = float64(actions) / float64(st.Closed)
	}
	return st
}

package alert

import (
	"fmt"
	"math"
	"time"

	"loadsurge/internal/stats"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Thresholds are the limits an aggregate is checked against. A nil field
// disables its check; a zero limit is a real limit. Throughput is a floor,
// everything else is a ceiling.
type Thresholds struct {
	ResponseTime *time.Duration `yaml:"response_time,omitempty" json:"response_time,omitempty"`
	ErrorRate    *float64       `yaml:"error_rate,omitempty" json:"error_rate,omitempty"`
	Throughput   *float64       `yaml:"throughput,omitempty" json:"throughput,omitempty"`
	MemoryMB     *float64       `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	CPUPercent   *float64       `yaml:"cpu_percent,omitempty" json:"cpu_percent,omitempty"`
}

// Limit returns a pointer to v for filling in Thresholds.
func Limit[T time.Duration | float64](v T) *T { return &v }

func (t Thresholds) Validate() error {
	if t.ResponseTime != nil && *t.ResponseTime < 0 {
		return fmt.Errorf("thresholds: negative response_time")
	}
	if t.ErrorRate != nil && !(*t.ErrorRate >= 0 && *t.ErrorRate <= 1) {
		return fmt.Errorf("thresholds: error_rate %g outside [0,1]", *t.ErrorRate)
	}
	floors := []struct {
		name string
		v    *float64
	}{{"throughput", t.Throughput}, {"memory_mb", t.MemoryMB}, {"cpu_percent", t.CPUPercent}}
	for _, f := range floors {
		if f.v != nil && (*f.v < 0 || math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
			return fmt.Errorf("thresholds: %s %g must be a non-negative number", f.name, *f.v)
		}
	}
	return nil
}

// ResponseTimeMs returns the latency ceiling in milliseconds.
func (t Thresholds) ResponseTimeMs() (float64, bool) {
	if t.ResponseTime == nil {
		return 0, false
	}
	return float64(*t.ResponseTime) / float64(time.Millisecond), true
}

// Alert is immutable once created.
type Alert struct {
	Severity  Severity  `json:"severity"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

const (
	MetricResponseTime = "response_time_ms"
	MetricErrorRate    = "error_rate"
	MetricMemory       = "memory_mb"
	MetricCPU          = "cpu_percent"
	MetricThroughput   = "throughput"
)

// Evaluate compares agg against th and returns one alert per violated
// threshold. Equality never alerts.
func Evaluate(agg stats.Aggregate, th Thresholds, now time.Time) []Alert {
	var alerts []Alert

	if limit, ok := th.ResponseTimeMs(); ok && agg.MeanMs > limit {
		alerts = append(alerts, Alert{
			Severity: SeverityWarning, Metric: MetricResponseTime, Value: agg.MeanMs, Threshold: limit, Timestamp: now,
			Message: fmt.Sprintf("average response time %.2fms exceeds threshold %.2fms", agg.MeanMs, limit),
		})
	}

	if th.ErrorRate != nil && agg.ErrorRate > *th.ErrorRate {
		alerts = append(alerts, Alert{
			Severity: SeverityError, Metric: MetricErrorRate, Value: agg.ErrorRate, Threshold: *th.ErrorRate, Timestamp: now,
			Message: fmt.Sprintf("error rate %.2f%% exceeds threshold %.2f%%", agg.ErrorRate*100, *th.ErrorRate*100),
		})
	}

	if mem, ok := agg.Resources[stats.ResourceMemory]; ok && mem.Samples > 0 && th.MemoryMB != nil && mem.Last > *th.MemoryMB {
		alerts = append(alerts, Alert{
			Severity: SeverityCritical, Metric: MetricMemory, Value: mem.Last, Threshold: *th.MemoryMB, Timestamp: now,
			Message: fmt.Sprintf("memory usage %.1fMB exceeds threshold %.1fMB", mem.Last, *th.MemoryMB),
		})
	}

	if cpu, ok := agg.Resources[stats.ResourceCPU]; ok && cpu.Samples > 0 && th.CPUPercent != nil && cpu.Last > *th.CPUPercent {
		alerts = append(alerts, Alert{
			Severity: SeverityCritical, Metric: MetricCPU, Value: cpu.Last, Threshold: *th.CPUPercent, Timestamp: now,
			Message: fmt.Sprintf("cpu usage %.1f%% exceeds threshold %.1f%%", cpu.Last, *th.CPUPercent),
		})
	}

	// no elapsed time means no throughput to judge yet
	if th.Throughput != nil && agg.Duration > 0 && agg.Throughput < *th.Throughput {
		alerts = append(alerts, Alert{
			Severity: SeverityWarning, Metric: MetricThroughput, Value: agg.Throughput, Threshold: *th.Throughput, Timestamp: now,
			Message: fmt.Sprintf("throughput %.2f req/s below threshold %.2f req/s", agg.Throughput, *th.Throughput),
		})
	}

	return alerts
}

// Package report assembles run results and derives recommendations from them.
package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"loadsurge/internal/alert"
	"loadsurge/internal/scenario"
	"loadsurge/internal/stats"
)

// StageResult is the aggregate of one stage.
type StageResult struct {
	Label    string          `json:"label"`
	Role     scenario.Role   `json:"role,omitempty"`
	Users    int             `json:"users"`
	Duration time.Duration   `json:"duration"`
	Summary  stats.Aggregate `json:"summary"`
}

// RunReport is the outcome of one run. It is produced for every run that
// started, even when every action failed.
type RunReport struct {
	ID              string                 `json:"id"`
	Pattern         scenario.Pattern       `json:"pattern"`
	Collectors      scenario.CollectorMode `json:"collectors"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at"`
	Summary         stats.Aggregate        `json:"summary"`
	Stages          []StageResult          `json:"stages"`
	Alerts          []alert.Alert          `json:"alerts"`
	Recommendations []string               `json:"recommendations"`
	// Interrupted is set when the run was cancelled before its last stage ended.
	Interrupted bool `json:"interrupted,omitempty"`
}

func New(pattern scenario.Pattern, collectors scenario.CollectorMode, startedAt time.Time) *RunReport {
	return &RunReport{
		ID:         uuid.NewString(),
		Pattern:    pattern,
		Collectors: collectors,
		StartedAt:  startedAt,
	}
}

const AllGood = "All metrics are within the configured thresholds."

// Recommend emits one suggestion per violated threshold category, a memory
// leak warning when memory kept rising, or AllGood.
func Recommend(agg stats.Aggregate, th alert.Thresholds) []string {
	var recs []string

	if limit, ok := th.ResponseTimeMs(); ok && agg.MeanMs > limit {
		recs = append(recs, fmt.Sprintf(
			"Average response time %.1fms is above the %.0fms target: profile the slowest actions and consider caching or scaling the target out.",
			agg.MeanMs, limit))
	}
	if th.ErrorRate != nil && agg.ErrorRate > *th.ErrorRate {
		recs = append(recs, fmt.Sprintf(
			"Error rate %.2f%% is above the %.2f%% target: inspect the error breakdown and the target's logs under load.",
			agg.ErrorRate*100, *th.ErrorRate*100))
	}
	if th.Throughput != nil && agg.Duration > 0 && agg.Throughput < *th.Throughput {
		recs = append(recs, fmt.Sprintf(
			"Throughput %.1f req/s is below the %.1f req/s floor: look for contention or connection limits on the target.",
			agg.Throughput, *th.Throughput))
	}
	if mem, ok := agg.Resources[stats.ResourceMemory]; ok && mem.Trend == stats.TrendIncreasing {
		recs = append(recs, "Memory usage kept increasing during the run: check for leaks or unbounded caches.")
	}

	if len(recs) == 0 {
		recs = append(recs, AllGood)
	}
	return recs
}

package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"loadsurge/internal/monitor"
	"loadsurge/internal/report"
	"loadsurge/internal/scenario"
	"loadsurge/internal/stats"
)

// execution carries the per-run state shared by the composition strategies.
type execution struct {
	o      *Orchestrator
	plan   scenario.Plan
	runCol *stats.Collector
	sinks  *resourceSinks
}

// recorder returns the sink chain for a stage and the stage's own
// collector, which is nil in cumulative mode.
func (ex *execution) recorder(extra ...*stats.Collector) (stats.Recorder, *stats.Collector) {
	recs := []stats.Recorder{ex.runCol}
	recs = append(recs, ex.o.opts.Recorders...)
	var col *stats.Collector
	if ex.plan.Collectors == scenario.CollectorPerStage {
		col = stats.NewCollector()
		recs = append(recs, col)
	}
	for _, c := range extra {
		if c != nil {
			recs = append(recs, c)
		}
	}
	return stats.Tee(recs...), col
}

func (ex *execution) activate(cols ...*stats.Collector) {
	sinks := make([]monitor.Sink, 0, len(cols))
	for _, c := range cols {
		if c != nil {
			sinks = append(sinks, c)
		}
	}
	ex.sinks.setStage(sinks...)
}

// result summarizes a finished stage. In cumulative mode it reports the run
// totals as of now.
func (ex *execution) result(st scenario.Stage, col *stats.Collector) report.StageResult {
	var agg stats.Aggregate
	if col != nil {
		col.Finish()
		agg = col.Summarize()
	} else {
		agg = ex.runCol.Peek(time.Now())
	}
	return report.StageResult{Label: st.Label, Role: st.Role, Users: st.Users, Duration: st.Duration, Summary: agg}
}

func (ex *execution) logStage(msg string, st scenario.Stage) {
	ex.o.log.Info(msg,
		zap.String("stage", st.Label),
		zap.Int("users", st.Users),
		zap.Duration("duration", st.Duration),
		zap.Duration("ramp_up", st.RampUp))
}

// sequential runs stages one after another, pausing for each stage's
// interval before the next one starts.
func (ex *execution) sequential(ctx context.Context) []report.StageResult {
	results := make([]report.StageResult, 0, len(ex.plan.Stages))
	for i, st := range ex.plan.Stages {
		if ctx.Err() != nil {
			break
		}
		rec, col := ex.recorder()
		ex.activate(col)
		ex.logStage("stage started", st)

		w := ex.o.launch(ctx, st, rec, nil)
		w.finish(ctx)

		ex.activate()
		results = append(results, ex.result(st, col))
		ex.logStage("stage finished", st)

		if i < len(ex.plan.Stages)-1 && st.Interval > 0 && !sleep(ctx, st.Interval) {
			break
		}
	}
	return results
}

// spike runs the base population, adds the spike population after the
// settle delay, and starts recovery once both have ended. Base and spike
// feed one shared collector; the spike also gets its own.
func (ex *execution) spike(ctx context.Context) []report.StageResult {
	base, peak, recovery := ex.plan.Stages[0], ex.plan.Stages[1], ex.plan.Stages[2]
	results := make([]report.StageResult, 0, 3)

	baseRec, shared := ex.recorder()
	ex.activate(shared)
	ex.logStage("stage started", base)
	baseWave := ex.o.launch(ctx, base, baseRec, nil)

	var peakCol *stats.Collector
	var peakWave *wave
	if sleep(ctx, peak.Interval) {
		var peakRec stats.Recorder
		peakRec, peakCol = ex.recorder(shared)
		ex.activate(shared, peakCol)
		ex.logStage("stage started", peak)
		peakWave = ex.o.launch(ctx, peak, peakRec, nil)
	}

	if peakWave != nil {
		peakWave.finish(ctx)
	}
	baseWave.finish(ctx)
	ex.activate()

	baseResult := ex.result(base, shared)
	if peakWave != nil {
		results = append(results, baseResult, ex.result(peak, peakCol))
		ex.logStage("stage finished", peak)
	} else {
		results = append(results, baseResult)
	}
	ex.logStage("stage finished", base)

	if ctx.Err() != nil {
		return results
	}

	var ids []string
	if ex.plan.Recovery == scenario.RecoveryReuse {
		ids = baseWave.pop.IDs()
	}
	rec, col := ex.recorder()
	ex.activate(col)
	ex.logStage("stage started", recovery)
	ex.o.launch(ctx, recovery, rec, ids).finish(ctx)
	ex.activate()
	results = append(results, ex.result(recovery, col))
	ex.logStage("stage finished", recovery)
	return results
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

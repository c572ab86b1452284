// Package orchestrator realizes a stage plan as actor populations and turns
// the collected samples into a report.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"loadsurge/internal/alert"
	"loadsurge/internal/behavior"
	"loadsurge/internal/config"
	"loadsurge/internal/monitor"
	"loadsurge/internal/report"
	"loadsurge/internal/runner"
	"loadsurge/internal/scenario"
	"loadsurge/internal/stats"
)

type Options struct {
	Log *zap.Logger
	// Recorders receive every sample next to the run collector. Those that
	// also implement monitor.Sink receive resource snapshots.
	Recorders []stats.Recorder
	// Probes are polled in addition to memory and CPU.
	Probes  []monitor.Probe
	OnAlert func(alert.Alert)
	// Checks are post-conditions keyed by action name.
	Checks map[string]behavior.CheckFunc
}

type Orchestrator struct {
	cfg   config.LoadConfig
	model *behavior.Model
	opts  Options
	log   *zap.Logger

	run     atomic.Pointer[stats.Collector]
	seq     atomic.Uint64
	profile atomic.Uint64
}

// New validates cfg and builds the behavior model. Every configuration
// problem surfaces here, before any actor exists.
func New(cfg config.LoadConfig, reg *behavior.Registry, opts Options) (*Orchestrator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var mopts []behavior.ModelOption
	for name, check := range opts.Checks {
		mopts = append(mopts, behavior.WithCheck(name, check))
	}
	model, err := behavior.NewModel(*cfg.Behavior, reg, mopts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, model: model, opts: opts, log: log}, nil
}

// Model exposes the read-only catalog.
func (o *Orchestrator) Model() *behavior.Model { return o.model }

func (o *Orchestrator) Config() config.LoadConfig { return o.cfg }

// Live reports the running totals of the current run.
func (o *Orchestrator) Live() (stats.LiveStats, bool) {
	c := o.run.Load()
	if c == nil {
		return stats.LiveStats{}, false
	}
	return c.Live(), true
}

// RunLoad runs the bare load config as a single constant stage.
func (o *Orchestrator) RunLoad(ctx context.Context) (*report.RunReport, error) {
	return o.Run(ctx, scenario.Plan{
		Pattern: scenario.PatternConstant,
		Stages:  scenario.Constant(o.cfg.Users, o.cfg.Duration, o.cfg.RampUp),
	})
}

func (o *Orchestrator) checkPlan(plan *scenario.Plan) error {
	if plan.Collectors == "" {
		plan.Collectors = scenario.CollectorPerStage
	}
	if plan.Recovery == "" {
		plan.Recovery = scenario.RecoveryFresh
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	peak := 0
	for _, s := range plan.Stages {
		peak = max(peak, s.Users)
	}
	if plan.Pattern == scenario.PatternSpike {
		peak = max(peak, plan.Stages[0].Users+plan.Stages[1].Users)
	}
	if peak > o.cfg.MaxUsers {
		return fmt.Errorf("%w: plan needs %d concurrent actors, max_users is %d", config.ErrInvalidConfig, peak, o.cfg.MaxUsers)
	}
	return nil
}

// Run executes plan and returns its report. Only plan errors are returned;
// a cancelled run still yields a report marked Interrupted.
func (o *Orchestrator) Run(ctx context.Context, plan scenario.Plan) (*report.RunReport, error) {
	if err := o.checkPlan(&plan); err != nil {
		return nil, err
	}

	runCol := stats.NewCollector()
	o.run.Store(runCol)
	rep := report.New(plan.Pattern, plan.Collectors, time.Now())

	alerts := alert.NewManager(o.retention(), o.log.Named("alert"))
	if o.opts.OnAlert != nil {
		alerts.OnAlert(o.opts.OnAlert)
	}

	sinks := &resourceSinks{fixed: []monitor.Sink{runCol}}
	for _, r := range o.opts.Recorders {
		if s, ok := r.(monitor.Sink); ok {
			sinks.fixed = append(sinks.fixed, s)
		}
	}

	bgCtx, stopBg := context.WithCancel(ctx)
	g, bgCtx := errgroup.WithContext(bgCtx)
	o.background(bgCtx, g, plan, runCol, sinks, alerts)

	o.log.Info("run started",
		zap.String("id", rep.ID),
		zap.String("pattern", string(plan.Pattern)),
		zap.Int("stages", len(plan.Stages)),
		zap.String("collectors", string(plan.Collectors)))

	ex := &execution{o: o, plan: plan, runCol: runCol, sinks: sinks}
	if plan.Pattern == scenario.PatternSpike {
		rep.Stages = ex.spike(ctx)
	} else {
		rep.Stages = ex.sequential(ctx)
	}

	runCol.Finish()
	stopBg()
	if err := g.Wait(); err != nil {
		o.log.Warn("background task failed", zap.Error(err))
	}

	rep.FinishedAt = time.Now()
	rep.Summary = runCol.Summarize()
	alerts.Check(rep.Summary, o.cfg.AlertThresholds(), rep.FinishedAt)
	rep.Alerts = alerts.History()
	rep.Recommendations = report.Recommend(rep.Summary, o.cfg.Thresholds)
	rep.Interrupted = ctx.Err() != nil

	o.log.Info("run finished",
		zap.String("id", rep.ID),
		zap.Uint64("requests", rep.Summary.Requests),
		zap.Float64("error_rate", rep.Summary.ErrorRate),
		zap.Int("alerts", len(rep.Alerts)),
		zap.Bool("interrupted", rep.Interrupted))
	return rep, nil
}

func (o *Orchestrator) retention() time.Duration {
	if m := o.cfg.Monitoring; m != nil {
		return m.Retention
	}
	return alert.DefaultRetention
}

// background starts the resource sampler and the alert monitor. Both are
// skipped unless monitoring is configured or a stage asks for polling.
func (o *Orchestrator) background(ctx context.Context, g *errgroup.Group, plan scenario.Plan, runCol *stats.Collector, sinks monitor.Sink, alerts *alert.Manager) {
	mon := o.cfg.Monitoring
	if mon == nil && !plan.PollsResources() {
		return
	}

	sampleEvery := config.DefaultSampleInterval
	if mon != nil {
		sampleEvery = mon.SampleInterval
	}
	probes := append([]monitor.Probe{monitor.Memory(), monitor.CPU()}, o.opts.Probes...)
	sampler := &monitor.Sampler{Probes: probes, Interval: sampleEvery, Sink: sinks, Log: o.log.Named("monitor")}
	g.Go(func() error { return sampler.Run(ctx) })

	if mon == nil || mon.AlertInterval <= 0 {
		return
	}
	watch := &alert.Monitor{
		Manager:    alerts,
		Thresholds: o.cfg.AlertThresholds(),
		Interval:   mon.AlertInterval,
		Source:     runCol.Peek,
	}
	g.Go(func() error { return watch.Run(ctx) })
}

func (o *Orchestrator) nextActor() runner.ActorConfig {
	n := o.seq.Add(1)
	seed := rand.Uint64()
	if o.cfg.Seed != 0 {
		seed = o.cfg.Seed + n
	}
	profile := ""
	if len(o.cfg.Profiles) > 0 {
		profile = o.cfg.Profiles[(o.profile.Add(1)-1)%uint64(len(o.cfg.Profiles))]
	}
	return runner.ActorConfig{ID: uuid.NewString(), Profile: profile, Seed: seed}
}

// resourceSinks forwards snapshots to the run-wide sinks and to whichever
// stage collectors are active.
type resourceSinks struct {
	mu    sync.Mutex
	fixed []monitor.Sink
	stage []monitor.Sink
}

func (r *resourceSinks) RecordResourceSnapshot(kind stats.ResourceKind, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.fixed {
		s.RecordResourceSnapshot(kind, value)
	}
	for _, s := range r.stage {
		s.RecordResourceSnapshot(kind, value)
	}
}

func (r *resourceSinks) setStage(sinks ...monitor.Sink) {
	r.mu.Lock()
	r.stage = sinks
	r.mu.Unlock()
}

// wave is one stage population being spawned and run.
type wave struct {
	stage    scenario.Stage
	pop      *runner.Population
	deadline time.Time
	spawned  chan struct{}
}

// launch starts spawning the stage's actors, paced over its ramp-up, and
// returns at once. ids, when given, are reused in order.
func (o *Orchestrator) launch(ctx context.Context, st scenario.Stage, rec stats.Recorder, ids []string) *wave {
	w := &wave{
		stage:    st,
		pop:      runner.NewPopulation(ctx),
		deadline: time.Now().Add(st.Duration),
		spawned:  make(chan struct{}),
	}

	limit := rate.Inf
	if st.RampUp > 0 && st.Users > 1 {
		limit = rate.Every(st.RampUp / time.Duration(st.Users))
	}
	lim := rate.NewLimiter(limit, 1)

	go func() {
		defer close(w.spawned)
		for i := 0; i < st.Users; i++ {
			if err := lim.Wait(w.pop.Context()); err != nil {
				o.log.Warn("actor spawning stopped", zap.String("stage", st.Label), zap.Int("spawned", i), zap.Error(err))
				return
			}
			ac := o.nextActor()
			if i < len(ids) {
				ac.ID = ids[i]
			}
			ac.Deadline = w.deadline
			w.pop.Start(runner.NewActor(ac, o.model, rec, o.log))
		}
	}()
	return w
}

// wait blocks until every actor of the wave has ended.
func (w *wave) wait() {
	<-w.spawned
	w.pop.Wait()
}

// teardown stops the wave early and waits for its actors to end.
func (w *wave) teardown() {
	w.pop.Cancel()
	<-w.spawned
	w.pop.Teardown()
}

// finish waits for the wave, tearing it down if ctx ends first.
func (w *wave) finish(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		w.wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.teardown()
		<-done
	}
}

package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"loadsurge/internal/behavior"
	"loadsurge/internal/stats"
)

// Actor drives one simulated user until its deadline or until its context
// is cancelled.
type Actor struct {
	cfg   ActorConfig
	model *behavior.Model
	rec   stats.Recorder
	rng   *rand.Rand
	log   *zap.Logger

	state   atomic.Int32
	actions atomic.Int64
}

func NewActor(cfg ActorConfig, model *behavior.Model, rec stats.Recorder, log *zap.Logger) *Actor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Actor{
		cfg:   cfg,
		model: model,
		rec:   rec,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		log:   log.With(zap.String("actor", cfg.ID)),
	}
}

func (a *Actor) ID() string { return a.cfg.ID }

func (a *Actor) State() State { return State(a.state.Load()) }

// Actions counts recorded iterations, teardown-interrupted ones excluded.
func (a *Actor) Actions() int64 { return a.actions.Load() }

// Run executes the actor loop. Cancelling ctx is the teardown signal.
func (a *Actor) Run(ctx context.Context) {
	if !a.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return
	}
	a.rec.StartSession(a.cfg.ID)
	defer func() {
		a.rec.EndSession(a.cfg.ID)
		a.model.Release(a.cfg.ID)
		a.state.Store(int32(StateEnded))
	}()

	for time.Now().Before(a.cfg.Deadline) {
		if ctx.Err() != nil {
			return
		}
		action := a.model.SelectAction(a.cfg.Profile, a.rng)
		if action == nil {
			return
		}
		if !a.step(ctx, action) {
			return
		}
		if !a.think(ctx, action.ThinkTime.Draw(a.rng)) {
			return
		}
	}
}

// step runs one action and records it. It reports false when teardown
// interrupted the action.
func (a *Actor) step(ctx context.Context, action *behavior.Action) bool {
	actx, cancel := ctx, context.CancelFunc(func() {})
	if action.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, action.Timeout)
	}
	start := time.Now()
	err := execute(actx, action, a.cfg.ID)
	elapsed := time.Since(start)
	timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
	cancel()

	switch {
	case err == nil:
		a.rec.RecordSuccess(action.Name, elapsed)
	case ctx.Err() != nil:
		return false
	case timedOut || errors.Is(err, context.DeadlineExceeded):
		a.rec.RecordError(action.Name, ErrTimeout)
		a.log.Debug("action timed out", zap.String("action", action.Name), zap.Duration("timeout", action.Timeout))
	default:
		a.rec.RecordError(action.Name, err)
		a.log.Debug("action failed", zap.String("action", action.Name), zap.Error(err))
	}
	a.rec.IncrementSessionActions(a.cfg.ID)
	a.actions.Add(1)
	return true
}

// think sleeps for d, cut short by the deadline or by teardown.
func (a *Actor) think(ctx context.Context, d time.Duration) bool {
	if left := time.Until(a.cfg.Deadline); d > left {
		d = left
	}
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

func execute(ctx context.Context, action *behavior.Action, actorID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", action.Name, r)
		}
	}()
	return action.Execute(ctx, actorID)
}

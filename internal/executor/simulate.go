package executor

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"loadsurge/internal/behavior"
)

var ErrSimulatedFailure = errors.New("simulated failure")

// Simulator models an action by sleeping for a duration drawn from the
// action's range, failing at the action's failure rate.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(seed uint64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *Simulator) Execute(ctx context.Context, a *behavior.Action, _ string) error {
	s.mu.Lock()
	cost := a.Duration.Draw(s.rng)
	fail := a.FailureRate > 0 && s.rng.Float64() < a.FailureRate
	s.mu.Unlock()

	if cost > 0 {
		t := time.NewTimer(cost)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if fail {
		return ErrSimulatedFailure
	}
	return nil
}

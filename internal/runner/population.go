package runner

import (
	"context"
	"sync"
)

// Population is a group of actors started together and waited on together.
type Population struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	actors []*Actor
	wg     sync.WaitGroup
}

func NewPopulation(ctx context.Context) *Population {
	ctx, cancel := context.WithCancel(ctx)
	return &Population{ctx: ctx, cancel: cancel}
}

// Start launches a in its own goroutine.
func (p *Population) Start(a *Actor) {
	p.mu.Lock()
	p.actors = append(p.actors, a)
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		a.Run(p.ctx)
	}()
}

// Wait blocks until every started actor has ended.
func (p *Population) Wait() {
	p.wg.Wait()
	p.cancel()
}

// Context is cancelled on Teardown. Spawners should stop when it is done.
func (p *Population) Context() context.Context { return p.ctx }

// Cancel signals teardown without waiting.
func (p *Population) Cancel() { p.cancel() }

// Teardown stops every actor early and waits for them to end.
func (p *Population) Teardown() {
	p.cancel()
	p.wg.Wait()
}

func (p *Population) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.actors)
}

// Running counts actors that have started and not yet ended.
func (p *Population) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, a := range p.actors {
		if a.State() == StateRunning {
			n++
		}
	}
	return n
}

// IDs lists actor ids in start order.
func (p *Population) IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, len(p.actors))
	for i, a := range p.actors {
		ids[i] = a.ID()
	}
	return ids
}

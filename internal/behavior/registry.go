package behavior

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Executor performs one action against its target on behalf of an actor.
// A non-nil error marks the action as failed.
type Executor interface {
	Execute(ctx context.Context, a *Action, actorID string) error
}

type ExecutorFunc func(ctx context.Context, a *Action, actorID string) error

func (f ExecutorFunc) Execute(ctx context.Context, a *Action, actorID string) error {
	return f(ctx, a, actorID)
}

// Validator is implemented by executors that can reject an action up front,
// e.g. an unparsable target template.
type Validator interface {
	Validate(a *Action) error
}

// Releaser is implemented by executors that keep per-actor state.
type Releaser interface {
	Release(actorID string)
}

// Registry maps executor ids to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

func (r *Registry) Register(name string, exec Executor) error {
	if name == "" || exec == nil {
		return fmt.Errorf("register executor: empty name or nil executor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executors[name]; ok {
		return fmt.Errorf("register executor %q: already registered", name)
	}
	r.executors[name] = exec
	return nil
}

func (r *Registry) Lookup(name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[name]
	return e, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for n := range r.executors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

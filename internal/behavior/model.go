package behavior

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"
)

// CheckFunc is an optional post-condition run after a successful execution.
type CheckFunc func(ctx context.Context, a *Action, actorID string) error

// Action is a resolved, executable catalog entry.
type Action struct {
	Name        string
	Weight      float64
	Duration    Range
	ThinkTime   Range
	Timeout     time.Duration
	FailureRate float64
	Target      Target
	Check       CheckFunc

	executor string
	exec     Executor
}

func (a *Action) ExecutorName() string { return a.executor }

// Execute runs the action through its executor, then the post-condition.
func (a *Action) Execute(ctx context.Context, actorID string) error {
	if err := a.exec.Execute(ctx, a, actorID); err != nil {
		return err
	}
	if a.Check != nil {
		return a.Check(ctx, a, actorID)
	}
	return nil
}

type Profile struct {
	Name        string
	Actions     []*Action
	ThinkTime   Range
	totalWeight float64
}

// Select draws an action proportionally to weight. Zero-weight actions are
// never chosen; ties go to list order.
func (p *Profile) Select(rng *rand.Rand) *Action {
	draw := rng.Float64() * p.totalWeight
	return p.pick(draw)
}

func (p *Profile) pick(draw float64) *Action {
	var last *Action
	for _, a := range p.Actions {
		if a.Weight <= 0 {
			continue
		}
		last = a
		draw -= a.Weight
		if draw <= 0 {
			return a
		}
	}
	// float rounding can leave a sliver past the last positive weight
	return last
}

// Model is the read-only catalog shared by every actor of a run.
type Model struct {
	profiles       map[string]*Profile
	defaultProfile string
	releasers      []Releaser
}

// ModelOption adjusts a Model while NewModel builds it. A Model is never
// changed after NewModel returns.
type ModelOption func(*modelOptions)

type modelOptions struct {
	checks map[string]CheckFunc
}

// WithCheck attaches a post-condition to every action named actionName.
func WithCheck(actionName string, check CheckFunc) ModelOption {
	return func(o *modelOptions) {
		if o.checks == nil {
			o.checks = make(map[string]CheckFunc)
		}
		o.checks[actionName] = check
	}
}

// NewModel validates spec and resolves every action's executor against reg.
func NewModel(spec Spec, reg *Registry, opts ...ModelOption) (*Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	var mo modelOptions
	for _, opt := range opts {
		opt(&mo)
	}
	checked := make(map[string]bool, len(mo.checks))

	m := &Model{
		profiles:       make(map[string]*Profile, len(spec.Profiles)),
		defaultProfile: spec.DefaultProfile,
	}
	used := make(map[string]Executor)

	for key, ps := range spec.Profiles {
		p := &Profile{Name: key, ThinkTime: ps.ThinkTime}
		for _, as := range ps.Actions {
			name := as.Executor
			if name == "" {
				name = DefaultExecutor
			}
			exec, ok := reg.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("profile %q action %q: %w %q", key, as.Name, ErrUnknownExecutor, name)
			}
			a := &Action{
				Name:        as.Name,
				Weight:      as.Weight,
				Duration:    as.Duration,
				ThinkTime:   ps.ThinkTime,
				Timeout:     as.Timeout,
				FailureRate: as.FailureRate,
				Target:      as.Target,
				Check:       mo.checks[as.Name],
				executor:    name,
				exec:        exec,
			}
			if as.ThinkTime != nil {
				a.ThinkTime = *as.ThinkTime
			}
			if v, ok := exec.(Validator); ok {
				if err := v.Validate(a); err != nil {
					return nil, fmt.Errorf("profile %q action %q: %w", key, as.Name, err)
				}
			}
			if _, ok := mo.checks[as.Name]; ok {
				checked[as.Name] = true
			}
			p.Actions = append(p.Actions, a)
			p.totalWeight += as.Weight
			used[name] = exec
		}
		m.profiles[key] = p
	}

	for name := range mo.checks {
		if !checked[name] {
			return nil, fmt.Errorf("check for %q: %w", name, ErrUnknownAction)
		}
	}

	names := make([]string, 0, len(used))
	for n := range used {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if r, ok := used[n].(Releaser); ok {
			m.releasers = append(m.releasers, r)
		}
	}
	return m, nil
}

// Profile returns the named profile, falling back to the default one.
func (m *Model) Profile(key string) *Profile {
	if p, ok := m.profiles[key]; ok {
		return p
	}
	return m.profiles[m.defaultProfile]
}

func (m *Model) HasProfile(key string) bool {
	_, ok := m.profiles[key]
	return ok
}

func (m *Model) DefaultProfile() string { return m.defaultProfile }

// SelectAction picks a weighted action from profileKey (or the default profile).
func (m *Model) SelectAction(profileKey string, rng *rand.Rand) *Action {
	return m.Profile(profileKey).Select(rng)
}

// Release drops per-actor state held by executors.
func (m *Model) Release(actorID string) {
	for _, r := range m.releasers {
		r.Release(actorID)
	}
}

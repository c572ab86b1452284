package behavior

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var (
	ErrNoActions       = errors.New("profile has no selectable actions")
	ErrUnknownExecutor = errors.New("unknown executor")
	ErrUnknownProfile  = errors.New("unknown profile")
	ErrUnknownAction   = errors.New("unknown action")
	ErrInvalidWeight   = errors.New("weight must be a finite non-negative number")
)

const DefaultExecutor = "simulate"

// Range is an inclusive [Min, Max] duration window.
type Range struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// Fixed returns a range that always draws d.
func Fixed(d time.Duration) Range { return Range{Min: d, Max: d} }

func (r Range) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// Draw picks a uniform duration in the range.
func (r Range) Draw(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rng.Int64N(int64(r.Max-r.Min)+1))
}

func (r Range) validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("negative duration in range [%s, %s]", r.Min, r.Max)
	}
	if r.Max != 0 && r.Max < r.Min {
		return fmt.Errorf("range max %s below min %s", r.Max, r.Min)
	}
	return nil
}

// Target tells an executor what to hit. The engine never looks inside.
type Target struct {
	Address      string            `yaml:"address" json:"address"`
	Method       string            `yaml:"method,omitempty" json:"method,omitempty"`
	Body         string            `yaml:"body,omitempty" json:"body,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	ExpectStatus int               `yaml:"expect_status,omitempty" json:"expect_status,omitempty"`
}

type ActionSpec struct {
	Name        string        `yaml:"name"`
	Weight      float64       `yaml:"weight"`
	Executor    string        `yaml:"executor,omitempty"`
	Duration    Range         `yaml:"duration,omitempty"`
	ThinkTime   *Range        `yaml:"think_time,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	FailureRate float64       `yaml:"failure_rate,omitempty"`
	Target      Target        `yaml:"target,omitempty"`
}

type ProfileSpec struct {
	ThinkTime Range        `yaml:"think_time"`
	Actions   []ActionSpec `yaml:"actions"`
}

// Spec is the declarative behavior model as it appears in a run file.
type Spec struct {
	DefaultProfile string                 `yaml:"default_profile"`
	Profiles       map[string]ProfileSpec `yaml:"profiles"`
}

// ApplyDefaults fills executor and timeout on every action.
func (s *Spec) ApplyDefaults(timeout time.Duration) {
	for key, p := range s.Profiles {
		for i := range p.Actions {
			a := &p.Actions[i]
			if a.Executor == "" {
				a.Executor = DefaultExecutor
			}
			if a.Timeout <= 0 {
				a.Timeout = timeout
			}
		}
		s.Profiles[key] = p
	}
}

// Validate checks weights, ranges and the default profile. It does not look
// at executors; NewModel does that against a Registry.
func (s Spec) Validate() error {
	var errs []error
	if len(s.Profiles) == 0 {
		errs = append(errs, errors.New("behavior: no profiles configured"))
	}
	if s.DefaultProfile == "" {
		errs = append(errs, errors.New("behavior: default_profile is required"))
	} else if _, ok := s.Profiles[s.DefaultProfile]; !ok {
		errs = append(errs, fmt.Errorf("behavior: default_profile %q: %w", s.DefaultProfile, ErrUnknownProfile))
	}

	for key, p := range s.Profiles {
		if err := p.ThinkTime.validate(); err != nil {
			errs = append(errs, fmt.Errorf("profile %q think_time: %w", key, err))
		}
		var total float64
		for i, a := range p.Actions {
			name := a.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
				errs = append(errs, fmt.Errorf("profile %q action %s: name is required", key, name))
			}
			if a.Weight < 0 || math.IsNaN(a.Weight) || math.IsInf(a.Weight, 0) {
				errs = append(errs, fmt.Errorf("profile %q action %s: %w (got %g)", key, name, ErrInvalidWeight, a.Weight))
			} else {
				total += a.Weight
			}
			if err := a.Duration.validate(); err != nil {
				errs = append(errs, fmt.Errorf("profile %q action %s duration: %w", key, name, err))
			}
			if a.ThinkTime != nil {
				if err := a.ThinkTime.validate(); err != nil {
					errs = append(errs, fmt.Errorf("profile %q action %s think_time: %w", key, name, err))
				}
			}
			if a.Timeout < 0 {
				errs = append(errs, fmt.Errorf("profile %q action %s: negative timeout", key, name))
			}
			if !(a.FailureRate >= 0 && a.FailureRate <= 1) {
				errs = append(errs, fmt.Errorf("profile %q action %s: failure_rate %g outside [0,1]", key, name, a.FailureRate))
			}
		}
		if total <= 0 {
			errs = append(errs, fmt.Errorf("profile %q: %w (total weight %g)", key, ErrNoActions, total))
		}
	}
	return errors.Join(errs...)
}

// SingleAction builds a one-profile, one-action spec. Used by the headless
// CLI when only a URL is given.
func SingleAction(executor string, target Target, thinkTime Range, timeout time.Duration) Spec {
	return Spec{
		DefaultProfile: "default",
		Profiles: map[string]ProfileSpec{
			"default": {
				ThinkTime: thinkTime,
				Actions: []ActionSpec{{
					Name:     "request",
					Weight:   1,
					Executor: executor,
					Timeout:  timeout,
					Target:   target,
				}},
			},
		},
	}
}

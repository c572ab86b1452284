// Package scenario expands declarative load shapes into ordered stage lists.
// Every generator here is pure: same input, same stages.
package scenario

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

type Pattern string

const (
	PatternConstant    Pattern = "constant"
	PatternProgressive Pattern = "progressive"
	PatternSpike       Pattern = "spike"
	PatternBurst       Pattern = "burst"
	PatternEndurance   Pattern = "endurance"
)

// Role marks a stage's part in a spike scenario.
type Role string

const (
	RoleStage    Role = ""
	RoleBase     Role = "base"
	RoleSpike    Role = "spike"
	RoleRecovery Role = "recovery"
)

// Stage is one time-bounded population. Interval means "pause after this
// stage" in sequential plans and "start offset" for the spike stage.
type Stage struct {
	Label         string        `json:"label"`
	Users         int           `json:"users"`
	Duration      time.Duration `json:"duration"`
	RampUp        time.Duration `json:"ramp_up"`
	Interval      time.Duration `json:"interval,omitempty"`
	Role          Role          `json:"role,omitempty"`
	PollResources bool          `json:"poll_resources,omitempty"`
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func label(prefix string, users int, d time.Duration) string {
	return fmt.Sprintf("%s: %d users for %s seconds", prefix, users, seconds(d))
}

type Step struct {
	Users    int           `yaml:"users" json:"users"`
	Duration time.Duration `yaml:"duration" json:"duration"`
	RampUp   time.Duration `yaml:"ramp_up" json:"ramp_up"`
}

// Constant is a bare load: one stage.
func Constant(users int, duration, rampUp time.Duration) []Stage {
	return []Stage{{
		Label:    label("stage 1", users, duration),
		Users:    users,
		Duration: duration,
		RampUp:   rampUp,
	}}
}

// Progressive emits one stage per step, unchanged.
func Progressive(steps []Step) []Stage {
	stages := make([]Stage, 0, len(steps))
	for i, s := range steps {
		stages = append(stages, Stage{
			Label:    label(fmt.Sprintf("stage %d", i+1), s.Users, s.Duration),
			Users:    s.Users,
			Duration: s.Duration,
			RampUp:   s.RampUp,
		})
	}
	return stages
}

type SpikeConfig struct {
	BaseUsers        int           `yaml:"base_users" json:"base_users"`
	SpikeUsers       int           `yaml:"spike_users" json:"spike_users"`
	Settle           time.Duration `yaml:"settle" json:"settle"`
	SpikeDuration    time.Duration `yaml:"spike_duration" json:"spike_duration"`
	RecoveryDuration time.Duration `yaml:"recovery_duration" json:"recovery_duration"`
}

// Spike emits base, spike and recovery. The base stage spans the settle delay
// plus the spike so the two overlap; realizing the overlap is the caller's job.
func Spike(c SpikeConfig) []Stage {
	base := c.Settle + c.SpikeDuration
	return []Stage{
		{Label: label("base", c.BaseUsers, base), Users: c.BaseUsers, Duration: base, Role: RoleBase},
		{Label: label("spike", c.SpikeUsers, c.SpikeDuration), Users: c.SpikeUsers, Duration: c.SpikeDuration, Interval: c.Settle, Role: RoleSpike},
		{Label: label("recovery", c.BaseUsers, c.RecoveryDuration), Users: c.BaseUsers, Duration: c.RecoveryDuration, Role: RoleRecovery},
	}
}

type BurstConfig struct {
	Size     int           `yaml:"size" json:"size"`
	Count    int           `yaml:"count" json:"count"`
	Duration time.Duration `yaml:"duration" json:"duration"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// Burst emits Count identical stages annotated with the inter-burst pause.
func Burst(c BurstConfig) []Stage {
	stages := make([]Stage, 0, max(c.Count, 0))
	for i := 0; i < c.Count; i++ {
		stages = append(stages, Stage{
			Label:    label(fmt.Sprintf("burst %d", i+1), c.Size, c.Duration),
			Users:    c.Size,
			Duration: c.Duration,
			Interval: c.Interval,
		})
	}
	return stages
}

type EnduranceConfig struct {
	Users    int           `yaml:"users" json:"users"`
	Duration time.Duration `yaml:"duration" json:"duration"`
	RampUp   time.Duration `yaml:"ramp_up" json:"ramp_up"`
}

// Endurance is one long stage that asks for resource polling.
func Endurance(c EnduranceConfig) []Stage {
	return []Stage{{
		Label:         label("endurance", c.Users, c.Duration),
		Users:         c.Users,
		Duration:      c.Duration,
		RampUp:        c.RampUp,
		PollResources: true,
	}}
}

// CollectorMode decides what a stage result counts.
type CollectorMode string

const (
	// CollectorPerStage gives every stage a fresh collector.
	CollectorPerStage CollectorMode = "per_stage"
	// CollectorCumulative reports run totals as of each stage's end.
	CollectorCumulative CollectorMode = "cumulative"
)

// RecoveryMode decides who runs the spike recovery stage.
type RecoveryMode string

const (
	RecoveryFresh RecoveryMode = "fresh"
	RecoveryReuse RecoveryMode = "reuse"
)

// Plan is a generated stage list plus the composition choices for the run.
type Plan struct {
	Pattern    Pattern       `json:"pattern"`
	Stages     []Stage       `json:"stages"`
	Collectors CollectorMode `json:"collectors"`
	Recovery   RecoveryMode  `json:"recovery"`
}

// PollsResources reports whether any stage asked for resource polling.
func (p Plan) PollsResources() bool {
	for _, s := range p.Stages {
		if s.PollResources {
			return true
		}
	}
	return false
}

// TotalDuration is the planned wall-clock length, pauses included.
func (p Plan) TotalDuration() time.Duration {
	if p.Pattern == PatternSpike && len(p.Stages) == 3 {
		return p.Stages[0].Duration + p.Stages[2].Duration
	}
	var total time.Duration
	for i, s := range p.Stages {
		total += s.Duration
		if i < len(p.Stages)-1 {
			total += s.Interval
		}
	}
	return total
}

// Validate rejects plans no orchestrator could realize.
func (p Plan) Validate() error {
	var errs []error
	if len(p.Stages) == 0 {
		errs = append(errs, errors.New("plan has no stages"))
	}
	for i, s := range p.Stages {
		if s.Users <= 0 {
			errs = append(errs, fmt.Errorf("stage %d (%s): users must be positive, got %d", i+1, s.Label, s.Users))
		}
		if s.Duration <= 0 {
			errs = append(errs, fmt.Errorf("stage %d (%s): duration must be positive, got %s", i+1, s.Label, s.Duration))
		}
		if s.RampUp < 0 || s.RampUp > s.Duration {
			errs = append(errs, fmt.Errorf("stage %d (%s): ramp_up %s must be within [0, duration]", i+1, s.Label, s.RampUp))
		}
		if s.Interval < 0 {
			errs = append(errs, fmt.Errorf("stage %d (%s): negative interval", i+1, s.Label))
		}
	}
	if p.Pattern == PatternSpike {
		if len(p.Stages) != 3 || p.Stages[0].Role != RoleBase || p.Stages[1].Role != RoleSpike || p.Stages[2].Role != RoleRecovery {
			errs = append(errs, errors.New("spike plan needs base, spike and recovery stages in order"))
		} else if p.Stages[1].Interval+p.Stages[1].Duration > p.Stages[0].Duration {
			errs = append(errs, errors.New("spike stage outlasts its base stage"))
		}
	}
	switch p.Collectors {
	case "", CollectorPerStage, CollectorCumulative:
	default:
		errs = append(errs, fmt.Errorf("unknown collector mode %q", p.Collectors))
	}
	switch p.Recovery {
	case "", RecoveryFresh, RecoveryReuse:
	default:
		errs = append(errs, fmt.Errorf("unknown recovery mode %q", p.Recovery))
	}
	return errors.Join(errs...)
}

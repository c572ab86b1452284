package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"loadsurge/internal/alert"
	"loadsurge/internal/behavior"
	"loadsurge/internal/scenario"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxUsers       = 10000
	DefaultSampleInterval = time.Second
	DefaultAlertInterval  = 5 * time.Second
)

type MonitoringConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	AlertInterval  time.Duration `yaml:"alert_interval"`
	Retention      time.Duration `yaml:"retention"`
	// Thresholds for live alerts; the load thresholds apply when nil.
	Thresholds *alert.Thresholds `yaml:"thresholds,omitempty"`
}

// LoadConfig is fixed for the lifetime of a run.
type LoadConfig struct {
	Users    int           `yaml:"users"`
	Duration time.Duration `yaml:"duration"`
	RampUp   time.Duration `yaml:"ramp_up"`
	// MaxUsers caps any single population.
	MaxUsers int           `yaml:"max_users"`
	Timeout  time.Duration `yaml:"timeout"`
	// Seed makes action selection reproducible when non-zero.
	Seed uint64 `yaml:"seed"`
	// Profiles are handed to actors round-robin. Empty means the default profile.
	Profiles   []string          `yaml:"profiles,omitempty"`
	Thresholds alert.Thresholds  `yaml:"thresholds"`
	Behavior   *behavior.Spec    `yaml:"behavior,omitempty"`
	Monitoring *MonitoringConfig `yaml:"monitoring,omitempty"`
}

func (c *LoadConfig) ApplyDefaults() {
	if c.MaxUsers == 0 {
		c.MaxUsers = DefaultMaxUsers
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Behavior != nil {
		c.Behavior.ApplyDefaults(c.Timeout)
	}
	if m := c.Monitoring; m != nil {
		if m.SampleInterval == 0 {
			m.SampleInterval = DefaultSampleInterval
		}
		if m.AlertInterval == 0 {
			m.AlertInterval = DefaultAlertInterval
		}
		if m.Retention == 0 {
			m.Retention = alert.DefaultRetention
		}
	}
}

// AlertThresholds returns the thresholds live alerts are checked against.
func (c LoadConfig) AlertThresholds() alert.Thresholds {
	if c.Monitoring != nil && c.Monitoring.Thresholds != nil {
		return *c.Monitoring.Thresholds
	}
	return c.Thresholds
}

func (c LoadConfig) Validate() error {
	var errs []error
	if c.Users < 0 {
		errs = append(errs, fmt.Errorf("users must not be negative, got %d", c.Users))
	}
	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration must not be negative, got %s", c.Duration))
	}
	if c.RampUp < 0 || (c.Duration > 0 && c.RampUp > c.Duration) {
		errs = append(errs, fmt.Errorf("ramp_up %s must be within [0, duration]", c.RampUp))
	}
	if c.MaxUsers <= 0 {
		errs = append(errs, fmt.Errorf("max_users must be positive, got %d", c.MaxUsers))
	}
	if c.Users > c.MaxUsers {
		errs = append(errs, fmt.Errorf("users %d exceeds max_users %d", c.Users, c.MaxUsers))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Behavior == nil {
		errs = append(errs, errors.New("behavior is required"))
	} else {
		if err := c.Behavior.Validate(); err != nil {
			errs = append(errs, err)
		}
		for _, p := range c.Profiles {
			if _, ok := c.Behavior.Profiles[p]; !ok {
				errs = append(errs, fmt.Errorf("profile %q: %w", p, behavior.ErrUnknownProfile))
			}
		}
	}
	if m := c.Monitoring; m != nil {
		if m.SampleInterval <= 0 || m.AlertInterval <= 0 || m.Retention <= 0 {
			errs = append(errs, errors.New("monitoring intervals and retention must be positive"))
		}
		if m.Thresholds != nil {
			if err := m.Thresholds.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("monitoring: %w", err))
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

type ScenarioConfig struct {
	Pattern    scenario.Pattern          `yaml:"pattern"`
	Steps      []scenario.Step           `yaml:"steps,omitempty"`
	Spike      *scenario.SpikeConfig     `yaml:"spike,omitempty"`
	Burst      *scenario.BurstConfig     `yaml:"burst,omitempty"`
	Endurance  *scenario.EnduranceConfig `yaml:"endurance,omitempty"`
	Collectors scenario.CollectorMode    `yaml:"collectors,omitempty"`
	Recovery   scenario.RecoveryMode     `yaml:"recovery,omitempty"`
}

// Plan expands the scenario into stages. Missing pattern sections fall back
// to the load's users/duration/ramp-up where that makes sense.
func (s ScenarioConfig) Plan(load LoadConfig) (scenario.Plan, error) {
	plan := scenario.Plan{
		Pattern:    s.Pattern,
		Collectors: s.Collectors,
		Recovery:   s.Recovery,
	}
	if plan.Pattern == "" {
		plan.Pattern = scenario.PatternConstant
	}
	if plan.Collectors == "" {
		plan.Collectors = scenario.CollectorPerStage
	}
	if plan.Recovery == "" {
		plan.Recovery = scenario.RecoveryFresh
	}

	switch plan.Pattern {
	case scenario.PatternConstant:
		plan.Stages = scenario.Constant(load.Users, load.Duration, load.RampUp)
	case scenario.PatternProgressive:
		plan.Stages = scenario.Progressive(s.Steps)
	case scenario.PatternSpike:
		if s.Spike == nil {
			return plan, fmt.Errorf("%w: spike pattern needs a spike section", ErrInvalidConfig)
		}
		plan.Stages = scenario.Spike(*s.Spike)
	case scenario.PatternBurst:
		if s.Burst == nil {
			return plan, fmt.Errorf("%w: burst pattern needs a burst section", ErrInvalidConfig)
		}
		plan.Stages = scenario.Burst(*s.Burst)
	case scenario.PatternEndurance:
		e := scenario.EnduranceConfig{Users: load.Users, Duration: load.Duration, RampUp: load.RampUp}
		if s.Endurance != nil {
			e = *s.Endurance
		}
		plan.Stages = scenario.Endurance(e)
	default:
		return plan, fmt.Errorf("%w: unknown pattern %q", ErrInvalidConfig, plan.Pattern)
	}

	if err := plan.Validate(); err != nil {
		return plan, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return plan, nil
}

// File is the on-disk run description.
type File struct {
	Load     LoadConfig     `yaml:"load"`
	Scenario ScenarioConfig `yaml:"scenario"`
}

// Parse decodes a run file, rejecting unknown keys, then applies defaults
// and validates.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidConfig, err)
	}
	f.Load.ApplyDefaults()
	if err := f.Load.Validate(); err != nil {
		return nil, err
	}
	if _, err := f.Scenario.Plan(f.Load); err != nil {
		return nil, err
	}
	return &f, nil
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	return Parse(data)
}

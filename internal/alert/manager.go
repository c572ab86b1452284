package alert

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"loadsurge/internal/stats"
)

const DefaultRetention = time.Hour

// Manager keeps the alert history. Appends never prune; call Prune.
type Manager struct {
	mu        sync.RWMutex
	history   []Alert
	retention time.Duration
	log       *zap.Logger
	notify    []func(Alert)
}

func NewManager(retention time.Duration, log *zap.Logger) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{retention: retention, log: log}
}

// OnAlert registers a hook called for every recorded alert.
func (m *Manager) OnAlert(fn func(Alert)) {
	m.mu.Lock()
	m.notify = append(m.notify, fn)
	m.mu.Unlock()
}

func (m *Manager) Record(alerts ...Alert) {
	if len(alerts) == 0 {
		return
	}
	m.mu.Lock()
	m.history = append(m.history, alerts...)
	hooks := slices.Clone(m.notify)
	m.mu.Unlock()

	for _, a := range alerts {
		fields := []zap.Field{
			zap.String("metric", a.Metric),
			zap.Float64("value", a.Value),
			zap.Float64("threshold", a.Threshold),
		}
		if a.Severity == SeverityWarning {
			m.log.Warn(a.Message, fields...)
		} else {
			m.log.Error(a.Message, append(fields, zap.String("severity", string(a.Severity)))...)
		}
		for _, fn := range hooks {
			fn(a)
		}
	}
}

// Check evaluates agg and records whatever it raises.
func (m *Manager) Check(agg stats.Aggregate, th Thresholds, now time.Time) []Alert {
	alerts := Evaluate(agg, th, now)
	m.Record(alerts...)
	return alerts
}

// Prune drops entries older than the retention window and returns how many went.
func (m *Manager) Prune(now time.Time) int {
	cutoff := now.Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.history[:0]
	for _, a := range m.history {
		if !a.Timestamp.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	removed := len(m.history) - len(kept)
	m.history = kept
	return removed
}

func (m *Manager) History() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Alert(nil), m.history...)
}

// Source produces the aggregate to check at instant now.
type Source func(now time.Time) stats.Aggregate

// Monitor polls a Source on a fixed cadence, independent of actor activity.
type Monitor struct {
	Manager    *Manager
	Thresholds Thresholds
	Interval   time.Duration
	Source     Source
	Now        func() time.Time
}

// Run polls until ctx is done. Each tick also prunes the history.
func (mon *Monitor) Run(ctx context.Context) error {
	now := mon.Now
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(mon.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t := now()
			mon.Manager.Check(mon.Source(t), mon.Thresholds, t)
			mon.Manager.Prune(t)
		}
	}
}

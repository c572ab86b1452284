// Package monitor polls process resources on a fixed cadence and writes the
// snapshots into collectors. Actors never write resource data.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"loadsurge/internal/stats"
)

// Sink receives resource snapshots.
type Sink interface {
	RecordResourceSnapshot(kind stats.ResourceKind, value float64)
}

type SinkFunc func(kind stats.ResourceKind, value float64)

func (f SinkFunc) RecordResourceSnapshot(kind stats.ResourceKind, value float64) { f(kind, value) }

// Sampler is the single polling task of a run.
type Sampler struct {
	Probes   []Probe
	Interval time.Duration
	Sink     Sink
	Log      *zap.Logger
}

// Run polls until ctx is done. A failed probe is skipped for that tick only.
func (s *Sampler) Run(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Poll(log)
		}
	}
}

// Poll samples every probe once.
func (s *Sampler) Poll(log *zap.Logger) {
	for _, p := range s.Probes {
		v, err := p.Sample()
		if err != nil {
			log.Debug("resource poll skipped", zap.String("kind", string(p.Kind())), zap.Error(err))
			continue
		}
		s.Sink.RecordResourceSnapshot(p.Kind(), v)
	}
}

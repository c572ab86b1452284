package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"loadsurge/internal/report"
	"loadsurge/internal/scenario"
)

// MaxEntries bounds the history file; older runs fall off the end.
const MaxEntries = 100

type HistoryItem struct {
	ID          string           `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	Pattern     scenario.Pattern `json:"pattern"`
	Target      string           `json:"target,omitempty"`
	PeakUsers   int              `json:"peak_users"`
	Stages      int              `json:"stages"`
	Summary     RunSummary       `json:"summary"`
	Interrupted bool             `json:"interrupted,omitempty"`
}

type RunSummary struct {
	TotalRequests uint64        `json:"total_requests"`
	Errors        uint64        `json:"errors"`
	ErrorRate     float64       `json:"error_rate"`
	AvgLatencyMs  float64       `json:"avg_latency_ms"`
	P95LatencyMs  float64       `json:"p95_latency_ms"`
	P99LatencyMs  float64       `json:"p99_latency_ms"`
	Throughput    float64       `json:"throughput"`
	Duration      time.Duration `json:"duration"`
	Alerts        int           `json:"alerts"`
}

// FromReport condenses a run report into a history entry.
func FromReport(r *report.RunReport, target string) HistoryItem {
	peak := 0
	for _, s := range r.Stages {
		peak = max(peak, s.Users)
	}
	return HistoryItem{
		ID:          r.ID,
		Timestamp:   r.StartedAt,
		Pattern:     r.Pattern,
		Target:      target,
		PeakUsers:   peak,
		Stages:      len(r.Stages),
		Interrupted: r.Interrupted,
		Summary: RunSummary{
			TotalRequests: r.Summary.Requests,
			Errors:        r.Summary.Errors,
			ErrorRate:     r.Summary.ErrorRate,
			AvgLatencyMs:  r.Summary.MeanMs,
			P95LatencyMs:  r.Summary.P95Ms,
			P99LatencyMs:  r.Summary.P99Ms,
			Throughput:    r.Summary.Throughput,
			Duration:      r.Summary.Duration,
			Alerts:        len(r.Alerts),
		},
	}
}

// Store is a JSON file of past runs, newest first.
type Store struct {
	mu       sync.RWMutex
	filePath string
	items    []HistoryItem
}

// DefaultDir is ~/.loadsurge.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".loadsurge"), nil
}

// NewStore opens the history in dir, creating it when missing. An empty dir
// means DefaultDir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &Store{filePath: filepath.Join(dir, "history.json")}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.items); err != nil {
		return fmt.Errorf("decode %s: %w", s.filePath, err)
	}
	return nil
}

func (s *Store) Save(item HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append([]HistoryItem{item}, s.items...)
	if len(s.items) > MaxEntries {
		s.items = s.items[:MaxEntries]
	}

	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, data, 0o644)
}

func (s *Store) List() []HistoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]HistoryItem, len(s.items))
	copy(res, s.items)
	return res
}

func (s *Store) Get(id string) (HistoryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return HistoryItem{}, false
}

func (s *Store) Path() string { return s.filePath }

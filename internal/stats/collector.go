package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// ResourceKind names a polled resource series.
type ResourceKind string

const (
	ResourceMemory     ResourceKind = "memory"
	ResourceCPU        ResourceKind = "cpu"
	ResourceNetworkIn  ResourceKind = "network_in"
	ResourceNetworkOut ResourceKind = "network_out"
)

type ResourceSnapshot struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Session is one actor lifetime. A zero End means the session is still open.
type Session struct {
	ActorID string    `json:"actor_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end,omitempty"`
	Actions int       `json:"actions"`
}

func (s Session) Open() bool { return s.End.IsZero() }

type ActionCounts struct {
	Success    uint64
	Errors     uint64
	LatencySum time.Duration
}

// Collector accumulates raw samples for one run or one stage.
// Counters are atomic; sample lists live behind mu.
type Collector struct {
	requests uint64
	success  uint64
	fail     uint64

	live *SafeHistogram

	mu          sync.Mutex
	latencies   []float64 // ms, successes only
	errorCounts map[string]uint64
	actions     map[string]*ActionCounts
	resources   map[ResourceKind][]ResourceSnapshot
	sessions    []*Session
	open        map[string]*Session
	start       time.Time
	end         time.Time

	now func() time.Time
}

func NewCollector() *Collector {
	return newCollectorWithClock(time.Now)
}

func newCollectorWithClock(now func() time.Time) *Collector {
	return &Collector{
		live:        NewSafeHistogram(),
		errorCounts: make(map[string]uint64),
		actions:     make(map[string]*ActionCounts),
		resources:   make(map[ResourceKind][]ResourceSnapshot),
		open:        make(map[string]*Session),
		start:       now(),
		now:         now,
	}
}

func (c *Collector) RecordSuccess(action string, latency time.Duration) {
	atomic.AddUint64(&c.requests, 1)
	atomic.AddUint64(&c.success, 1)
	c.live.Record(latency)

	c.mu.Lock()
	c.latencies = append(c.latencies, float64(latency)/float64(time.Millisecond))
	a := c.action(action)
	a.Success++
	a.LatencySum += latency
	c.mu.Unlock()
}

func (c *Collector) RecordError(action string, err error) {
	atomic.AddUint64(&c.requests, 1)
	atomic.AddUint64(&c.fail, 1)

	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	c.mu.Lock()
	c.errorCounts[msg]++
	c.action(action).Errors++
	c.mu.Unlock()
}

// action must be called with mu held.
func (c *Collector) action(name string) *ActionCounts {
	a, ok := c.actions[name]
	if !ok {
		a = &ActionCounts{}
		c.actions[name] = a
	}
	return a
}

func (c *Collector) RecordResourceSnapshot(kind ResourceKind, value float64) {
	c.mu.Lock()
	c.resources[kind] = append(c.resources[kind], ResourceSnapshot{At: c.now(), Value: value})
	c.mu.Unlock()
}

// StartSession opens a new session for actorID. A still-open session with
// the same id is closed first.
func (c *Collector) StartSession(actorID string) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.open[actorID]; ok {
		prev.End = now
	}
	s := &Session{ActorID: actorID, Start: now}
	c.sessions = append(c.sessions, s)
	c.open[actorID] = s
}

func (c *Collector) EndSession(actorID string) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.open[actorID]; ok {
		s.End = now
		delete(c.open, actorID)
	}
}

func (c *Collector) IncrementSessionActions(actorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.open[actorID]; ok {
		s.Actions++
	}
}

// Finish stamps the end instant used for throughput. Only the first call counts.
func (c *Collector) Finish() {
	now := c.now()
	c.mu.Lock()
	if c.end.IsZero() {
		c.end = now
	}
	c.mu.Unlock()
}

func (c *Collector) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.end.IsZero()
}

// Snapshot copies the raw samples. End stays zero until Finish.
func (c *Collector) Snapshot() Input {
	c.mu.Lock()
	defer c.mu.Unlock()

	in := Input{
		Latencies:   append([]float64(nil), c.latencies...),
		Requests:    atomic.LoadUint64(&c.requests),
		Errors:      atomic.LoadUint64(&c.fail),
		Start:       c.start,
		End:         c.end,
		Resources:   make(map[ResourceKind][]ResourceSnapshot, len(c.resources)),
		Sessions:    make([]Session, 0, len(c.sessions)),
		ErrorCounts: make(map[string]uint64, len(c.errorCounts)),
		Actions:     make(map[string]ActionCounts, len(c.actions)),
	}
	for k, v := range c.resources {
		in.Resources[k] = append([]ResourceSnapshot(nil), v...)
	}
	for _, s := range c.sessions {
		in.Sessions = append(in.Sessions, *s)
	}
	for k, v := range c.errorCounts {
		in.ErrorCounts[k] = v
	}
	for k, v := range c.actions {
		in.Actions[k] = *v
	}
	return in
}

// Summarize aggregates the collected samples. Before Finish the duration
// and throughput are zero.
func (c *Collector) Summarize() Aggregate {
	return Summarize(c.Snapshot())
}

// Peek aggregates as if the collector finished at now. Used while a run is live.
func (c *Collector) Peek(now time.Time) Aggregate {
	in := c.Snapshot()
	if in.End.IsZero() {
		in.End = now
	}
	return Summarize(in)
}

// LiveStats is the cheap counter/histogram view used by progress output.
type LiveStats struct {
	Requests uint64
	Success  uint64
	Fail     uint64
	P50Ms    float64
	P90Ms    float64
	P99Ms    float64
	MaxMs    float64
}

func (c *Collector) Live() LiveStats {
	return LiveStats{
		Requests: atomic.LoadUint64(&c.requests),
		Success:  atomic.LoadUint64(&c.success),
		Fail:     atomic.LoadUint64(&c.fail),
		P50Ms:    c.live.QuantileMs(50),
		P90Ms:    c.live.QuantileMs(90),
		P99Ms:    c.live.QuantileMs(99),
		MaxMs:    c.live.MaxMs(),
	}
}

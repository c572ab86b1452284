package monitor

import (
	"errors"
	"runtime"
	"runtime/metrics"
	"sync"

	"loadsurge/internal/stats"
)

// Probe reads one resource value. A returned error skips that poll.
type Probe interface {
	Kind() stats.ResourceKind
	Sample() (float64, error)
}

type probeFunc struct {
	kind stats.ResourceKind
	fn   func() (float64, error)
}

func (p probeFunc) Kind() stats.ResourceKind  { return p.kind }
func (p probeFunc) Sample() (float64, error) { return p.fn() }

// NewProbe adapts a plain function.
func NewProbe(kind stats.ResourceKind, fn func() (float64, error)) Probe {
	return probeFunc{kind: kind, fn: fn}
}

// Memory reports heap in use, in MB.
func Memory() Probe {
	return NewProbe(stats.ResourceMemory, func() (float64, error) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return float64(m.HeapAlloc) / (1024 * 1024), nil
	})
}

var errNoCPUTime = errors.New("no cpu time elapsed since last poll")

const (
	cpuTotal = "/cpu/classes/total:cpu-seconds"
	cpuIdle  = "/cpu/classes/idle:cpu-seconds"
)

type cpuProbe struct {
	mu        sync.Mutex
	read      func() (total, idle float64, err error)
	lastTotal float64
	lastIdle  float64
}

// CPU reports the busy share of the process's available CPU time between
// polls, as a percentage. The first poll covers the time since CPU was called.
func CPU() Probe {
	samples := []metrics.Sample{{Name: cpuTotal}, {Name: cpuIdle}}
	return newCPUProbe(func() (float64, float64, error) {
		metrics.Read(samples)
		for _, s := range samples {
			if s.Value.Kind() != metrics.KindFloat64 {
				return 0, 0, errors.New("cpu metrics unsupported by this runtime")
			}
		}
		return samples[0].Value.Float64(), samples[1].Value.Float64(), nil
	})
}

func newCPUProbe(read func() (float64, float64, error)) *cpuProbe {
	p := &cpuProbe{read: read}
	p.lastTotal, p.lastIdle, _ = read()
	return p
}

func (p *cpuProbe) Kind() stats.ResourceKind { return stats.ResourceCPU }

func (p *cpuProbe) Sample() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total, idle, err := p.read()
	if err != nil {
		return 0, err
	}
	dTotal, dIdle := total-p.lastTotal, idle-p.lastIdle
	p.lastTotal, p.lastIdle = total, idle
	if dTotal <= 0 {
		return 0, errNoCPUTime
	}
	busy := (dTotal - dIdle) / dTotal * 100
	return min(max(busy, 0), 100), nil
}

// ByteCounter reports cumulative bytes received and sent.
type ByteCounter interface {
	NetworkBytes() (in, out uint64)
}

// Network returns two probes reporting bytes moved since their previous
// poll, or since Network was called for the first one.
func Network(c ByteCounter) []Probe {
	var mu sync.Mutex
	lastIn, lastOut := c.NetworkBytes()
	in := NewProbe(stats.ResourceNetworkIn, func() (float64, error) {
		cur, _ := c.NetworkBytes()
		mu.Lock()
		defer mu.Unlock()
		d := cur - lastIn
		lastIn = cur
		return float64(d), nil
	})
	out := NewProbe(stats.ResourceNetworkOut, func() (float64, error) {
		_, cur := c.NetworkBytes()
		mu.Lock()
		defer mu.Unlock()
		d := cur - lastOut
		lastOut = cur
		return float64(d), nil
	})
	return []Probe{in, out}
}

package runner

import (
	"errors"
	"time"
)

// ErrTimeout is recorded when an action outlives its timeout.
var ErrTimeout = errors.New("timeout")

// State is an actor's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type ActorConfig struct {
	ID string
	// Profile is the behavior profile key; unknown keys use the default profile.
	Profile  string
	Deadline time.Time
	// Seed feeds the actor's private PCG source.
	Seed uint64
}

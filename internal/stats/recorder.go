package stats

import "time"

// Recorder is the sink actors write into. Collector implements it, and so
// does the Prometheus exporter, so one actor can feed several sinks.
type Recorder interface {
	RecordSuccess(action string, latency time.Duration)
	RecordError(action string, err error)
	StartSession(actorID string)
	EndSession(actorID string)
	IncrementSessionActions(actorID string)
}

type tee []Recorder

// Tee fans every call out to all non-nil recorders in order.
func Tee(recorders ...Recorder) Recorder {
	t := make(tee, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			t = append(t, r)
		}
	}
	return t
}

func (t tee) RecordSuccess(action string, latency time.Duration) {
	for _, r := range t {
		r.RecordSuccess(action, latency)
	}
}

func (t tee) RecordError(action string, err error) {
	for _, r := range t {
		r.RecordError(action, err)
	}
}

func (t tee) StartSession(actorID string) {
	for _, r := range t {
		r.StartSession(actorID)
	}
}

func (t tee) EndSession(actorID string) {
	for _, r := range t {
		r.EndSession(actorID)
	}
}

func (t tee) IncrementSessionActions(actorID string) {
	for _, r := range t {
		r.IncrementSessionActions(actorID)
	}
}

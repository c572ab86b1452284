// Package metrics exposes live run counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loadsurge/internal/alert"
	"loadsurge/internal/stats"
)

const namespace = "loadsurge"

// Exporter is a stats.Recorder and a monitor sink backed by its own
// Prometheus registry.
type Exporter struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	actors    prometheus.Gauge
	sessions  prometheus.Counter
	resources *prometheus.GaugeVec
	alerts    *prometheus.CounterVec
}

func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Exporter{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Executed actions by name and outcome.",
		}, []string{"action", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Latency of successful actions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"action"}),
		actors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_actors",
			Help:      "Actors with an open session.",
		}),
		sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Actor sessions started.",
		}),
		resources: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resource_value",
			Help:      "Last polled resource value by kind.",
		}, []string{"kind"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Threshold alerts raised.",
		}, []string{"severity", "metric"}),
	}
}

func (e *Exporter) RecordSuccess(action string, latency time.Duration) {
	e.requests.WithLabelValues(action, "success").Inc()
	e.latency.WithLabelValues(action).Observe(latency.Seconds())
}

func (e *Exporter) RecordError(action string, _ error) {
	e.requests.WithLabelValues(action, "error").Inc()
}

func (e *Exporter) StartSession(string) {
	e.sessions.Inc()
	e.actors.Inc()
}

func (e *Exporter) EndSession(string) {
	e.actors.Dec()
}

func (e *Exporter) IncrementSessionActions(string) {}

func (e *Exporter) RecordResourceSnapshot(kind stats.ResourceKind, value float64) {
	e.resources.WithLabelValues(string(kind)).Set(value)
}

// ObserveAlert counts an alert. It fits alert.Manager's OnAlert hook.
func (e *Exporter) ObserveAlert(a alert.Alert) {
	e.alerts.WithLabelValues(string(a.Severity), a.Metric).Inc()
}

func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (e *Exporter) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("metrics endpoint listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

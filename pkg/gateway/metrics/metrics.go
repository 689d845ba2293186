// Package metrics exposes Prometheus metrics for sessions, turns and the
// upstream services they call. All Record methods are no-ops on a nil *Metrics.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/taskvoice/pkg/core"
	"github.com/vango-go/taskvoice/pkg/modelgw"
)

type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	TurnsTotal   *prometheus.CounterVec
	TurnDuration prometheus.Histogram

	ModelAttemptsTotal   *prometheus.CounterVec
	ModelAttemptDuration *prometheus.HistogramVec

	SyncTotal    *prometheus.CounterVec
	SyncDuration *prometheus.HistogramVec

	AudioBytesTotal *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "taskvoice"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of connected sessions",
	})
	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Total connection attempts by result",
	}, []string{"status"})
	sessionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_duration_seconds",
		Help:      "Session duration in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})
	turnsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Total turns by outcome",
	}, []string{"outcome"})
	turnDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "Turn duration in seconds, transcript to answer",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
	})
	modelAttemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_attempts_total",
		Help:      "Completion attempts by role, model and status (ok, empty or error kind)",
	}, []string{"role", "model", "status"})
	modelAttemptDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_attempt_duration_seconds",
		Help:      "Completion attempt duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"role"})
	syncTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_total",
		Help:      "Task dataset syncs by kind and status",
	}, []string{"kind", "status"})
	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_duration_seconds",
		Help:      "Task dataset sync duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"kind"})
	audioBytesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_bytes_total",
		Help:      "Audio bytes received from clients and sent to them",
	}, []string{"direction"})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		turnsTotal,
		turnDuration,
		modelAttemptsTotal,
		modelAttemptDuration,
		syncTotal,
		syncDuration,
		audioBytesTotal,
	)

	return &Metrics{
		registry:             registry,
		SessionsActive:       sessionsActive,
		SessionsTotal:        sessionsTotal,
		SessionDuration:      sessionDuration,
		TurnsTotal:           turnsTotal,
		TurnDuration:         turnDuration,
		ModelAttemptsTotal:   modelAttemptsTotal,
		ModelAttemptDuration: modelAttemptDuration,
		SyncTotal:            syncTotal,
		SyncDuration:         syncDuration,
		AudioBytesTotal:      audioBytesTotal,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSessionRejected() {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues("rejected").Inc()
}

func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.WithLabelValues("accepted").Inc()
}

func (m *Metrics) RecordSessionEnd(duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordTurn records a finished turn; outcome is "ok" or the failed stage.
func (m *Metrics) RecordTurn(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.TurnDuration.Observe(duration.Seconds())
	}
}

func (m *Metrics) RecordAudio(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// ObserveAttempt implements modelgw.Observer.
func (m *Metrics) ObserveAttempt(role modelgw.Role, model string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ModelAttemptsTotal.WithLabelValues(string(role), model, attemptStatus(err)).Inc()
	m.ModelAttemptDuration.WithLabelValues(string(role)).Observe(elapsed.Seconds())
}

// ObserveSync implements tasksync.SyncObserver.
func (m *Metrics) ObserveSync(full bool, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	kind := "delta"
	if full {
		kind = "full"
	}
	m.SyncTotal.WithLabelValues(kind, status(err)).Inc()
	m.SyncDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// attemptStatus is "ok", "empty" for a blank completion, or the error kind.
func attemptStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, modelgw.ErrEmptyResponse):
		return "empty"
	}
	return string(core.KindOf(err))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

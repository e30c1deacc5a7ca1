// Package metrics exposes Prometheus counters for the HTTP surface, command
// dispatch and backups.
//
// Metrics:
//   - medrec_http_requests_total: requests by method and status code
//   - medrec_http_request_duration_seconds: request latency by method
//   - medrec_commands_total: command invocations by command and result
//   - medrec_backups_total: backups by trigger and result
//   - medrec_patients: current number of stored patients
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/germanygsg/taurimedrec/internal/apperr"
	"github.com/germanygsg/taurimedrec/internal/commands"
	"github.com/germanygsg/taurimedrec/internal/monitoring"
)

const namespace = "medrec"

// ResultOK labels a command or backup that succeeded.
const ResultOK = "ok"

// Backup triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// unknownCommand replaces command names outside commands.Names so callers
// cannot grow the label set.
const unknownCommand = "unknown"

var logf = monitoring.Prefixed("metrics")

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry
	known    map[string]bool

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	commands     *prometheus.CounterVec
	backups      *prometheus.CounterVec
}

// New creates the collectors and registers them with registry. A nil
// registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		known:    make(map[string]bool),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of command invocations",
			},
			[]string{"command", "result"},
		),
		backups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_total",
				Help:      "Total number of store backups",
			},
			[]string{"trigger", "result"},
		),
	}
	for _, name := range commands.Names() {
		m.known[name] = true
	}

	registry.MustRegister(m.httpRequests, m.httpDuration, m.commands, m.backups)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RegisterPatientGauge exposes medrec_patients, sampled from count on every
// scrape. A failing count reports -1.
func (m *Metrics) RegisterPatientGauge(count func() (int64, error)) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "patients",
			Help:      "Current number of stored patients",
		},
		func() float64 {
			n, err := count()
			if err != nil {
				logf("failed to count patients: %v", err)
				return -1
			}
			return float64(n)
		},
	))
}

// ObserveCommand implements commands.Observer. The result label is "ok" or
// the error's kind.
func (m *Metrics) ObserveCommand(name string, err error) {
	if m == nil {
		return
	}
	if !m.known[name] {
		name = unknownCommand
	}
	m.commands.WithLabelValues(name, result(err)).Inc()
}

// ObserveBackup records one backup attempt.
func (m *Metrics) ObserveBackup(trigger string, err error) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(trigger, result(err)).Inc()
}

// ObserveHTTP records one completed request.
func (m *Metrics) ObserveHTTP(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware counts and times every request served by next.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.ObserveHTTP(r.Method, rec.code, time.Since(start))
	})
}

func result(err error) string {
	if err == nil {
		return ResultOK
	}
	return apperr.KindOf(err).String()
}

// Package metric provides Prometheus metrics for the settings registry.
//
// A Metrics value owns its collectors; Register attaches them to any
// prometheus.Registerer. All record methods are safe on a nil *Metrics so
// callers never need to check whether metrics are enabled.
package metric

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	perrors "github.com/dshills/plugreg/internal/errors"
)

const namespace = "plugreg"

// Metrics contains the registry's collectors.
type Metrics struct {
	// Backend metrics
	BackendOps      *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec

	// Registry metrics
	PluginLoads   *prometheus.CounterVec
	PluginsLoaded prometheus.Gauge
	SettingWrites *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

// New creates unregistered metrics.
func New() *Metrics {
	return &Metrics{
		BackendOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "operations_total",
				Help:      "Total number of backend operations",
			},
			[]string{"backend", "operation", "result"},
		),

		BackendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "operation_duration_seconds",
				Help:      "Backend operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),

		PluginLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "plugin_loads_total",
				Help:      "Total number of plugin descriptor loads",
			},
			[]string{"result"},
		),

		PluginsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "plugins_loaded",
			Help:      "Number of plugins currently loaded",
		}),

		SettingWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "setting_writes_total",
				Help:      "Total number of setting writes by outcome",
			},
			[]string{"result"},
		),

		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "notifications_total",
				Help:      "Total number of change notifications by source",
			},
			[]string{"source"},
		),
	}
}

// NewRegistered creates metrics and registers them with reg.
func NewRegistered(reg prometheus.Registerer) (*Metrics, error) {
	m := New()
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BackendOps,
		m.BackendDuration,
		m.PluginLoads,
		m.PluginsLoaded,
		m.SettingWrites,
		m.Notifications,
	}
}

// Register registers every collector with reg. Collectors that are
// already registered are reported as errors.ErrMalformed.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return perrors.E(perrors.ErrMalformed, "metric.register", err)
			}
			return fmt.Errorf("metric: register collector: %w", err)
		}
	}
	return nil
}

// Unregister removes every collector from reg.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

// RecordBackendOp records the outcome and duration of a backend call.
func (m *Metrics) RecordBackendOp(backend, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.BackendOps.WithLabelValues(backend, op, Result(err)).Inc()
	m.BackendDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// RecordPluginLoad records the outcome of loading one descriptor.
func (m *Metrics) RecordPluginLoad(err error) {
	if m == nil {
		return
	}
	m.PluginLoads.WithLabelValues(Result(err)).Inc()
}

// SetPluginsLoaded sets the loaded plugin gauge.
func (m *Metrics) SetPluginsLoaded(n int) {
	if m == nil {
		return
	}
	m.PluginsLoaded.Set(float64(n))
}

// RecordSettingWrite records a setting write. result is a SetResult name or
// the error kind when err is not nil.
func (m *Metrics) RecordSettingWrite(result string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		result = Result(err)
	}
	m.SettingWrites.WithLabelValues(result).Inc()
}

// RecordNotification counts one delivered change notification.
func (m *Metrics) RecordNotification(source string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(source).Inc()
}

// Result maps an error to a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, perrors.ErrNotSet):
		return "not_set"
	case errors.Is(err, perrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, perrors.ErrMalformed):
		return "malformed"
	case errors.Is(err, perrors.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, perrors.ErrReadOnly):
		return "read_only"
	case errors.Is(err, perrors.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, perrors.ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, perrors.ErrClosed):
		return "closed"
	default:
		return "io_failure"
	}
}

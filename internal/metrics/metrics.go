package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the board link counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FramesTotal     *prometheus.CounterVec
	TransportBytes  *prometheus.CounterVec
	TransportState  prometheus.Gauge
	ListenerErrors  *prometheus.CounterVec
	PinChanges      *prometheus.CounterVec
	ParserDropped   prometheus.Counter
	ComponentEvents *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New creates the metrics on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "boardlink",
				Subsystem: "codec",
				Name:      "frames_total",
				Help:      "Inbound frames by command kind and demux result (handled/ignored)",
			},
			[]string{"kind", "result"},
		),

		TransportBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "boardlink",
				Subsystem: "transport",
				Name:      "bytes_total",
				Help:      "Bytes moved over the transport",
			},
			[]string{"direction"},
		),

		TransportState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "boardlink",
				Subsystem: "transport",
				Name:      "state",
				Help:      "Connection state (0=connecting, 1=open, 2=closing, 3=closed)",
			},
		),

		ListenerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "boardlink",
				Subsystem: "events",
				Name:      "listener_errors_total",
				Help:      "Listener invocations that returned an error or panicked",
			},
			[]string{"event"},
		),

		PinChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "boardlink",
				Subsystem: "pins",
				Name:      "changes_total",
				Help:      "Pin value change events",
			},
			[]string{"pin"},
		),

		ParserDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "boardlink",
				Subsystem: "codec",
				Name:      "dropped_bytes_total",
				Help:      "Inbound bytes discarded as noise or truncated frames",
			},
		),

		ComponentEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "boardlink",
				Subsystem: "components",
				Name:      "events_total",
				Help:      "Events emitted by physical input/output components",
			},
			[]string{"component", "event"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "boardlink",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Monitor API requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "boardlink",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Monitor API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.FramesTotal,
		m.TransportBytes,
		m.TransportState,
		m.ListenerErrors,
		m.PinChanges,
		m.ParserDropped,
		m.ComponentEvents,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry to expose over HTTP
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Frame(kind, result string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) BytesIn(n int) {
	if m == nil {
		return
	}
	m.TransportBytes.WithLabelValues("in").Add(float64(n))
}

func (m *Metrics) BytesOut(n int) {
	if m == nil {
		return
	}
	m.TransportBytes.WithLabelValues("out").Add(float64(n))
}

func (m *Metrics) State(state int) {
	if m == nil {
		return
	}
	m.TransportState.Set(float64(state))
}

func (m *Metrics) ListenerError(event string) {
	if m == nil {
		return
	}
	m.ListenerErrors.WithLabelValues(event).Inc()
}

func (m *Metrics) PinChange(pin string) {
	if m == nil {
		return
	}
	m.PinChanges.WithLabelValues(pin).Inc()
}

func (m *Metrics) Dropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ParserDropped.Add(float64(n))
}

func (m *Metrics) ComponentEvent(component, event string) {
	if m == nil {
		return
	}
	m.ComponentEvents.WithLabelValues(component, event).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

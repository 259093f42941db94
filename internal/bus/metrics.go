package bus

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks bus activity.
//
// Metrics:
//   - baator_bus_events_published_total: events handed to Publish, by name
//   - baator_bus_events_delivered_total: successful subscriber calls, by name
//   - baator_bus_subscriber_failures_total: subscriber errors and panics, by name
//   - baator_bus_transport_fallbacks_total: events delivered locally after a transport failure
//   - baator_bus_queue_depth: events waiting in an async queue
//   - baator_bus_commands_total: command dispatches, by name and outcome
//
// A nil *Metrics records nothing.
type Metrics struct {
	publishedTotal *prometheus.CounterVec
	deliveredTotal *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
	fallbacksTotal prometheus.Counter
	queueDepth     prometheus.Gauge
	commandsTotal  *prometheus.CounterVec
}

// NewMetrics creates bus metrics and registers them with registry. A nil
// registry gets a fresh one.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		publishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "baator",
				Subsystem: "bus",
				Name:      "events_published_total",
				Help:      "Total number of events published",
			},
			[]string{"event"},
		),
		deliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "baator",
				Subsystem: "bus",
				Name:      "events_delivered_total",
				Help:      "Total number of successful subscriber deliveries",
			},
			[]string{"event"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "baator",
				Subsystem: "bus",
				Name:      "subscriber_failures_total",
				Help:      "Total number of subscriber errors and panics",
			},
			[]string{"event"},
		),
		fallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "baator",
				Subsystem: "bus",
				Name:      "transport_fallbacks_total",
				Help:      "Total number of events delivered locally after a transport failure",
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "baator",
				Subsystem: "bus",
				Name:      "queue_depth",
				Help:      "Number of events waiting in the async queue",
			},
		),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "baator",
				Subsystem: "bus",
				Name:      "commands_total",
				Help:      "Total number of command dispatches",
			},
			[]string{"command", "outcome"},
		),
	}

	registry.MustRegister(
		m.publishedTotal,
		m.deliveredTotal,
		m.failuresTotal,
		m.fallbacksTotal,
		m.queueDepth,
		m.commandsTotal,
	)
	return m
}

func (m *Metrics) published(name string) {
	if m != nil {
		m.publishedTotal.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) delivered(name string) {
	if m != nil {
		m.deliveredTotal.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) failed(name string) {
	if m != nil {
		m.failuresTotal.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) fallback() {
	if m != nil {
		m.fallbacksTotal.Inc()
	}
}

func (m *Metrics) queued(depth int) {
	if m != nil {
		m.queueDepth.Set(float64(depth))
	}
}

func (m *Metrics) command(name, outcome string) {
	if m != nil {
		m.commandsTotal.WithLabelValues(name, outcome).Inc()
	}
}

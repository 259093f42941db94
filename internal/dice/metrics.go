package dice

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts resolutions and individual dice terms.
//
// Metrics:
//   - baator_dice_resolutions_total: resolutions by outcome (ok, error, invalid)
//   - baator_dice_rolls_total: dice terms by outcome (fulfilled, failed)
type Metrics struct {
	resolutionsTotal *prometheus.CounterVec
	rollsTotal       *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "baator",
				Subsystem: "dice",
				Name:      "resolutions_total",
				Help:      "Total number of expression resolutions",
			},
			[]string{"outcome"},
		),
		rollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "baator",
				Subsystem: "dice",
				Name:      "rolls_total",
				Help:      "Total number of dice terms rolled",
			},
			[]string{"outcome"},
		),
	}
	registry.MustRegister(m.resolutionsTotal, m.rollsTotal)
	return m
}

func (m *Metrics) resolution(outcome string) {
	if m != nil {
		m.resolutionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) roll(outcome string) {
	if m != nil {
		m.rollsTotal.WithLabelValues(outcome).Inc()
	}
}

package bus

import (
	"io"

	"github.com/sirupsen/logrus"
)

type options struct {
	log       logrus.FieldLogger
	metrics   *Metrics
	transport Transport
}

// Option configures a bus.
type Option func(*options)

// WithLogger sets the diagnostic sink for subscriber failures and
// transport fallbacks.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records bus activity in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTransport hands published events to t. Local subscribers only see an
// event when t fails to send it.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}
	return o
}

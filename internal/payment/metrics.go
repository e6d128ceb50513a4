package payment

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts payment operations by outcome so dashboards can separate
// processor rejections from our own failures.
type Metrics struct {
	InitiateTotal *prometheus.CounterVec
	LookupTotal   *prometheus.CounterVec
	WebhookTotal  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		InitiateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_initiate_total",
			Help: "Payment initiation attempts by result.",
		}, []string{"result"}),
		LookupTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_lookup_total",
			Help: "Payment status lookups by result.",
		}, []string{"result"}),
		WebhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_webhook_total",
			Help: "Inbound payment webhooks by result.",
		}, []string{"result"}),
	}
}

// Register attaches the collectors to the registry, reusing collectors that
// are already registered so repeated wiring in tests stays safe. A nil
// registry means the default registerer.
func (m *Metrics) Register(reg prometheus.Registerer) {
	if m == nil {
		return
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m.InitiateTotal = registerCounterVec(reg, m.InitiateTotal)
	m.LookupTotal = registerCounterVec(reg, m.LookupTotal)
	m.WebhookTotal = registerCounterVec(reg, m.WebhookTotal)
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

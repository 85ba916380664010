package delivery

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "delivery"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of order lines moved to Delivered.
	DeliveredLines metrics.Counter
	// Number of delivery codes issued.
	CodesIssued metrics.Counter
	// Number of freshly drawn codes that were already taken.
	CodeCollisions metrics.Counter
	// Number of code verifications, labeled by result.
	CodeVerifications metrics.Counter
	// Number of single-use codes spent.
	CodesConsumed metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		DeliveredLines: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "delivered_lines",
			Help:      "Number of order lines marked delivered.",
		}, []string{}),
		CodesIssued: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "codes_issued",
			Help:      "Number of delivery codes issued.",
		}, []string{}),
		CodeCollisions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "code_collisions",
			Help:      "Number of generated delivery codes that were already issued.",
		}, []string{}),
		CodeVerifications: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "code_verifications",
			Help:      "Number of delivery code verifications by result.",
		}, []string{"result"}),
		CodesConsumed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "codes_consumed",
			Help:      "Number of single-use delivery codes spent.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		DeliveredLines:    discard.NewCounter(),
		CodesIssued:       discard.NewCounter(),
		CodeCollisions:    discard.NewCounter(),
		CodeVerifications: discard.NewCounter(),
		CodesConsumed:     discard.NewCounter(),
	}
}

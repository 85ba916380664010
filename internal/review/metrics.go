package review

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "review"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of reviews committed to the local store.
	Commits metrics.Counter
	// Number of submissions refused before commit, labeled by reason.
	Refusals metrics.Counter
	// Number of attestation attempts, labeled by status and cause.
	Attestations metrics.Counter
	// Time spent attesting a review, in seconds.
	AttestationSeconds metrics.Histogram
	// Number of images that could not be stored and were left out.
	ImageFailures metrics.Counter
	// Number of reviews deleted.
	Deletions metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Commits: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "commits",
			Help:      "Number of reviews committed locally.",
		}, []string{}),
		Refusals: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "refusals",
			Help:      "Number of review submissions refused before commit.",
		}, []string{"reason"}),
		Attestations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "attestations",
			Help:      "Number of attestation attempts by outcome.",
		}, []string{"status", "cause"}),
		AttestationSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "attestation_seconds",
			Help:      "Time spent storing and anchoring a review.",
			Buckets:   stdprometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{}),
		ImageFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "image_failures",
			Help:      "Number of review images that could not be stored.",
		}, []string{}),
		Deletions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "deletions",
			Help:      "Number of reviews deleted.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Commits:            discard.NewCounter(),
		Refusals:           discard.NewCounter(),
		Attestations:       discard.NewCounter(),
		AttestationSeconds: discard.NewHistogram(),
		ImageFailures:      discard.NewCounter(),
		Deletions:          discard.NewCounter(),
	}
}

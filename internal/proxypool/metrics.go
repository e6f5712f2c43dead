package proxypool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors of the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	decisions   *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	fetchTime   prometheus.Histogram
}

// NewMetrics registers the engine collectors with r under namespace.
// A nil r registers them with a private registry that is discarded.
func NewMetrics(r prometheus.Registerer, namespace string) *Metrics {
	if r == nil {
		r = prometheus.NewRegistry()
	}
	f := promauto.With(r)

	return &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_decisions_total",
			Help:      "Number of proxy decisions by outcome",
		}, []string{"outcome"}),
		fetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_pool_fetch_errors_total",
			Help:      "Number of failed proxy pool fetches by reason",
		}, []string{"reason"}),
		fetchTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proxy_pool_fetch_duration_seconds",
			Help:      "Duration of proxy pool fetches",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeDecision(o Outcome) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) observeFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchTime.Observe(d.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(reason(err)).Inc()
	}
}

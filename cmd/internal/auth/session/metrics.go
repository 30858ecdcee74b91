package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the session collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	verifications   *prometheus.CounterVec
	verifySeconds   prometheus.Histogram
	triggersDropped prometheus.Counter
	staleResults    prometheus.Counter
	authenticated   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered, which suits tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobmarket",
			Subsystem: "session",
			Name:      "verifications_total",
			Help:      "Token verifications by outcome.",
		}, []string{"outcome"}),
		verifySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jobmarket",
			Subsystem: "session",
			Name:      "verification_seconds",
			Help:      "Latency of token verification calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		triggersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobmarket",
			Subsystem: "session",
			Name:      "triggers_dropped_total",
			Help:      "Revalidation triggers dropped because a check was in flight or no session existed.",
		}),
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobmarket",
			Subsystem: "session",
			Name:      "stale_results_total",
			Help:      "Verification results discarded because the session changed while they were in flight.",
		}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jobmarket",
			Subsystem: "session",
			Name:      "authenticated",
			Help:      "1 while a session is active, 0 otherwise.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.verifications, m.verifySeconds, m.triggersDropped, m.staleResults, m.authenticated,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeVerification(o Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(o.String()).Inc()
	m.verifySeconds.Observe(d.Seconds())
}

func (m *Metrics) triggerDropped() {
	if m == nil {
		return
	}
	m.triggersDropped.Inc()
}

func (m *Metrics) staleResult() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}

func (m *Metrics) setAuthenticated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.authenticated.Set(1)
		return
	}
	m.authenticated.Set(0)
}

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics records outcomes of voucher provider API calls.
type ProviderMetrics struct {
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewProviderMetrics registers provider-call metrics on the provided registerer.
func NewProviderMetrics(reg prometheus.Registerer) *ProviderMetrics {
	if reg == nil {
		return &ProviderMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wlc",
		Subsystem: "provider",
		Name:      "call_duration_seconds",
		Help:      "Duration of voucher provider HTTP calls in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wlc",
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Voucher provider HTTP calls by method and status code.",
	}, []string{"method", "status"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wlc",
		Subsystem: "provider",
		Name:      "ambiguous_retries_total",
		Help:      "Retries triggered by ambiguous provider errors.",
	}, []string{"method"})
	reg.MustRegister(duration, calls, retries)
	return &ProviderMetrics{
		duration: duration,
		calls:    calls,
		retries:  retries,
	}
}

// ObserveCall records a single provider round trip.
func (p *ProviderMetrics) ObserveCall(method string, status int, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	method = normalizeLabel(method)
	p.duration.WithLabelValues(method).Observe(duration.Seconds())
	p.calls.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// IncAmbiguousRetry counts a retry caused by an UNKNOWN_ERROR response.
func (p *ProviderMetrics) IncAmbiguousRetry(method string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(normalizeLabel(method)).Inc()
}

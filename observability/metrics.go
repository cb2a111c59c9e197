package observability

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks the credit and loan lifecycle counters exposed on the
// metrics endpoint.
type EngineMetrics struct {
	loansCreated      prometheus.Counter
	loansRepaid       prometheus.Counter
	loansLiquidated   prometheus.Counter
	graceStarted      prometheus.Counter
	graceCancelled    prometheus.Counter
	insuranceBalance  prometheus.Gauge
	insurancePayouts  prometheus.Counter
	badDebt           prometheus.Counter
	scoreDistribution prometheus.Histogram
}

// HTTPMetrics tracks the public RPC surface.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics

	httpOnce     sync.Once
	httpRegistry *HTTPMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			loansCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditnet",
				Subsystem: "loan",
				Name:      "created_total",
				Help:      "Total loans originated.",
			}),
			loansRepaid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditnet",
				Subsystem: "loan",
				Name:      "repaid_total",
				Help:      "Total loans fully repaid.",
			}),
			loansLiquidated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditnet",
				Subsystem: "loan",
				Name:      "liquidated_total",
				Help:      "Total loans liquidated.",
			}),
			graceStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditnet",
				Subsystem: "loan",
				Name:      "grace_started_total",
				Help:      "Grace periods opened on unhealthy positions.",
			}),
			graceCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditnet",
				Subsystem: "loan",
				Name:      "grace_cancelled_total",
				Help:      "Grace periods cancelled by health recovery.",
			}),
			insuranceBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "creditnet",
				Subsystem: "insurance",
				Name:      "balance_usd",
				Help:      "Current insurance fund balance in USD.",
			}),
			insurancePayouts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditnet",
				Subsystem: "insurance",
				Name:      "payouts_total",
				Help:      "Coverage payouts executed against liquidation shortfalls.",
			}),
			badDebt: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditnet",
				Subsystem: "insurance",
				Name:      "bad_debt_total",
				Help:      "Shortfalls the fund could not cover.",
			}),
			scoreDistribution: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "creditnet",
				Subsystem: "score",
				Name:      "overall",
				Help:      "Distribution of overall credit scores served.",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			}),
		}
		prometheus.MustRegister(
			engineRegistry.loansCreated,
			engineRegistry.loansRepaid,
			engineRegistry.loansLiquidated,
			engineRegistry.graceStarted,
			engineRegistry.graceCancelled,
			engineRegistry.insuranceBalance,
			engineRegistry.insurancePayouts,
			engineRegistry.badDebt,
			engineRegistry.scoreDistribution,
		)
	})
	return engineRegistry
}

// HTTP returns the lazily-initialised RPC metrics registry.
func HTTP() *HTTPMetrics {
	httpOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditnet",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route and status class.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "creditnet",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution of HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency)
	})
	return httpRegistry
}

func (m *EngineMetrics) LoanCreated() {
	if m == nil {
		return
	}
	m.loansCreated.Inc()
}

func (m *EngineMetrics) LoanRepaid() {
	if m == nil {
		return
	}
	m.loansRepaid.Inc()
}

func (m *EngineMetrics) LoanLiquidated() {
	if m == nil {
		return
	}
	m.loansLiquidated.Inc()
}

func (m *EngineMetrics) GraceStarted() {
	if m == nil {
		return
	}
	m.graceStarted.Inc()
}

func (m *EngineMetrics) GraceCancelled() {
	if m == nil {
		return
	}
	m.graceCancelled.Inc()
}

func (m *EngineMetrics) InsurancePayout() {
	if m == nil {
		return
	}
	m.insurancePayouts.Inc()
}

func (m *EngineMetrics) BadDebt() {
	if m == nil {
		return
	}
	m.badDebt.Inc()
}

// SetInsuranceBalance records the current fund balance, clamping values that
// do not fit a float.
func (m *EngineMetrics) SetInsuranceBalance(balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	value, _ := new(big.Float).SetInt(balance).Float64()
	m.insuranceBalance.Set(value)
}

// ObserveScore records an overall score served to a caller.
func (m *EngineMetrics) ObserveScore(overall uint64) {
	if m == nil {
		return
	}
	m.scoreDistribution.Observe(float64(overall))
}

// ObserveRequest records one handled HTTP request.
func (m *HTTPMetrics) ObserveRequest(route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, status).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

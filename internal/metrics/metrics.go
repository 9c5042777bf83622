// Registers on a dedicated registry:
//
//	#fundingwatch_fetch_attempts_total{exchange,endpoint,result}
//	#fundingwatch_fetch_duration_seconds{exchange,endpoint}
//	#fundingwatch_cycle_duration_seconds
//	#fundingwatch_cycle_symbols / _cycle_errors / _max_abs_diff
//	#fundingwatch_used_weight{exchange}
//	#go_* and process_* system metrics
//
// Exposed through Handler, which the dashboard mounts on /metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	fetchAttempts *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	cycleDuration prometheus.Histogram
	cycleSymbols  prometheus.Gauge
	cycleErrors   prometheus.Gauge
	maxAbsDiff    prometheus.Gauge
	usedWeight    *prometheus.GaugeVec
)

// Init builds the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		fetchAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundingwatch_fetch_attempts_total",
				Help: "Funding rate endpoint attempts by result (ok or failure reason)",
			},
			[]string{"exchange", "endpoint", "result"},
		)
		fetchDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fundingwatch_fetch_duration_seconds",
				Help:    "Latency of a single funding rate endpoint attempt",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"exchange", "endpoint"},
		)
		cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundingwatch_cycle_duration_seconds",
			Help:    "Wall time of a full reconciliation cycle",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		})
		cycleSymbols = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingwatch_cycle_symbols",
			Help: "Symbols processed in the last cycle",
		})
		cycleErrors = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingwatch_cycle_errors",
			Help: "Symbols missing a rate on either exchange in the last cycle",
		})
		maxAbsDiff = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingwatch_max_abs_diff",
			Help: "Largest absolute funding rate difference in the last cycle",
		})
		usedWeight = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fundingwatch_used_weight",
				Help: "Request weight consumed as reported by the exchange",
			},
			[]string{"exchange"},
		)

		registry.MustRegister(
			fetchAttempts,
			fetchDuration,
			cycleDuration,
			cycleSymbols,
			cycleErrors,
			maxAbsDiff,
			usedWeight,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Registry returns the registry the collectors live on.
func Registry() *prometheus.Registry {
	Init()
	return registry
}

// Handler serves the Prometheus exposition format for Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

// ObserveFetch records one endpoint attempt. result is "ok" or a failure reason.
func ObserveFetch(exchange, endpoint, result string, d time.Duration) {
	Init()
	fetchAttempts.WithLabelValues(exchange, endpoint, result).Inc()
	fetchDuration.WithLabelValues(exchange, endpoint).Observe(d.Seconds())
}

// ObserveCycle records the summary of a completed reconciliation cycle.
func ObserveCycle(total, errors int, maxDiff float64, d time.Duration) {
	Init()
	cycleDuration.Observe(d.Seconds())
	cycleSymbols.Set(float64(total))
	cycleErrors.Set(float64(errors))
	maxAbsDiff.Set(maxDiff)
}

func SetUsedWeight(exchange string, used float64) {
	Init()
	usedWeight.WithLabelValues(exchange).Set(used)
}

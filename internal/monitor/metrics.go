package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector holds the Prometheus instruments for the collection
// pipeline.
type MetricsCollector struct {
	runsTotal      *prometheus.CounterVec
	ticksSkipped   *prometheus.CounterVec
	storeOutcomes  *prometheus.CounterVec
	exchangeErrors *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	alertState     *prometheus.GaugeVec
}

// NewMetricsCollector creates and registers all pipeline metrics.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundscope",
			Name:      "runs_total",
			Help:      "Collection runs by symbol and terminal status",
		}, []string{"symbol", "status"}),
		ticksSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundscope",
			Name:      "ticks_skipped_total",
			Help:      "Scheduler ticks dropped because a run was still in flight",
		}, []string{"symbol"}),
		storeOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundscope",
			Name:      "store_outcomes_total",
			Help:      "Sink store outcomes by symbol",
		}, []string{"symbol", "outcome"}),
		exchangeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundscope",
			Name:      "exchange_errors_total",
			Help:      "Exchange fetch failures by exchange and error code",
		}, []string{"exchange", "code"}),
		runDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fundscope",
			Name:      "run_duration_seconds",
			Help:      "End-to-end collection run duration",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"symbol"}),
		alertState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fundscope",
			Name:      "alert_state",
			Help:      "1 while a symbol has exhausted its retry budget, 0 otherwise",
		}, []string{"symbol"}),
	}
}

// ObserveRun records one finished collection run.
func (m *MetricsCollector) ObserveRun(symbol, status string, elapsed time.Duration) {
	m.runsTotal.WithLabelValues(symbol, status).Inc()
	m.runDuration.WithLabelValues(symbol).Observe(elapsed.Seconds())
}

// ObserveTickSkipped records a scheduler tick dropped due to an in-flight run.
func (m *MetricsCollector) ObserveTickSkipped(symbol string) {
	m.ticksSkipped.WithLabelValues(symbol).Inc()
}

// ObserveStore records a sink store outcome.
func (m *MetricsCollector) ObserveStore(symbol string, outcome string) {
	m.storeOutcomes.WithLabelValues(symbol, outcome).Inc()
}

// ObserveExchangeError records an exchange fetch failure.
func (m *MetricsCollector) ObserveExchangeError(exchange, code string) {
	m.exchangeErrors.WithLabelValues(exchange, code).Inc()
}

// SetAlert raises or clears the per-symbol alert gauge.
func (m *MetricsCollector) SetAlert(symbol string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.alertState.WithLabelValues(symbol).Set(v)
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// prometheusMetrics holds the exported pipeline collectors.
type prometheusMetrics struct {
	detected      prometheus.Counter
	deduplicated  prometheus.Counter
	validated     prometheus.Counter
	simulated     prometheus.Counter
	executed      prometheus.Counter
	failed        prometheus.Counter
	blockedByRisk prometheus.Counter
	blockedByGas  prometheus.Counter
	superseded    prometheus.Counter

	totalProfit prometheus.Gauge
	gasPrice    prometheus.Gauge
	balance     prometheus.Gauge

	latency *prometheus.HistogramVec
}

func newPrometheusMetrics(registerer prometheus.Registerer) *prometheusMetrics {
	factory := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arb_engine",
			Name:      name,
			Help:      help,
		})
		registerer.MustRegister(c)
		return c
	}

	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arb_engine",
			Name:      name,
			Help:      help,
		})
		registerer.MustRegister(g)
		return g
	}

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arb_engine",
		Name:      "operation_latency_seconds",
		Help:      "Latency of pipeline operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	registerer.MustRegister(latency)

	return &prometheusMetrics{
		detected:      factory("opportunities_detected_total", "Candidate opportunities emitted by the scanner"),
		deduplicated:  factory("opportunities_deduplicated_total", "Opportunities suppressed by the dedup cache"),
		validated:     factory("opportunities_validated_total", "Opportunities passing re-validation"),
		simulated:     factory("opportunities_simulated_total", "Opportunities passing the dry run"),
		executed:      factory("trades_executed_total", "Successful broadcasts"),
		failed:        factory("trades_failed_total", "Failed simulations and broadcasts"),
		blockedByRisk: factory("blocked_by_risk_total", "Opportunities refused by the risk controller"),
		blockedByGas:  factory("blocked_by_gas_total", "Opportunities refused by the gas gates"),
		superseded:    factory("opportunities_superseded_total", "Opportunities cancelled by a newer scan cycle"),
		totalProfit:   gauge("total_profit_wei", "Cumulative realized profit and loss in wei"),
		gasPrice:      gauge("gas_price_gwei", "Last observed gas price in gwei"),
		balance:       gauge("executor_balance_wei", "Executor balance in wei"),
		latency:       latency,
	}
}

// PrometheusHandler returns an HTTP handler serving the default registry.
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// StartPrometheusServer serves the metrics endpoint on addr.
func StartPrometheusServer(addr string) error {
	http.Handle("/metrics", PrometheusHandler())
	return http.ListenAndServe(addr, nil)
}

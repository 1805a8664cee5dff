package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/todmy/isoforest/pkg/iforest"
)

var (
	fitDurationMetrics = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "iforest_fit_duration_seconds",
			Help:    "Wall time of forest fits, successful or not",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4.4min
		},
	)

	fitTotalMetrics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iforest_fits_total",
			Help: "Total number of forest fits by result",
		}, []string{"result"},
	)

	treesBuiltMetrics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "iforest_trees_built_total",
			Help: "Total number of isolation trees built by successful fits",
		},
	)

	rowsScoredMetrics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "iforest_rows_scored_total",
			Help: "Total number of rows submitted for scoring",
		},
	)

	rowErrorMetrics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "iforest_row_errors_total",
			Help: "Total number of rows rejected during scoring",
		},
	)
)

func init() {
	prometheus.MustRegister(
		fitDurationMetrics,
		fitTotalMetrics,
		treesBuiltMetrics,
		rowsScoredMetrics,
		rowErrorMetrics,
	)
}

// MetricsObserver records forest activity in the default Prometheus registry.
type MetricsObserver struct{}

func (MetricsObserver) FitStarted(iforest.FitInfo) {}

func (MetricsObserver) FitFinished(info iforest.FitInfo, elapsed time.Duration, err error) {
	fitDurationMetrics.Observe(elapsed.Seconds())
	if err != nil {
		fitTotalMetrics.WithLabelValues("error").Inc()
		return
	}
	fitTotalMetrics.WithLabelValues("ok").Inc()
	treesBuiltMetrics.Add(float64(info.Trees))
}

func (MetricsObserver) Scored(rows int, _ time.Duration) {
	rowsScoredMetrics.Add(float64(rows))
}

func (MetricsObserver) RowRejected(int, error) {
	rowErrorMetrics.Inc()
}

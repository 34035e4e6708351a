package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helios_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helios_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Cycle metrics
	CycleOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_cycle_outcomes_total",
			Help: "Total number of completed trading cycles by outcome",
		},
		[]string{"ticker", "outcome"}, // outcome: EXECUTED|HELD|ABORTED|FAILED
	)

	CyclesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "helios_cycles_in_flight",
			Help: "Number of trading cycles currently running",
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helios_stage_duration_seconds",
			Help:    "Trading cycle stage duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// Reasoning metrics
	ReasoningCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_reasoning_calls_total",
			Help: "Total number of reasoning calls",
		},
		[]string{"role", "status"}, // status: success|error
	)

	ReasoningLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helios_reasoning_latency_seconds",
			Help:    "Reasoning call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"role"},
	)

	ValidationRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_validation_retries_total",
			Help: "Total number of reasoning output validation retries",
		},
		[]string{"role"},
	)

	// Market API metrics
	MarketAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_market_api_calls_total",
			Help: "Total number of market API calls",
		},
		[]string{"provider", "endpoint", "status"}, // status: success|error
	)

	MarketAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helios_market_api_latency_seconds",
			Help:    "Market API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "endpoint"},
	)

	// Risk metrics
	ReviewRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_review_rejections_total",
			Help: "Total number of proposals rejected at review",
		},
		[]string{"ticker", "reason"}, // reason: concentration|exposure|confidence|manager
	)

	TradesSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helios_trades_submitted_total",
			Help: "Total number of trades submitted for execution",
		},
		[]string{"ticker", "action", "status"},
	)
)

// Init registers all metrics with the default Prometheus registry.
// Call once from main before serving the metrics endpoint.
func Init() {
	// Worker metrics
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	// Cycle metrics
	prometheus.MustRegister(CycleOutcomes)
	prometheus.MustRegister(CyclesInFlight)
	prometheus.MustRegister(StageDuration)

	// Reasoning metrics
	prometheus.MustRegister(ReasoningCalls)
	prometheus.MustRegister(ReasoningLatency)
	prometheus.MustRegister(ValidationRetries)

	// Market API metrics
	prometheus.MustRegister(MarketAPICalls)
	prometheus.MustRegister(MarketAPILatency)

	// Risk metrics
	prometheus.MustRegister(ReviewRejections)
	prometheus.MustRegister(TradesSubmitted)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordReasoningCall records a reasoning port invocation
func RecordReasoningCall(role string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ReasoningCalls.WithLabelValues(role, status).Inc()
	ReasoningLatency.WithLabelValues(role).Observe(latency.Seconds())
}

// RecordMarketAPICall records a market data or brokerage API call
func RecordMarketAPICall(provider, endpoint string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	MarketAPICalls.WithLabelValues(provider, endpoint, status).Inc()
	MarketAPILatency.WithLabelValues(provider, endpoint).Observe(latency.Seconds())
}

// RecordStageDuration records how long a cycle stage took
func RecordStageDuration(stage string, duration time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordCycleOutcome records a finished trading cycle
func RecordCycleOutcome(ticker, outcome string) {
	CycleOutcomes.WithLabelValues(ticker, outcome).Inc()
}

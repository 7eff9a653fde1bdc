package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChainReadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaos_chain_read_duration_seconds",
			Help:    "Duration of eth_call reads in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	ChainReadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaos_chain_read_errors_total",
			Help: "The total number of failed eth_call reads that fell back to a previous or zero value",
		},
		[]string{"method"},
	)

	AggregationCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaos_aggregation_cycles_total",
			Help: "The total number of dashboard aggregation cycles",
		},
		[]string{"status"},
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chaos_aggregation_duration_seconds",
			Help:    "Duration of a full dashboard aggregation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TotalStaked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chaos_total_staked_tokens",
			Help: "Total CHAOS staked at the hub, in whole tokens",
		},
	)

	HubAPR = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chaos_hub_apr_percent",
			Help: "Hub APR in percent",
		},
	)

	LiveGauges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chaos_live_gauges",
			Help: "Number of reward gauges currently streaming",
		},
	)

	GaugeInAssetAPR = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chaos_gauge_in_asset_apr",
			Help: "Reward tokens per staked CHAOS per year, by gauge",
		},
		[]string{"symbol"},
	)

	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaos_transactions_submitted_total",
			Help: "The total number of staking transactions submitted, by action and outcome",
		},
		[]string{"action", "status"},
	)

	SnapshotsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaos_snapshots_recorded_total",
			Help: "The total number of view-model snapshots written to storage",
		},
		[]string{"status"},
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chaos_stream_subscribers",
			Help: "Number of connected view-model stream clients",
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaos_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)
)

func RecordAPIRequest(endpoint, method string, status int, duration float64) {
	APIRequestDuration.WithLabelValues(endpoint, method, strconv.Itoa(status)).Observe(duration)
}

func RecordChainRead(method string, duration float64, success bool) {
	ChainReadDuration.WithLabelValues(method).Observe(duration)
	if !success {
		ChainReadErrors.WithLabelValues(method).Inc()
	}
}

func RecordCycle(duration float64, status string) {
	AggregationDuration.Observe(duration)
	AggregationCycles.WithLabelValues(status).Inc()
}

func UpdateDashboard(totalStaked, hubAPR float64, liveGauges int) {
	TotalStaked.Set(totalStaked)
	HubAPR.Set(hubAPR)
	LiveGauges.Set(float64(liveGauges))
}

func UpdateGaugeAPR(symbol string, apr float64) {
	GaugeInAssetAPR.WithLabelValues(symbol).Set(apr)
}

func RecordTransaction(action, status string) {
	TransactionsSubmitted.WithLabelValues(action, status).Inc()
}

func RecordSnapshot(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	SnapshotsRecorded.WithLabelValues(status).Inc()
}

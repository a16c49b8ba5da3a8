package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SwapsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archerswap_swaps_submitted_total",
		Help: "Number of swap transactions handed to the signer",
	})

	RelayPosts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archerswap_relay_posts_total",
		Help: "Number of archer_submitTx posts to the relay",
	})

	RelayErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archerswap_relay_errors_total",
		Help: "Number of failed relay HTTP calls",
	})

	BundleReposts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archerswap_bundle_reposts_total",
		Help: "Number of eth_sendBundle re-posts for pending relay transactions",
	})

	ReceiptChecks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archerswap_receipt_checks_total",
		Help: "Number of receipt lookups performed by the tracker",
	})

	TxFinalized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archerswap_tx_finalized_total",
		Help: "Number of transactions that reached a terminal receipt",
	})

	PendingTxs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "archerswap_pending_transactions",
		Help: "Transactions currently waiting for a receipt",
	})

	EstimateLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "archerswap_estimate_latency_seconds",
		Help:    "Time to estimate gas across all candidate calls",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		SwapsSubmitted,
		RelayPosts,
		RelayErrors,
		BundleReposts,
		ReceiptChecks,
		TxFinalized,
		PendingTxs,
		EstimateLatency,
	)
}

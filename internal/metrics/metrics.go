package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ViewsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_views_recorded_total",
			Help: "Views accepted and counted against the daily quota",
		},
	)
	ViewsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_views_rejected_total",
			Help: "Views refused, by reason",
		},
		[]string{"reason"},
	)
	BoxesAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_boxes_awarded_total",
			Help: "Treasure boxes issued",
		},
	)
	BoxesOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_boxes_opened_total",
			Help: "Treasure boxes opened and paid out",
		},
	)
	CoinsCredited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_coins_credited_total",
			Help: "Coins credited to user balances from opened boxes",
		},
	)
	QuotaResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_quota_resets_total",
			Help: "Per-user daily resets, by result",
		},
		[]string{"result"},
	)
	ResetTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_reset_ticks_total",
			Help: "Reset scheduler ticks, by outcome",
		},
		[]string{"outcome"},
	)
	ResetTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reward_reset_tick_duration_seconds",
			Help:    "Wall time of a reset scheduler tick",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)
	TxConflictRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_tx_conflict_retries_total",
			Help: "Transactions retried after a serialization failure or deadlock",
		},
		[]string{"operation"},
	)

	RLRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_requests_total",
			Help: "Total requests seen by the rate limiter",
		},
		[]string{"limiter", "endpoint"},
	)
	RLBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_blocked_total",
			Help: "Total requests blocked by the rate limiter",
		},
		[]string{"limiter", "endpoint"},
	)
)

func init() {
	prometheus.MustRegister(ViewsRecorded)
	prometheus.MustRegister(ViewsRejected)
	prometheus.MustRegister(BoxesAwarded)
	prometheus.MustRegister(BoxesOpened)
	prometheus.MustRegister(CoinsCredited)
	prometheus.MustRegister(QuotaResets)
	prometheus.MustRegister(ResetTicks)
	prometheus.MustRegister(ResetTickDuration)
	prometheus.MustRegister(TxConflictRetries)
	prometheus.MustRegister(RLRequests)
	prometheus.MustRegister(RLBlocked)
}

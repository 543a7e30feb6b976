package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_purchases_total",
		Help: "Total number of purchase flow executions by item type and outcome",
	}, []string{"type", "outcome"})

	PurchasePartialFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_purchase_partial_failures_total",
		Help: "Two-step purchases whose first step committed before the second failed",
	}, []string{"step", "compensated"})

	PurchaseLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shop_purchase_latency_seconds",
		Help:    "Latency of purchase execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	UpsellPromptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_upsell_prompts_total",
		Help: "Total number of ad upsell prompts shown for insufficient gems",
	})

	RefDataFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_refdata_fetches_total",
		Help: "Reference data fetches by resource and outcome",
	}, []string{"resource", "outcome"})

	AdClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_ad_claims_total",
		Help: "Ad reward claims by reward type and outcome",
	}, []string{"reward_type", "outcome"})

	AdClaimLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shop_ad_claim_latency_seconds",
		Help:    "Latency of ad reward claim calls",
		Buckets: prometheus.DefBuckets,
	})

	BoosterActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_booster_activations_total",
		Help: "Booster activations by outcome",
	}, []string{"outcome"})

	ProfileRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_profile_refreshes_total",
		Help: "Authoritative profile refreshes by trigger",
	}, []string{"trigger"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

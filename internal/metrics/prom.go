// Package metrics holds the prometheus collectors of the bidding server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Bid outcomes used as the "outcome" label.
const (
	OutcomeWon     = "won"
	OutcomeNoBid   = "no_bid"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
)

var (
	BidsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bidding_bids_total", Help: "Bid requests by outcome"},
		[]string{"outcome"},
	)
	BidLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bidding_bid_latency_seconds",
		Help:    "Time spent placing a bid",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})
	SpendingTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bidding_spending_total",
		Help: "Sum of amounts spent by won bids",
	})
	CampaignsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bidding_campaigns_created_total",
		Help: "Campaigns created through the API",
	})
	EventPublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bidding_event_publish_failures_total",
		Help: "Won-bid events that could not be published",
	})
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{BidsTotal, BidLatency, SpendingTotal, CampaignsCreated, EventPublishFailures}
}

// NewRegistry returns a registry holding every collector of this package.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		reg.MustRegister(c)
	}

	return reg
}

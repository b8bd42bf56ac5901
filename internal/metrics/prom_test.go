package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryGathersEveryCollector(t *testing.T) {
	BidsTotal.WithLabelValues(OutcomeWon).Add(0)

	reg := NewRegistry()

	n, err := testutil.GatherAndCount(reg,
		"bidding_bids_total",
		"bidding_bid_latency_seconds",
		"bidding_spending_total",
		"bidding_campaigns_created_total",
		"bidding_event_publish_failures_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// A second registry must accept the same collectors.
	assert.NotPanics(t, func() { NewRegistry() })
}

package stress

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	var sorted []time.Duration
	for i := 1; i <= 20; i++ {
		sorted = append(sorted, time.Duration(i)*time.Millisecond)
	}

	assert.Equal(t, 10*time.Millisecond, percentile(sorted, 0.50))
	assert.Equal(t, 19*time.Millisecond, percentile(sorted, 0.95))
	assert.Equal(t, time.Millisecond, percentile(sorted, 0))
	assert.Equal(t, 20*time.Millisecond, percentile(sorted, 1))
	assert.Equal(t, time.Duration(0), percentile(nil, 0.5))
}

func TestCollectorSummary(t *testing.T) {
	c := newCollector()
	c.add(Result{BidID: 1, StatusCode: 200, Elapsed: 30 * time.Millisecond})
	c.add(Result{BidID: 2, StatusCode: 204, Elapsed: 10 * time.Millisecond})
	c.add(Result{BidID: 3, StatusCode: 500, Elapsed: 20 * time.Millisecond})
	c.add(Result{BidID: 4, Err: errors.New("connection refused")})

	s := c.summary(time.Second)

	assert.Equal(t, 4, s.Attempted)
	assert.Equal(t, 3, s.Completed)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 2, s.Succeeded())
	assert.Equal(t, 10*time.Millisecond, s.Min)
	assert.Equal(t, 20*time.Millisecond, s.P50)
	assert.Equal(t, 30*time.Millisecond, s.P95)
	assert.Equal(t, 30*time.Millisecond, s.Max)
	assert.InDelta(t, 3.0, s.RequestsPerSecond(), 1e-9)

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))

	out := buf.String()
	assert.Contains(t, out, "attempted: 4  completed: 3  errors: 1")
	assert.Contains(t, out, "status 200: 1")
	assert.Contains(t, out, "status 500: 1")
	assert.Contains(t, out, "p50 20ms")
}

func TestEmptySummary(t *testing.T) {
	s := newCollector().summary(0)

	assert.Equal(t, 0, s.Completed)
	assert.Zero(t, s.RequestsPerSecond())

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))
	assert.NotContains(t, buf.String(), "latency")
}

func TestResultString(t *testing.T) {
	ok := Result{BidID: 3, Status: "200 OK", StatusCode: 200, Elapsed: 1500 * time.Microsecond}
	assert.Equal(t, "bid 3: 200 OK - 0.001500", ok.String())

	failed := Result{BidID: 4, Err: errors.New("boom")}
	assert.Equal(t, "bid 4: error - boom", failed.String())
}

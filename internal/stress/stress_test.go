package stress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu         sync.Mutex
	payloads   []Payload
	requestIDs []string
	types      []string
}

func (rec *recorder) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		rec.mu.Lock()
		rec.payloads = append(rec.payloads, p)
		rec.requestIDs = append(rec.requestIDs, r.Header.Get(RequestIDHeader))
		rec.types = append(rec.types, r.Header.Get("Content-Type"))
		rec.mu.Unlock()

		w.WriteHeader(status)
	}
}

func TestRunSubmitsEveryBid(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = srv.URL + "/bids"
	cfg.Count = 8
	cfg.Stagger = time.Millisecond

	var out bytes.Buffer

	summary, err := NewRunner(cfg, WithOutput(&out)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Attempted)
	assert.Equal(t, 8, summary.Completed)
	assert.Equal(t, 0, summary.Errors)
	assert.Equal(t, 8, summary.Succeeded())
	assert.Equal(t, map[int]int{http.StatusOK: 8}, summary.ByStatus)

	require.Len(t, rec.payloads, 8)

	ids := make([]int, 0, len(rec.payloads))
	for _, p := range rec.payloads {
		ids = append(ids, p.BidID)
		assert.Equal(t, []string{"Kobler"}, p.Keywords)
	}

	sort.Ints(ids)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, ids)

	seen := make(map[string]bool)
	for i, id := range rec.requestIDs {
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "request id %s reused", id)
		seen[id] = true
		assert.Equal(t, "application/json", rec.types[i])
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 8)

	for _, line := range lines {
		assert.Contains(t, line, "200 OK - ")
	}
}

func TestRunStaggersSpawns(t *testing.T) {
	const stagger = 30 * time.Millisecond

	var (
		mu       sync.Mutex
		arrivals []time.Time
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = srv.URL
	cfg.Count = 3
	cfg.Stagger = stagger

	start := time.Now()

	summary, err := NewRunner(cfg, WithOutput(nil)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Completed)
	assert.GreaterOrEqual(t, summary.Wall, 3*stagger)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, arrivals, 3)
	sort.Slice(arrivals, func(i, j int) bool { return arrivals[i].Before(arrivals[j]) })

	assert.GreaterOrEqual(t, arrivals[0].Sub(start), stagger)
	assert.GreaterOrEqual(t, arrivals[2].Sub(start), 3*stagger)
}

func TestRunPayloadShape(t *testing.T) {
	body, err := json.Marshal(Payload{BidID: 7, Keywords: DefaultKeywords})
	require.NoError(t, err)
	assert.JSONEq(t, `{"bidId": 7, "keywords": ["Kobler"]}`, string(body))
}

func TestRunReportsNonSuccessStatuses(t *testing.T) {
	var n int

	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n++
		odd := n%2 == 1
		mu.Unlock()

		if odd {
			w.WriteHeader(http.StatusOK)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = srv.URL
	cfg.Count = 6
	cfg.Stagger = 0

	summary, err := NewRunner(cfg, WithOutput(nil)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Completed)
	assert.Equal(t, 3, summary.ByStatus[http.StatusOK])
	assert.Equal(t, 3, summary.ByStatus[http.StatusNoContent])
	assert.Equal(t, 6, summary.Succeeded())
}

func TestRunFailuresDoNotStopSiblings(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Count = 5
	cfg.Stagger = 0

	var out bytes.Buffer

	summary, err := NewRunner(cfg, WithOutput(&out)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Attempted)
	assert.Equal(t, 5, summary.Errors)
	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 5, strings.Count(out.String(), ": error - "))
}

func TestRunTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := DefaultConfig()
	cfg.URL = srv.URL
	cfg.Count = 2
	cfg.Stagger = 0
	cfg.Timeout = 50 * time.Millisecond

	summary, err := NewRunner(cfg, WithOutput(nil)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Errors)
}

func TestRunCancelledBeforeFirstSpawn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	cfg.URL = "http://127.0.0.1:1/bids"

	summary, err := NewRunner(cfg, WithOutput(nil)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Attempted)
}

func TestRunZeroCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Count = 0

	summary, err := NewRunner(cfg, WithOutput(nil)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Attempted)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.URL = "" }, wantErr: "url is required"},
		{name: "negative count", mutate: func(c *Config) { c.Count = -1 }, wantErr: "count"},
		{name: "negative stagger", mutate: func(c *Config) { c.Stagger = -time.Second }, wantErr: "stagger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

// Package stress fires a batch of concurrent bid requests at a bidding
// endpoint and reports each response with its latency.
package stress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultURL     = "http://localhost:8080/bids"
	DefaultCount   = 20
	DefaultStagger = 10 * time.Millisecond

	// RequestIDHeader carries a per-request id the server echoes in its logs.
	RequestIDHeader = "X-Request-Id"
)

// DefaultKeywords is the keyword list sent with every bid unless overridden.
var DefaultKeywords = []string{"Kobler"}

// Payload is the JSON body of a single bid request.
type Payload struct {
	BidID    int      `json:"bidId"`
	Keywords []string `json:"keywords"`
}

// Config controls a stress run. A zero Timeout means requests never time out.
type Config struct {
	URL      string
	Count    int
	Stagger  time.Duration
	Keywords []string
	Timeout  time.Duration
}

// DefaultConfig returns the configuration of the classic 20 request run.
func DefaultConfig() Config {
	return Config{
		URL:      DefaultURL,
		Count:    DefaultCount,
		Stagger:  DefaultStagger,
		Keywords: append([]string(nil), DefaultKeywords...),
	}
}

// Validate reports whether the configuration can be run.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("stress: target url is required")
	}

	if c.Count < 0 {
		return fmt.Errorf("stress: request count must not be negative, got %d", c.Count)
	}

	if c.Stagger < 0 {
		return fmt.Errorf("stress: stagger must not be negative, got %s", c.Stagger)
	}

	return nil
}

// Result is the outcome of one request. Err is set when no response arrived.
type Result struct {
	BidID      int
	RequestID  string
	StatusCode int
	Status     string
	Elapsed    time.Duration
	Err        error
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("bid %d: error - %v", r.BidID, r.Err)
	}

	return fmt.Sprintf("bid %d: %s - %.6f", r.BidID, r.Status, r.Elapsed.Seconds())
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClient replaces the HTTP client. The client's Timeout is left untouched.
func WithClient(c *http.Client) Option {
	return func(r *Runner) {
		r.client = c
	}
}

// WithOutput sets where per-request lines are printed. Nil discards them.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		if w == nil {
			w = io.Discard
		}

		r.out = w
	}
}

// Runner submits bids. It holds no state between runs and may be reused.
type Runner struct {
	cfg    Config
	client *http.Client
	out    io.Writer
}

// NewRunner builds a runner for cfg, printing to stdout by default.
func NewRunner(cfg Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		out:    os.Stdout,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run sleeps the stagger, starts one goroutine per bid id 1..Count, and waits
// for every started request to finish. Each result is printed as soon as it
// arrives. Cancelling ctx stops new requests from starting and aborts those
// in flight; the summary then covers only what was attempted and ctx's error
// is returned alongside it.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if err := r.cfg.Validate(); err != nil {
		return Summary{}, err
	}

	results := make(chan Result)
	collected := make(chan *collector, 1)

	go func() {
		c := newCollector()
		for res := range results {
			fmt.Fprintln(r.out, res)
			c.add(res)
		}

		collected <- c
	}()

	start := time.Now()

	var wg sync.WaitGroup

spawn:
	for i := 1; i <= r.cfg.Count; i++ {
		if err := sleep(ctx, r.cfg.Stagger); err != nil {
			break spawn
		}

		wg.Add(1)

		go func(id int) {
			defer wg.Done()
			results <- r.submit(ctx, id)
		}(i)
	}

	wg.Wait()
	close(results)

	summary := (<-collected).summary(time.Since(start))

	return summary, ctx.Err()
}

func (r *Runner) submit(ctx context.Context, id int) Result {
	res := Result{BidID: id, RequestID: uuid.NewString()}

	body, err := json.Marshal(Payload{BidID: id, Keywords: r.cfg.Keywords})
	if err != nil {
		res.Err = fmt.Errorf("encoding payload: %w", err)
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		res.Err = fmt.Errorf("building request: %w", err)
		return res
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, res.RequestID)

	start := time.Now()
	resp, err := r.client.Do(req)
	res.Elapsed = time.Since(start)

	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused by a sibling.
	_, _ = io.Copy(io.Discard, resp.Body)

	res.StatusCode = resp.StatusCode
	res.Status = resp.Status

	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

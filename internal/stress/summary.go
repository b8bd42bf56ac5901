package stress

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// Summary aggregates a finished run.
type Summary struct {
	Attempted int
	Completed int
	Errors    int
	ByStatus  map[int]int

	// Latencies cover completed requests only.
	Min time.Duration
	P50 time.Duration
	P95 time.Duration
	Max time.Duration

	Wall time.Duration
}

// Succeeded counts responses with a 2xx status.
func (s Summary) Succeeded() int {
	n := 0
	for code, count := range s.ByStatus {
		if code >= 200 && code < 300 {
			n += count
		}
	}

	return n
}

// RequestsPerSecond is completed requests over wall time.
func (s Summary) RequestsPerSecond() float64 {
	if s.Wall <= 0 {
		return 0
	}

	return float64(s.Completed) / s.Wall.Seconds()
}

// Write prints a human readable report.
func (s Summary) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "\nattempted: %d  completed: %d  errors: %d\n", s.Attempted, s.Completed, s.Errors)
	if err != nil {
		return err
	}

	codes := make([]int, 0, len(s.ByStatus))
	for code := range s.ByStatus {
		codes = append(codes, code)
	}

	sort.Ints(codes)

	for _, code := range codes {
		if _, err := fmt.Fprintf(w, "  status %d: %d\n", code, s.ByStatus[code]); err != nil {
			return err
		}
	}

	if s.Completed > 0 {
		_, err = fmt.Fprintf(w, "latency min %s  p50 %s  p95 %s  max %s\n",
			s.Min.Round(time.Microsecond), s.P50.Round(time.Microsecond),
			s.P95.Round(time.Microsecond), s.Max.Round(time.Microsecond))
		if err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(w, "wall %s  (%.2f req/sec)\n", s.Wall.Round(time.Millisecond), s.RequestsPerSecond())

	return err
}

type collector struct {
	attempted int
	errors    int
	byStatus  map[int]int
	latencies []time.Duration
}

func newCollector() *collector {
	return &collector{byStatus: make(map[int]int)}
}

func (c *collector) add(r Result) {
	c.attempted++
	if r.Err != nil {
		c.errors++
		return
	}

	c.byStatus[r.StatusCode]++
	c.latencies = append(c.latencies, r.Elapsed)
}

func (c *collector) summary(wall time.Duration) Summary {
	s := Summary{
		Attempted: c.attempted,
		Completed: len(c.latencies),
		Errors:    c.errors,
		ByStatus:  c.byStatus,
		Wall:      wall,
	}

	n := len(c.latencies)
	if n == 0 {
		return s
	}

	sorted := append([]time.Duration(nil), c.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	s.Min = sorted[0]
	s.Max = sorted[n-1]
	s.P50 = percentile(sorted, 0.50)
	s.P95 = percentile(sorted, 0.95)

	return s
}

// percentile uses nearest rank on an ascending slice.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}

	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}

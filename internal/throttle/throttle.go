// Package throttle serializes bids per campaign and caps how much a single
// campaign may spend inside a rolling time window.
//
// A caller locks a campaign, which yields a Lease. Only a lease can check
// availability or record spending, so holding the lock is enforced by the
// type system rather than at run time:
//
//	lease, err := s.Lock(ctx, id)
//	if err != nil {
//		return err
//	}
//	defer lease.Release()
//
//	ok, err := lease.Available(amount)
//	...
//	err = lease.Spend(amount)
package throttle

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultLimit  = 10.0
	DefaultWindow = 10 * time.Second
)

// ErrReleased is returned when a lease is used after Release.
var ErrReleased = errors.New("throttle: lease already released")

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLimit sets the maximum spending per campaign per window.
func WithLimit(limit float64) Option {
	return func(s *Synchronizer) { s.limit = limit }
}

// WithWindow sets the rolling window length.
func WithWindow(d time.Duration) Option {
	return func(s *Synchronizer) { s.window = d }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// Synchronizer tracks locks and recent spendings for every campaign it has
// seen. State is created lazily on first lock and lives for the process.
type Synchronizer struct {
	limit  float64
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	campaigns map[int64]*campaignState
}

type campaignState struct {
	// sem has capacity one; holding its slot is holding the lock.
	sem chan struct{}

	// Only touched by the lease holder.
	spendings []spending
}

type spending struct {
	at     time.Time
	amount float64
}

// New returns a synchronizer with a 10.0 limit over 10 seconds unless overridden.
func New(opts ...Option) *Synchronizer {
	s := &Synchronizer{
		limit:     DefaultLimit,
		window:    DefaultWindow,
		now:       time.Now,
		campaigns: make(map[int64]*campaignState),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Synchronizer) state(id int64) *campaignState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.campaigns[id]
	if !ok {
		st = &campaignState{sem: make(chan struct{}, 1)}
		s.campaigns[id] = st
	}

	return st
}

// Lock blocks until the campaign is free or ctx is done.
func (s *Synchronizer) Lock(ctx context.Context, id int64) (*Lease, error) {
	st := s.state(id)

	select {
	case st.sem <- struct{}{}:
		return &Lease{s: s, id: id, st: st}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lease is exclusive access to one campaign. It is not safe to share a lease
// between goroutines.
type Lease struct {
	s        *Synchronizer
	id       int64
	st       *campaignState
	released bool
}

// CampaignID returns the id the lease was taken for.
func (l *Lease) CampaignID() int64 {
	return l.id
}

// Available reports whether spending amount now keeps the campaign within
// its limit for the current window. Spendings older than the window are
// forgotten.
func (l *Lease) Available(amount float64) (bool, error) {
	if l.released {
		return false, ErrReleased
	}

	now := l.s.now()

	kept := l.st.spendings[:0]
	total := 0.0

	for _, sp := range l.st.spendings {
		if now.Sub(sp.at) > l.s.window {
			continue
		}

		kept = append(kept, sp)
		total += sp.amount
	}

	l.st.spendings = kept

	return total+amount <= l.s.limit, nil
}

// Spend records amount as spent now.
func (l *Lease) Spend(amount float64) error {
	if l.released {
		return ErrReleased
	}

	l.st.spendings = append(l.st.spendings, spending{at: l.s.now(), amount: amount})

	return nil
}

// Release unlocks the campaign. Calling it more than once is a no-op.
func (l *Lease) Release() {
	if l.released {
		return
	}

	l.released = true
	<-l.st.sem
}

// Package bidding places bids on campaigns matching a keyword set.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"bidding/internal/campaign"
	"bidding/internal/throttle"
)

const (
	DefaultAmount  = 1.0
	DefaultTimeout = 500 * time.Millisecond
)

var (
	// ErrNoCampaign means no matching campaign could take the bid.
	ErrNoCampaign = errors.New("no campaign available for bid")

	// ErrTimeout means the attempt did not finish within the bid timeout.
	ErrTimeout = errors.New("bid timed out")
)

// Store is the part of campaign.Store the bidder needs.
type Store interface {
	FindWithPositiveBalance(ctx context.Context, keywords []string) ([]campaign.Campaign, error)
	TryIncreaseSpending(ctx context.Context, id int64, amount float64) (bool, error)
}

// Placement describes a won bid.
type Placement struct {
	CampaignID int64
	Amount     float64
}

// Option configures a Bidder.
type Option func(*Bidder)

// WithAmount sets how much each bid spends.
func WithAmount(amount float64) Option {
	return func(b *Bidder) { b.amount = amount }
}

// WithTimeout bounds a whole bid attempt.
func WithTimeout(d time.Duration) Option {
	return func(b *Bidder) { b.timeout = d }
}

// Bidder picks a random eligible campaign and spends on it.
type Bidder struct {
	store     Store
	throttler *throttle.Synchronizer
	amount    float64
	timeout   time.Duration
}

// New returns a bidder spending DefaultAmount per bid within DefaultTimeout.
func New(store Store, throttler *throttle.Synchronizer, opts ...Option) *Bidder {
	b := &Bidder{
		store:     store,
		throttler: throttler,
		amount:    DefaultAmount,
		timeout:   DefaultTimeout,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Amount returns the spend per bid.
func (b *Bidder) Amount() float64 {
	return b.amount
}

// TryToBid returns within the bid timeout. When the timeout hits first the
// attempt is cancelled and ErrTimeout is returned; a spending that the
// attempt already recorded in the throttle window stays recorded.
func (b *Bidder) TryToBid(ctx context.Context, keywords []string) (Placement, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type outcome struct {
		placement Placement
		err       error
	}

	done := make(chan outcome, 1)

	go func() {
		p, err := b.bid(ctx, keywords)
		done <- outcome{p, err}
	}()

	var o outcome

	select {
	case o = <-done:
	case <-ctx.Done():
		// Prefer a result that landed at the same instant.
		select {
		case o = <-done:
		default:
			o.err = ctx.Err()
		}
	}

	if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Placement{}, ErrTimeout
	}

	return o.placement, o.err
}

func (b *Bidder) bid(ctx context.Context, keywords []string) (Placement, error) {
	candidates, err := b.store.FindWithPositiveBalance(ctx, keywords)
	if err != nil {
		return Placement{}, fmt.Errorf("finding campaigns: %w", err)
	}

	for len(candidates) > 0 {
		i := rand.Intn(len(candidates))
		c := candidates[i]

		candidates[i] = candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]

		ok, err := b.bidOn(ctx, c.ID)
		if err != nil {
			return Placement{}, err
		}

		if ok {
			return Placement{CampaignID: c.ID, Amount: b.amount}, nil
		}
	}

	return Placement{}, ErrNoCampaign
}

func (b *Bidder) bidOn(ctx context.Context, id int64) (bool, error) {
	lease, err := b.throttler.Lock(ctx, id)
	if err != nil {
		return false, fmt.Errorf("locking campaign %d: %w", id, err)
	}
	defer lease.Release()

	ok, err := lease.Available(b.amount)
	if err != nil || !ok {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	// Recorded before the store update so the window never undercounts.
	if err := lease.Spend(b.amount); err != nil {
		return false, err
	}

	ok, err = b.store.TryIncreaseSpending(ctx, id, b.amount)
	if errors.Is(err, campaign.ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("spending on campaign %d: %w", id, err)
	}

	return ok, nil
}

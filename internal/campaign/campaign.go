// Package campaign holds the campaign model and its stores.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no campaign has the requested id.
	ErrNotFound = errors.New("campaign not found")

	// ErrInvalidCampaign is returned when a campaign fails validation on create.
	ErrInvalidCampaign = errors.New("invalid campaign")
)

// Campaign is an advertiser's budget attached to a set of keywords.
type Campaign struct {
	ID       int64    `json:"id" bson:"_id"`
	Name     string   `json:"name" bson:"name"`
	Keywords []string `json:"keywords" bson:"keywords"`
	Budget   float64  `json:"budget" bson:"budget"`
	Spending float64  `json:"spending" bson:"spending"`
}

// New returns an unsaved campaign with normalized keywords and no spending.
func New(name string, keywords []string, budget float64) Campaign {
	return Campaign{
		Name:     name,
		Keywords: NormalizeKeywords(keywords),
		Budget:   budget,
	}
}

// HasPositiveBalance reports whether anything is left to spend.
func (c Campaign) HasPositiveBalance() bool {
	return c.Spending < c.Budget
}

// MatchesAny reports whether c carries at least one of keywords.
func (c Campaign) MatchesAny(keywords []string) bool {
	for _, want := range keywords {
		for _, have := range c.Keywords {
			if have == want {
				return true
			}
		}
	}

	return false
}

// Validate checks the fields a store requires before assigning an id.
func (c Campaign) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCampaign)
	}

	if c.Budget < 0 {
		return fmt.Errorf("%w: budget must not be negative", ErrInvalidCampaign)
	}

	if c.Spending < 0 {
		return fmt.Errorf("%w: spending must not be negative", ErrInvalidCampaign)
	}

	return nil
}

func (c Campaign) clone() Campaign {
	c.Keywords = append([]string{}, c.Keywords...)
	return c
}

// NormalizeKeywords trims, drops empties and duplicates, and keeps order.
// The result is never nil.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))

	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}

		if _, ok := seen[k]; ok {
			continue
		}

		seen[k] = struct{}{}
		out = append(out, k)
	}

	return out
}

// Store persists campaigns. Implementations are safe for concurrent use.
type Store interface {
	// Create validates c, assigns it a fresh id, and stores it. Spending is kept as given.
	Create(ctx context.Context, c Campaign) (Campaign, error)
	Get(ctx context.Context, id int64) (Campaign, error)
	// List returns all campaigns ordered by id.
	List(ctx context.Context) ([]Campaign, error)
	// FindWithPositiveBalance returns campaigns carrying any of keywords
	// whose spending is below budget, ordered by id.
	FindWithPositiveBalance(ctx context.Context, keywords []string) ([]Campaign, error)
	// TryIncreaseSpending adds amount to the campaign's spending unless that
	// would exceed its budget. It reports whether the increase happened.
	TryIncreaseSpending(ctx context.Context, id int64, amount float64) (bool, error)
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

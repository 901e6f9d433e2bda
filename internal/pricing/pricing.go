// Package pricing keeps registrar prices in the record store and serves them
// with a staleness window, falling back to a narrow live call on a miss.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/reseller"
)

// ErrNoPrice is returned when neither the cache nor the registrar knows a price.
var ErrNoPrice = errors.New("no price")

// Source is the remote price feed. *reseller.PricingService implements it.
type Source interface {
	Prices(ctx context.Context, tier domain.Tier, keys ...string) (*reseller.PriceList, error)
}

// Locker guards tier refreshes across replicas.
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

// RefreshMarker records completed refreshes somewhere operators can see them.
type RefreshMarker interface {
	SetLastRefresh(ctx context.Context, tier string, at time.Time) error
}

// Config controls cache behaviour.
type Config struct {
	// MaxAge is the staleness window.
	MaxAge time.Duration
	// ResourceKeys pins the keys a refresh caches. Empty caches every key in
	// the response.
	ResourceKeys []string
	// LockTTL bounds how long one replica may hold a tier refresh.
	LockTTL time.Duration
	// RefreshTimeout bounds a background refresh kicked from the read path.
	RefreshTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAge <= 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 2 * time.Minute
	}
	return c
}

// Query identifies a single price point.
type Query struct {
	Key      string
	Tier     domain.Tier
	Action   domain.Action
	Duration int
	Slab     string
}

func (q Query) String() string {
	s := fmt.Sprintf("%s/%s/%s/%d", q.Tier, q.Key, q.Action, q.Duration)
	if q.Slab != "" {
		s += "@" + q.Slab
	}
	return s
}

func (q Query) matches(p domain.CachedPrice) bool {
	return p.Action == q.Action && p.Duration == q.Duration && p.Slab == q.Slab
}

// Quote is a price served to a caller.
type Quote struct {
	domain.CachedPrice
	// Stale is set when the row is past MaxAge and the live call failed.
	Stale bool
	// Live is set when the value came from a live call made by this read.
	Live bool
}

// RefreshResult summarizes a refresh over one or more tiers.
type RefreshResult struct {
	Entries    int
	Calls      int
	Duration   time.Duration
	LastErr    error
	TierErrors map[domain.Tier]error
	// Skipped lists tiers another replica was already refreshing.
	Skipped []domain.Tier
}

// OK reports whether every tier refreshed.
func (r RefreshResult) OK() bool {
	return len(r.TierErrors) == 0
}

// rowsFor converts a product's price table into cache rows.
func rowsFor(list *reseller.PriceList, key string, prod reseller.ProductPrices, now time.Time) ([]domain.CachedPrice, error) {
	var rows []domain.CachedPrice
	for slab, actions := range prod.Table {
		for action, durations := range actions {
			for duration, amount := range durations {
				minor, err := domain.ToMinorUnits(amount, list.Currency)
				if err != nil {
					return nil, fmt.Errorf("%s %s %d: %w", key, action, duration, err)
				}
				rows = append(rows, domain.CachedPrice{
					PriceQuote: domain.PriceQuote{
						ResourceKey: key,
						Action:      action,
						Unit:        prod.Unit,
						Duration:    duration,
						Amount:      minor,
						Currency:    list.Currency,
					},
					Tier:        list.Tier,
					Slab:        slab,
					Source:      list.Source,
					RefreshedAt: now,
				})
			}
		}
	}
	return rows, nil
}

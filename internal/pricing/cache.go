package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/reseller"
	"github.com/vietddude/regsync/internal/infra/storage"
	"github.com/vietddude/regsync/internal/metrics"
)

// Cache serves prices from the record store and keeps them refreshed.
type Cache struct {
	source Source
	repo   storage.PriceRepository
	cfg    Config
	logger *slog.Logger

	locker Locker
	marker RefreshMarker

	group singleflight.Group
	wg    sync.WaitGroup

	mu          sync.RWMutex
	lastRefresh map[domain.Tier]time.Time

	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithLocker replaces the in-process refresh lock, e.g. with the redis client.
func WithLocker(l Locker) Option {
	return func(c *Cache) { c.locker = l }
}

func WithRefreshMarker(m RefreshMarker) Option {
	return func(c *Cache) { c.marker = m }
}

// NewCache creates a pricing cache.
func NewCache(source Source, repo storage.PriceRepository, cfg Config, opts ...Option) *Cache {
	c := &Cache{
		source:      source,
		repo:        repo,
		cfg:         cfg.withDefaults(),
		logger:      slog.Default(),
		locker:      NewLocalLocker(),
		lastRefresh: make(map[domain.Tier]time.Time),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Price returns one price point. A fresh row costs no remote call. A missing
// or stale row costs exactly one narrow live call and kicks a background
// refresh of the tier.
func (c *Cache) Price(ctx context.Context, q Query) (Quote, error) {
	rows, err := c.repo.Find(ctx, q.Key, q.Tier)
	if err != nil {
		return Quote{}, fmt.Errorf("find cached price %s: %w", q, err)
	}

	cached, found := pick(rows, q)
	if found && cached.Freshness(c.now(), c.cfg.MaxAge) == domain.Fresh {
		metrics.PriceLookups.WithLabelValues(string(q.Tier), "hit").Inc()
		return Quote{CachedPrice: cached}, nil
	}

	live, err := c.fetchLive(ctx, q.Key, q.Tier)
	c.kickRefresh(q.Tier)
	if err != nil {
		if found {
			metrics.PriceLookups.WithLabelValues(string(q.Tier), "stale").Inc()
			c.logger.Warn("Serving stale price",
				"query", q.String(),
				"refreshed_at", cached.RefreshedAt,
				"error", err,
			)
			return Quote{CachedPrice: cached, Stale: true}, nil
		}
		return Quote{}, err
	}

	metrics.PriceLookups.WithLabelValues(string(q.Tier), "miss").Inc()
	row, ok := pick(live, q)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoPrice, q)
	}
	return Quote{CachedPrice: row, Live: true}, nil
}

// Prices returns every cached row of a key in a tier with the same freshness
// rules as Price. The set is fresh only if every row is.
func (c *Cache) Prices(ctx context.Context, key string, tier domain.Tier) ([]Quote, error) {
	rows, err := c.repo.Find(ctx, key, tier)
	if err != nil {
		return nil, fmt.Errorf("find cached prices %s/%s: %w", tier, key, err)
	}

	if len(rows) > 0 && c.allFresh(rows) {
		metrics.PriceLookups.WithLabelValues(string(tier), "hit").Inc()
		return toQuotes(rows, false, false), nil
	}

	live, err := c.fetchLive(ctx, key, tier)
	c.kickRefresh(tier)
	if err != nil {
		if len(rows) > 0 {
			metrics.PriceLookups.WithLabelValues(string(tier), "stale").Inc()
			c.logger.Warn("Serving stale prices", "tier", tier, "key", key, "error", err)
			return toQuotes(rows, true, false), nil
		}
		return nil, err
	}

	metrics.PriceLookups.WithLabelValues(string(tier), "miss").Inc()
	return toQuotes(live, false, true), nil
}

func (c *Cache) allFresh(rows []domain.CachedPrice) bool {
	now := c.now()
	for _, r := range rows {
		if r.Freshness(now, c.cfg.MaxAge) != domain.Fresh {
			return false
		}
	}
	return true
}

// fetchLive makes the narrow call for one key and writes its rows under the
// requested key so the next read hits.
func (c *Cache) fetchLive(ctx context.Context, key string, tier domain.Tier) ([]domain.CachedPrice, error) {
	list, err := c.source.Prices(ctx, tier, key)
	if err != nil {
		return nil, fmt.Errorf("live price %s/%s: %w", tier, key, err)
	}

	prod, ok := list.Product(key)
	if !ok {
		if rejected, bad := list.Rejected[key]; bad {
			return nil, fmt.Errorf("live price %s/%s: %w", tier, key, rejected)
		}
		return nil, fmt.Errorf("%w: %s/%s", ErrNoPrice, tier, key)
	}

	rows, err := rowsFor(list, key, prod, c.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("live price %s/%s: %w", tier, key, err)
	}
	if err := c.repo.UpsertBatch(ctx, rows); err != nil {
		// The caller still gets the live value.
		c.logger.Error("Failed to cache live price", "tier", tier, "key", key, "error", err)
	}
	sortRows(rows)
	return rows, nil
}

// kickRefresh starts a detached refresh of the tier. Concurrent kicks for the
// same tier share one refresh.
func (c *Cache) kickRefresh(tier domain.Tier) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RefreshTimeout)
		defer cancel()

		_, err, shared := c.group.Do(string(tier), func() (any, error) {
			res := c.Refresh(ctx, tier)
			return res, res.LastErr
		})
		if err != nil && !shared {
			c.logger.Warn("Background pricing refresh failed", "tier", tier, "error", err)
		}
	}()
}

// Wait blocks until background refreshes started so far have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// LastRefresh reports when this process last refreshed a tier.
func (c *Cache) LastRefresh(tier domain.Tier) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.lastRefresh[tier]
	return t, ok
}

// Refresh makes one remote call per tier and upserts every returned key, or
// only the pinned keys. A failing tier does not stop the others.
func (c *Cache) Refresh(ctx context.Context, tiers ...domain.Tier) RefreshResult {
	if len(tiers) == 0 {
		tiers = domain.AllTiers
	}

	start := time.Now()
	res := RefreshResult{TierErrors: make(map[domain.Tier]error)}

	for _, tier := range tiers {
		if ctx.Err() != nil {
			res.TierErrors[tier] = ctx.Err()
			res.LastErr = ctx.Err()
			continue
		}

		entries, calls, err := c.refreshTier(ctx, tier)
		res.Calls += calls
		res.Entries += entries
		switch {
		case errors.Is(err, errLockHeld):
			res.Skipped = append(res.Skipped, tier)
			c.logger.Debug("Pricing refresh already running elsewhere", "tier", tier)
		case err != nil:
			res.TierErrors[tier] = err
			res.LastErr = err
			metrics.PriceRefreshErrors.WithLabelValues(string(tier)).Inc()
			c.logger.Error("Pricing refresh failed", "tier", tier, "error", err)
		default:
			metrics.PriceRefreshEntries.WithLabelValues(string(tier)).Add(float64(entries))
		}
	}

	res.Duration = time.Since(start)
	metrics.PriceRefreshDuration.Observe(res.Duration.Seconds())
	c.logger.Info("Pricing refresh finished",
		"tiers", len(tiers),
		"entries", res.Entries,
		"calls", res.Calls,
		"failed", len(res.TierErrors),
		"skipped", len(res.Skipped),
		"duration", res.Duration,
	)
	return res
}

var errLockHeld = errors.New("refresh lock held")

func (c *Cache) refreshTier(ctx context.Context, tier domain.Tier) (entries, calls int, err error) {
	lock := refreshLockName(tier)
	ok, err := c.locker.AcquireLock(ctx, lock, c.cfg.LockTTL)
	if err != nil {
		return 0, 0, fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !ok {
		return 0, 0, errLockHeld
	}
	defer func() {
		if err := c.locker.ReleaseLock(context.WithoutCancel(ctx), lock); err != nil {
			c.logger.Warn("Failed to release refresh lock", "tier", tier, "error", err)
		}
	}()

	list, err := c.source.Prices(ctx, tier, c.cfg.ResourceKeys...)
	if err != nil {
		return 0, 1, err
	}

	now := c.now().UTC()
	var rows []domain.CachedPrice
	add := func(key string, prod reseller.ProductPrices) {
		r, err := rowsFor(list, key, prod, now)
		if err != nil {
			c.logger.Warn("Skipping product with invalid prices", "tier", tier, "key", key, "error", err)
			return
		}
		rows = append(rows, r...)
	}

	if len(c.cfg.ResourceKeys) > 0 {
		for _, key := range c.cfg.ResourceKeys {
			prod, ok := list.Product(key)
			if !ok {
				c.logger.Warn("Pinned resource key missing from price list", "tier", tier, "key", key)
				continue
			}
			add(key, prod)
		}
	} else {
		keys := make([]string, 0, len(list.Products))
		for key := range list.Products {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			add(key, list.Products[key])
		}
	}

	if err := c.repo.UpsertBatch(ctx, rows); err != nil {
		return 0, 1, fmt.Errorf("store prices: %w", err)
	}

	c.mu.Lock()
	c.lastRefresh[tier] = now
	c.mu.Unlock()
	if c.marker != nil {
		if err := c.marker.SetLastRefresh(ctx, string(tier), now); err != nil {
			c.logger.Warn("Failed to record refresh marker", "tier", tier, "error", err)
		}
	}
	return len(rows), 1, nil
}

func pick(rows []domain.CachedPrice, q Query) (domain.CachedPrice, bool) {
	for _, r := range rows {
		if q.matches(r) {
			return r, true
		}
	}
	return domain.CachedPrice{}, false
}

func toQuotes(rows []domain.CachedPrice, stale, live bool) []Quote {
	out := make([]Quote, len(rows))
	for i, r := range rows {
		out[i] = Quote{CachedPrice: r, Stale: stale, Live: live}
	}
	return out
}

func sortRows(rows []domain.CachedPrice) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Slab != b.Slab {
			return a.Slab < b.Slab
		}
		if a.Action != b.Action {
			return a.Action < b.Action
		}
		return a.Duration < b.Duration
	})
}

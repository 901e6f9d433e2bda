package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/reseller"
	"github.com/vietddude/regsync/internal/infra/storage/memory"
)

type fakeSource struct {
	mu       sync.Mutex
	products map[domain.Tier]map[string]reseller.ProductPrices
	fail     map[domain.Tier]error
	narrow   int
	full     int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		products: make(map[domain.Tier]map[string]reseller.ProductPrices),
		fail:     make(map[domain.Tier]error),
	}
}

func (f *fakeSource) set(tier domain.Tier, key string, register string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.products[tier] == nil {
		f.products[tier] = make(map[string]reseller.ProductPrices)
	}
	f.products[tier][key] = reseller.ProductPrices{
		Key:  key,
		Unit: domain.UnitYears,
		Table: reseller.PriceTable{
			"": {
				domain.ActionRegister: {1: decimal.RequireFromString(register)},
				domain.ActionRenew:    {1: decimal.RequireFromString(register)},
			},
		},
	}
}

func (f *fakeSource) Prices(_ context.Context, tier domain.Tier, keys ...string) (*reseller.PriceList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(keys) > 0 {
		f.narrow++
	} else {
		f.full++
	}
	if err := f.fail[tier]; err != nil {
		return nil, err
	}

	list := &reseller.PriceList{
		Tier:     tier,
		Source:   "products/" + string(tier) + "-price.json",
		Currency: "USD",
		Products: make(map[string]reseller.ProductPrices),
		Rejected: make(map[string]error),
	}
	for key, p := range f.products[tier] {
		if len(keys) == 0 || contains(keys, key) {
			list.Products[key] = p
		}
	}
	return list, nil
}

func (f *fakeSource) calls() (narrow, full int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.narrow, f.full
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, src Source, cfg Config) (*Cache, *memory.PriceRepo) {
	t.Helper()
	repo := memory.NewPriceRepo(memory.NewMemoryStorage())
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	c := NewCache(src, repo, cfg)
	c.now = func() time.Time { return testNow }
	t.Cleanup(c.Wait)
	return c, repo
}

func seed(t *testing.T, repo *memory.PriceRepo, key string, amount int64, age time.Duration) {
	t.Helper()
	require.NoError(t, repo.UpsertBatch(context.Background(), []domain.CachedPrice{{
		PriceQuote: domain.PriceQuote{
			ResourceKey: key,
			Action:      domain.ActionRegister,
			Unit:        domain.UnitYears,
			Duration:    1,
			Amount:      amount,
			Currency:    "USD",
		},
		Tier:        domain.TierCustomer,
		Source:      "seed",
		RefreshedAt: testNow.Add(-age),
	}}))
}

var registerCom = Query{Key: "com", Tier: domain.TierCustomer, Action: domain.ActionRegister, Duration: 1}

func TestPrice_FreshRowMakesNoRemoteCall(t *testing.T) {
	src := newFakeSource()
	src.set(domain.TierCustomer, "com", "12.00")
	c, repo := newTestCache(t, src, Config{})
	seed(t, repo, "com", 999, time.Hour)

	q, err := c.Price(context.Background(), registerCom)
	require.NoError(t, err)
	c.Wait()

	assert.Equal(t, int64(999), q.Amount)
	assert.False(t, q.Stale)
	assert.False(t, q.Live)
	narrow, full := src.calls()
	assert.Zero(t, narrow)
	assert.Zero(t, full)
}

func TestPrice_StaleRowMakesExactlyOneLiveCall(t *testing.T) {
	src := newFakeSource()
	src.set(domain.TierCustomer, "com", "10.20")
	c, repo := newTestCache(t, src, Config{})
	seed(t, repo, "com", 900, 25*time.Hour)

	q, err := c.Price(context.Background(), registerCom)
	require.NoError(t, err)
	assert.Equal(t, int64(1020), q.Amount)
	assert.True(t, q.Live)

	c.Wait()
	narrow, _ := src.calls()
	assert.Equal(t, 1, narrow)

	// The cache now answers without another live call.
	q, err = c.Price(context.Background(), registerCom)
	require.NoError(t, err)
	c.Wait()
	assert.Equal(t, int64(1020), q.Amount)
	assert.False(t, q.Live)
	narrow, _ = src.calls()
	assert.Equal(t, 1, narrow)
}

func TestPrice_MissKicksFullRefresh(t *testing.T) {
	src := newFakeSource()
	src.set(domain.TierCustomer, "com", "10.20")
	src.set(domain.TierCustomer, "net", "11.50")
	c, repo := newTestCache(t, src, Config{})

	q, err := c.Price(context.Background(), registerCom)
	require.NoError(t, err)
	assert.Equal(t, int64(1020), q.Amount)

	c.Wait()
	narrow, full := src.calls()
	assert.Equal(t, 1, narrow)
	assert.Equal(t, 1, full)

	rows, err := repo.Find(context.Background(), "net", domain.TierCustomer)
	require.NoError(t, err)
	assert.NotEmpty(t, rows, "auto-discovered key should be cached by the background refresh")

	_, ok := c.LastRefresh(domain.TierCustomer)
	assert.True(t, ok)
}

func TestPrice_ServesStaleRowWhenLiveCallFails(t *testing.T) {
	src := newFakeSource()
	src.fail[domain.TierCustomer] = errors.New("registrar down")
	c, repo := newTestCache(t, src, Config{})
	seed(t, repo, "com", 900, 48*time.Hour)

	q, err := c.Price(context.Background(), registerCom)
	require.NoError(t, err)
	assert.True(t, q.Stale)
	assert.Equal(t, int64(900), q.Amount)
	assert.Equal(t, testNow.Add(-48*time.Hour), q.RefreshedAt)
}

func TestPrice_NoRowAndLiveFailure(t *testing.T) {
	src := newFakeSource()
	src.fail[domain.TierCustomer] = errors.New("registrar down")
	c, _ := newTestCache(t, src, Config{})

	_, err := c.Price(context.Background(), registerCom)
	assert.ErrorContains(t, err, "registrar down")
}

func TestPrice_UnknownKey(t *testing.T) {
	src := newFakeSource()
	src.set(domain.TierCustomer, "com", "10.20")
	c, _ := newTestCache(t, src, Config{})

	_, err := c.Price(context.Background(), Query{Key: "zzz", Tier: domain.TierCustomer, Action: domain.ActionRegister, Duration: 1})
	assert.ErrorIs(t, err, ErrNoPrice)

	_, err = c.Price(context.Background(), Query{Key: "com", Tier: domain.TierCustomer, Action: domain.ActionRestore, Duration: 1})
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestPrices_ReturnsEveryRow(t *testing.T) {
	src := newFakeSource()
	src.set(domain.TierCustomer, "com", "10.20")
	c, _ := newTestCache(t, src, Config{})

	quotes, err := c.Prices(context.Background(), "com", domain.TierCustomer)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, domain.ActionRegister, quotes[0].Action)
	assert.Equal(t, domain.ActionRenew, quotes[1].Action)
	for _, q := range quotes {
		assert.True(t, q.Live)
	}

	c.Wait()
	quotes, err = c.Prices(context.Background(), "com", domain.TierCustomer)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.False(t, quotes[0].Live)
}

func TestRefresh_TierFailureDoesNotAbortOthers(t *testing.T) {
	src := newFakeSource()
	src.set(domain.TierCustomer, "com", "10.20")
	src.set(domain.TierReseller, "com", "9.00")
	src.fail[domain.TierCost] = errors.New("boom")
	c, repo := newTestCache(t, src, Config{})

	res := c.Refresh(context.Background())

	assert.Equal(t, 3, res.Calls)
	assert.Equal(t, 4, res.Entries)
	assert.False(t, res.OK())
	assert.Contains(t, res.TierErrors, domain.TierCost)
	assert.EqualError(t, res.LastErr, "boom")

	rows, err := repo.ListByTier(context.Background(), domain.TierReseller)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRefresh_PinnedKeys(t *testing.T) {
	src := newFakeSource()
	src.set(domain.TierCustomer, "com", "10.20")
	src.set(domain.TierCustomer, "net", "11.50")
	c, repo := newTestCache(t, src, Config{ResourceKeys: []string{"com"}})

	res := c.Refresh(context.Background(), domain.TierCustomer)
	require.True(t, res.OK())
	assert.Equal(t, 2, res.Entries)

	rows, err := repo.ListByTier(context.Background(), domain.TierCustomer)
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, "com", r.ResourceKey)
	}
}

func TestRefresh_SkipsTierLockedElsewhere(t *testing.T) {
	src := newFakeSource()
	src.set(domain.TierCustomer, "com", "10.20")
	locker := NewLocalLocker()
	ok, err := locker.AcquireLock(context.Background(), refreshLockName(domain.TierCustomer), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	repo := memory.NewPriceRepo(memory.NewMemoryStorage())
	c := NewCache(src, repo, Config{}, WithLocker(locker))

	res := c.Refresh(context.Background(), domain.TierCustomer)
	assert.True(t, res.OK())
	assert.Equal(t, []domain.Tier{domain.TierCustomer}, res.Skipped)
	assert.Zero(t, res.Calls)
}

func TestRefresh_MinorUnitsRoundTrip(t *testing.T) {
	src := newFakeSource()
	src.set(domain.TierCustomer, "com", "10.20")
	c, repo := newTestCache(t, src, Config{})

	c.Refresh(context.Background(), domain.TierCustomer)
	c.Refresh(context.Background(), domain.TierCustomer)

	rows, err := repo.Find(context.Background(), "com", domain.TierCustomer)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.Equal(t, int64(1020), r.Amount)
		assert.True(t, r.Major().Equal(decimal.RequireFromString("10.20")))
	}
}

func TestLocalLocker_Expires(t *testing.T) {
	l := NewLocalLocker()
	now := testNow
	l.now = func() time.Time { return now }

	ok, _ := l.AcquireLock(context.Background(), "x", time.Minute)
	assert.True(t, ok)
	ok, _ = l.AcquireLock(context.Background(), "x", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = l.AcquireLock(context.Background(), "x", time.Minute)
	assert.True(t, ok)
}

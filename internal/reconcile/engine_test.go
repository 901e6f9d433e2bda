package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/rpc"
	"github.com/vietddude/regsync/internal/infra/storage"
	"github.com/vietddude/regsync/internal/infra/storage/memory"
)

var errStore = errors.New("store hiccup")

// brokenEmailOrders fails listing for one tenant.
type brokenEmailOrders struct {
	storage.EmailOrderRepository
	tenant string
}

func (b brokenEmailOrders) ListByTenant(ctx context.Context, tenantID string) ([]*domain.EmailOrder, error) {
	if tenantID == b.tenant {
		return nil, errStore
	}
	return b.EmailOrderRepository.ListByTenant(ctx, tenantID)
}

type fakeDomains struct {
	mu      sync.Mutex
	details map[string]domain.DomainDetails
	calls   []string
}

func (f *fakeDomains) Details(_ context.Context, orderID string) (*domain.DomainDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderID)
	d, ok := f.details[orderID]
	if !ok {
		return nil, rpc.NewError(rpc.KindOrderNotFound, "order not found: "+orderID, 200, nil)
	}
	return &d, nil
}

type fakeEmail struct {
	details map[string]domain.EmailDetails
}

func (f *fakeEmail) Details(_ context.Context, orderID string) (*domain.EmailDetails, error) {
	d, ok := f.details[orderID]
	if !ok {
		return nil, errors.New("unexpected order " + orderID)
	}
	return &d, nil
}

type fixture struct {
	engine  *Engine
	domains *memory.DomainRepo
	email   *memory.EmailOrderRepo
	audit   *memory.AuditRepo
	remote  *fakeDomains
	remoteE *fakeEmail
	sleeps  []time.Duration
}

var expiry = time.Date(2027, 6, 1, 10, 30, 0, 0, time.UTC)

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	f := &fixture{
		domains: memory.NewDomainRepo(store),
		email:   memory.NewEmailOrderRepo(store),
		audit:   memory.NewAuditRepo(store),
		remote:  &fakeDomains{details: make(map[string]domain.DomainDetails)},
		remoteE: &fakeEmail{details: make(map[string]domain.EmailDetails)},
	}
	f.engine = NewEngine(f.remote, f.remoteE, Stores{
		Domains:     f.domains,
		EmailOrders: f.email,
		Audit:       f.audit,
		Tenants:     memory.NewTenantRepo(store),
	}, cfg, nil)
	f.engine.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	}
	return f
}

func (f *fixture) addDomain(t *testing.T, d domain.Domain, remote domain.DomainDetails) {
	t.Helper()
	require.NoError(t, f.domains.Save(context.Background(), &d))
	if d.OrderID != "" {
		f.remote.details[d.OrderID] = remote
	}
}

func inSync(d domain.Domain) domain.DomainDetails {
	return domain.DomainDetails{
		OrderID:          d.OrderID,
		Name:             d.Name,
		Status:           d.Status,
		ExpiresAt:        d.ExpiresAt,
		AutoRenew:        d.AutoRenew,
		Locked:           d.Locked,
		PrivacyProtected: d.PrivacyProtected,
		Nameservers:      d.Nameservers,
	}
}

func exampleDomain() domain.Domain {
	return domain.Domain{
		ID:            "d1",
		TenantID:      "t1",
		OrderID:       "1001",
		Name:          "example.com",
		Status:        "Active",
		ExpiresAt:     expiry,
		AutoRenew:     true,
		Locked:        true,
		Nameservers:   []string{"ns1.example.net", "ns2.example.net"},
		CreatedViaAPI: true,
	}
}

func TestReconcileDomains_AutoRenewDrift(t *testing.T) {
	f := newFixture(t, Config{})
	local := exampleDomain()
	remote := inSync(local)
	remote.AutoRenew = false
	f.addDomain(t, local, remote)

	res, err := f.engine.ReconcileDomains(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Discrepancies, 1)
	disc := res.Discrepancies[0]
	assert.Equal(t, domain.FieldAutoRenew, disc.Field)
	assert.Equal(t, "true", disc.LocalValue)
	assert.Equal(t, "false", disc.RemoteValue)
	assert.Equal(t, "example.com", disc.DisplayName)
	assert.Equal(t, res.RunID, disc.RunID)
	assert.NotEmpty(t, disc.ID)

	stored, err := f.domains.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.False(t, stored.AutoRenew)
	require.NotNil(t, stored.LastSyncedAt)

	history, err := f.audit.ListByResource(context.Background(), domain.ResourceDomain, "d1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestReconcileDomains_Idempotent(t *testing.T) {
	f := newFixture(t, Config{})
	local := exampleDomain()
	remote := inSync(local)
	remote.Status = "Expired"
	remote.Nameservers = []string{"ns1.other.net", "ns2.other.net"}
	remote.ExpiresAt = expiry.AddDate(1, 0, 0)
	f.addDomain(t, local, remote)

	first, err := f.engine.ReconcileDomains(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, first.Discrepancies, 3)

	second, err := f.engine.ReconcileDomains(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Checked)
	assert.Zero(t, second.Updated)
	assert.Empty(t, second.Discrepancies)

	stored, err := f.domains.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "Expired", stored.Status)
	assert.Equal(t, []string{"ns1.other.net", "ns2.other.net"}, stored.Nameservers)
	assert.True(t, stored.ExpiresAt.Equal(expiry.AddDate(1, 0, 0)))
}

func TestReconcileDomains_InSyncOnlyRefreshesLastSynced(t *testing.T) {
	f := newFixture(t, Config{})
	local := exampleDomain()
	f.addDomain(t, local, inSync(local))
	syncedAt := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	f.engine.now = func() time.Time { return syncedAt }

	res, err := f.engine.ReconcileDomains(context.Background(), "t1")
	require.NoError(t, err)
	assert.Zero(t, res.Updated)

	stored, err := f.domains.Get(context.Background(), "d1")
	require.NoError(t, err)
	require.NotNil(t, stored.LastSyncedAt)
	assert.True(t, stored.LastSyncedAt.Equal(syncedAt))
}

func TestReconcileDomains_ComparesExpiryAsInstant(t *testing.T) {
	f := newFixture(t, Config{})
	local := exampleDomain()
	local.ExpiresAt = expiry.Add(400 * time.Millisecond).In(time.FixedZone("ICT", 7*3600))
	remote := inSync(exampleDomain())
	f.addDomain(t, local, remote)

	res, err := f.engine.ReconcileDomains(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, res.Discrepancies)
}

func TestReconcileDomains_SkipsAndPaces(t *testing.T) {
	f := newFixture(t, Config{ItemDelay: 2 * time.Second})

	noOrder := exampleDomain()
	noOrder.ID, noOrder.Name, noOrder.OrderID = "d0", "a-no-order.com", ""
	f.addDomain(t, noOrder, domain.DomainDetails{})

	imported := exampleDomain()
	imported.ID, imported.Name, imported.OrderID, imported.CreatedViaAPI = "d2", "b-imported.com", "1002", false
	f.addDomain(t, imported, inSync(imported))

	for i, name := range []string{"c.com", "d.com", "e.com"} {
		d := exampleDomain()
		d.ID, d.Name, d.OrderID = name, name, "20"+string(rune('0'+i))
		f.addDomain(t, d, inSync(d))
	}

	res, err := f.engine.ReconcileDomains(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, f.sleeps)
	assert.Equal(t, []string{"200", "201", "202"}, f.remote.calls)
}

func TestReconcileDomains_ItemFailureIsRecorded(t *testing.T) {
	f := newFixture(t, Config{})

	gone := exampleDomain()
	gone.ID, gone.Name, gone.OrderID = "d0", "a-gone.com", "999"
	require.NoError(t, f.domains.Save(context.Background(), &gone))

	ok := exampleDomain()
	remote := inSync(ok)
	remote.Locked = false
	f.addDomain(t, ok, remote)

	res, err := f.engine.ReconcileDomains(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "d0", res.Errors[0].ResourceID)
	assert.True(t, rpc.IsKind(res.Errors[0], rpc.KindOrderNotFound))
}

func TestReconcileDomains_GraceWindow(t *testing.T) {
	f := newFixture(t, Config{GraceWindow: time.Hour})
	local := exampleDomain()
	remote := inSync(local)
	remote.AutoRenew = false
	f.addDomain(t, local, remote)

	saved, err := f.domains.Get(context.Background(), "d1")
	require.NoError(t, err)

	f.engine.now = func() time.Time { return saved.UpdatedAt.Add(10 * time.Minute) }
	res, err := f.engine.ReconcileDomains(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Checked)

	f.engine.now = func() time.Time { return saved.UpdatedAt.Add(2 * time.Hour) }
	res, err = f.engine.ReconcileDomains(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	// The correction does not restart the grace window.
	stored, err := f.domains.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, saved.UpdatedAt, stored.UpdatedAt)
}

func TestReconcileDomains_CancelledDuringDelay(t *testing.T) {
	f := newFixture(t, Config{ItemDelay: time.Second})
	for _, name := range []string{"a.com", "b.com"} {
		d := exampleDomain()
		d.ID, d.Name, d.OrderID = name, name, name
		f.addDomain(t, d, inSync(d))
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.engine.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	res, err := f.engine.ReconcileDomains(ctx, "t1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Checked)
}

func TestReconcileEmailOrders_SeatsAndPlan(t *testing.T) {
	f := newFixture(t, Config{})
	order := domain.EmailOrder{
		ID:            "e1",
		TenantID:      "t1",
		OrderID:       "5001",
		DomainName:    "example.com",
		Plan:          "Business",
		Seats:         5,
		Status:        "Active",
		ExpiresAt:     expiry,
		AutoRenew:     true,
		CreatedViaAPI: true,
	}
	require.NoError(t, f.email.Save(context.Background(), &order))
	f.remoteE.details["5001"] = domain.EmailDetails{
		OrderID:    "5001",
		DomainName: "example.com",
		Plan:       "Enterprise",
		Seats:      8,
		Status:     "Active",
		ExpiresAt:  expiry,
		AutoRenew:  true,
	}

	res, err := f.engine.ReconcileEmailOrders(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, res.Discrepancies, 2)
	assert.Equal(t, domain.FieldSeats, res.Discrepancies[0].Field)
	assert.Equal(t, "5", res.Discrepancies[0].LocalValue)
	assert.Equal(t, "8", res.Discrepancies[0].RemoteValue)
	assert.Equal(t, domain.FieldPlan, res.Discrepancies[1].Field)

	stored, err := f.email.Get(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, 8, stored.Seats)
	assert.Equal(t, "Enterprise", stored.Plan)
}

func TestRunAll_AggregatesTenants(t *testing.T) {
	f := newFixture(t, Config{Concurrency: 2})
	for _, tenant := range []string{"t1", "t2"} {
		d := exampleDomain()
		d.ID, d.TenantID, d.OrderID = "d-"+tenant, tenant, "o-"+tenant
		remote := inSync(d)
		remote.AutoRenew = false
		f.addDomain(t, d, remote)
	}
	// Parallel tenants share the fixture's sleep recorder.
	f.engine.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	res, err := f.engine.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 2, res.Updated)
	require.Len(t, res.Discrepancies, 2)
	for _, d := range res.Discrepancies {
		assert.Equal(t, res.RunID, d.RunID)
	}
}

func TestReconcileEmailOrders_KeepsUnreportedFields(t *testing.T) {
	f := newFixture(t, Config{})
	order := domain.EmailOrder{
		ID:            "e1",
		TenantID:      "t1",
		OrderID:       "e-1",
		DomainName:    "example.com",
		Plan:          "Business",
		Seats:         5,
		Status:        "Active",
		ExpiresAt:     expiry,
		CreatedViaAPI: true,
	}
	require.NoError(t, f.email.Save(context.Background(), &order))
	f.remoteE.details["e-1"] = domain.EmailDetails{
		OrderID:   "e-1",
		Status:    "Active",
		ExpiresAt: expiry,
		AutoRenew: true,
		Omitted:   domain.Omissions{domain.FieldSeats, domain.FieldPlan},
	}

	res, err := f.engine.ReconcileEmailOrders(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, res.Discrepancies, 1)
	assert.Equal(t, domain.FieldAutoRenew, res.Discrepancies[0].Field)

	stored, err := f.email.Get(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Seats)
	assert.Equal(t, "Business", stored.Plan)
	assert.True(t, stored.AutoRenew)
}

func TestReconcileDomains_KeepsUnreportedFields(t *testing.T) {
	f := newFixture(t, Config{})
	local := exampleDomain()
	f.addDomain(t, local, domain.DomainDetails{
		OrderID:   local.OrderID,
		AutoRenew: local.AutoRenew,
		Locked:    local.Locked,
		ExpiresAt: local.ExpiresAt,
		Omitted: domain.Omissions{
			domain.FieldStatus,
			domain.FieldPrivacyProtected,
			domain.FieldNameservers,
		},
	})

	res, err := f.engine.ReconcileDomains(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, res.Discrepancies)

	stored, err := f.domains.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "Active", stored.Status)
	assert.Equal(t, local.Nameservers, stored.Nameservers)
}

func TestRunAll_TenantFailureDoesNotStopOthers(t *testing.T) {
	f := newFixture(t, Config{Concurrency: 2, ItemDelay: 20 * time.Millisecond})
	f.engine.sleep = sleepContext
	f.engine.stores.EmailOrders = brokenEmailOrders{EmailOrderRepository: f.email, tenant: "bad"}

	bad := exampleDomain()
	bad.ID, bad.TenantID, bad.Name, bad.OrderID = "bad-1", "bad", "bad.com", "b-1"
	f.addDomain(t, bad, inSync(bad))

	for _, name := range []string{"a.com", "b.com", "c.com"} {
		d := exampleDomain()
		d.ID, d.TenantID, d.Name, d.OrderID = "good-"+name, "good", name, "g-"+name
		f.addDomain(t, d, inSync(d))
	}

	res, err := f.engine.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Checked)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, domain.ResourceEmailOrder, res.Errors[0].ResourceType)
	assert.Equal(t, "bad", res.Errors[0].ResourceID)
	assert.ErrorIs(t, res.Errors[0], errStore)
}

func TestReconcileTenant_DomainListFailureStillChecksEmail(t *testing.T) {
	f := newFixture(t, Config{})
	f.engine.stores.Domains = brokenDomains{DomainRepository: f.domains, tenant: "t1"}

	order := domain.EmailOrder{
		ID:            "e1",
		TenantID:      "t1",
		OrderID:       "5001",
		DomainName:    "example.com",
		Seats:         2,
		Status:        "Active",
		CreatedViaAPI: true,
	}
	require.NoError(t, f.email.Save(context.Background(), &order))
	f.remoteE.details["5001"] = domain.EmailDetails{OrderID: "5001", Seats: 3, Status: "Active"}

	res, err := f.engine.ReconcileTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, domain.ResourceDomain, res.Errors[0].ResourceType)
	assert.ErrorIs(t, res.Errors[0], errStore)
}

type brokenDomains struct {
	storage.DomainRepository
	tenant string
}

func (b brokenDomains) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Domain, error) {
	if tenantID == b.tenant {
		return nil, errStore
	}
	return b.DomainRepository.ListByTenant(ctx, tenantID)
}

package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/storage"
)

type priceKey struct {
	resourceKey string
	tier        domain.Tier
	slab        string
	action      domain.Action
	duration    int
}

// MemoryStorage keeps every collection in process memory. Used when no database is configured.
type MemoryStorage struct {
	prices      map[priceKey]domain.CachedPrice
	domains     map[string]*domain.Domain
	emailOrders map[string]*domain.EmailOrder
	audit       []domain.Discrepancy
	mu          sync.RWMutex

	now func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		prices:      make(map[priceKey]domain.CachedPrice),
		domains:     make(map[string]*domain.Domain),
		emailOrders: make(map[string]*domain.EmailOrder),
		now:         time.Now,
	}
}

// -----------------------------------------------------------------------------
// Price Repository
// -----------------------------------------------------------------------------

type PriceRepo struct {
	store *MemoryStorage
}

func NewPriceRepo(store *MemoryStorage) *PriceRepo {
	return &PriceRepo{store: store}
}

func (r *PriceRepo) UpsertBatch(ctx context.Context, rows []domain.CachedPrice) error {
	for _, row := range rows {
		if row.Amount < 0 {
			return domain.ErrNegativeAmount
		}
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, row := range rows {
		k := priceKey{row.ResourceKey, row.Tier, row.Slab, row.Action, row.Duration}
		r.store.prices[k] = row
	}
	return nil
}

func (r *PriceRepo) Find(ctx context.Context, resourceKey string, tier domain.Tier) ([]domain.CachedPrice, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.CachedPrice
	for k, row := range r.store.prices {
		if k.resourceKey == resourceKey && k.tier == tier {
			out = append(out, row)
		}
	}
	sortPrices(out)
	return out, nil
}

func (r *PriceRepo) ListByTier(ctx context.Context, tier domain.Tier) ([]domain.CachedPrice, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.CachedPrice
	for k, row := range r.store.prices {
		if k.tier == tier {
			out = append(out, row)
		}
	}
	sortPrices(out)
	return out, nil
}

func sortPrices(rows []domain.CachedPrice) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ResourceKey != b.ResourceKey {
			return a.ResourceKey < b.ResourceKey
		}
		if a.Slab != b.Slab {
			return a.Slab < b.Slab
		}
		if a.Action != b.Action {
			return a.Action < b.Action
		}
		return a.Duration < b.Duration
	})
}

// -----------------------------------------------------------------------------
// Domain Repository
// -----------------------------------------------------------------------------

type DomainRepo struct {
	store *MemoryStorage
}

func NewDomainRepo(store *MemoryStorage) *DomainRepo {
	return &DomainRepo{store: store}
}

func cloneDomain(d *domain.Domain) *domain.Domain {
	c := *d
	c.Nameservers = slices.Clone(d.Nameservers)
	if d.LastSyncedAt != nil {
		t := *d.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return &c
}

func (r *DomainRepo) Get(ctx context.Context, id string) (*domain.Domain, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	d, ok := r.store.domains[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneDomain(d), nil
}

func (r *DomainRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Domain, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, d := range r.store.domains {
		if orderID != "" && d.OrderID == orderID {
			return cloneDomain(d), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *DomainRepo) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Domain, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Domain
	for _, d := range r.store.domains {
		if d.TenantID == tenantID {
			out = append(out, cloneDomain(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *DomainRepo) Save(ctx context.Context, d *domain.Domain) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := cloneDomain(d)
	c.UpdatedAt = r.store.now()
	r.store.domains[d.ID] = c
	d.UpdatedAt = c.UpdatedAt
	return nil
}

func (r *DomainRepo) Update(ctx context.Context, id string, patch domain.Patch) error {
	if err := storage.ValidatePatch(patch, storage.DomainFields); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	d, ok := r.store.domains[id]
	if !ok {
		return storage.ErrNotFound
	}
	for field, v := range patch {
		switch field {
		case domain.FieldStatus:
			d.Status = v.(string)
		case domain.FieldExpiresAt:
			d.ExpiresAt = v.(time.Time)
		case domain.FieldAutoRenew:
			d.AutoRenew = v.(bool)
		case domain.FieldLocked:
			d.Locked = v.(bool)
		case domain.FieldPrivacyProtected:
			d.PrivacyProtected = v.(bool)
		case domain.FieldNameservers:
			d.Nameservers = slices.Clone(v.([]string))
		case domain.FieldLastSyncedAt:
			t := v.(time.Time)
			d.LastSyncedAt = &t
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Email Order Repository
// -----------------------------------------------------------------------------

type EmailOrderRepo struct {
	store *MemoryStorage
}

func NewEmailOrderRepo(store *MemoryStorage) *EmailOrderRepo {
	return &EmailOrderRepo{store: store}
}

func cloneEmailOrder(o *domain.EmailOrder) *domain.EmailOrder {
	c := *o
	if o.LastSyncedAt != nil {
		t := *o.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return &c
}

func (r *EmailOrderRepo) Get(ctx context.Context, id string) (*domain.EmailOrder, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	o, ok := r.store.emailOrders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneEmailOrder(o), nil
}

func (r *EmailOrderRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.EmailOrder, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, o := range r.store.emailOrders {
		if orderID != "" && o.OrderID == orderID {
			return cloneEmailOrder(o), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *EmailOrderRepo) ListByTenant(ctx context.Context, tenantID string) ([]*domain.EmailOrder, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.EmailOrder
	for _, o := range r.store.emailOrders {
		if o.TenantID == tenantID {
			out = append(out, cloneEmailOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DomainName < out[j].DomainName })
	return out, nil
}

func (r *EmailOrderRepo) Save(ctx context.Context, o *domain.EmailOrder) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := cloneEmailOrder(o)
	c.UpdatedAt = r.store.now()
	r.store.emailOrders[o.ID] = c
	o.UpdatedAt = c.UpdatedAt
	return nil
}

func (r *EmailOrderRepo) Update(ctx context.Context, id string, patch domain.Patch) error {
	if err := storage.ValidatePatch(patch, storage.EmailOrderFields); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.emailOrders[id]
	if !ok {
		return storage.ErrNotFound
	}
	for field, v := range patch {
		switch field {
		case domain.FieldStatus:
			o.Status = v.(string)
		case domain.FieldExpiresAt:
			o.ExpiresAt = v.(time.Time)
		case domain.FieldAutoRenew:
			o.AutoRenew = v.(bool)
		case domain.FieldSeats:
			o.Seats = v.(int)
		case domain.FieldPlan:
			o.Plan = v.(string)
		case domain.FieldLastSyncedAt:
			t := v.(time.Time)
			o.LastSyncedAt = &t
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Audit and Tenant Repositories
// -----------------------------------------------------------------------------

type AuditRepo struct {
	store *MemoryStorage
}

func NewAuditRepo(store *MemoryStorage) *AuditRepo {
	return &AuditRepo{store: store}
}

func (r *AuditRepo) Append(ctx context.Context, entries []domain.Discrepancy) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.audit = append(r.store.audit, entries...)
	return nil
}

func (r *AuditRepo) ListByResource(
	ctx context.Context,
	resourceType domain.ResourceType,
	resourceID string,
) ([]domain.Discrepancy, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Discrepancy
	for i := len(r.store.audit) - 1; i >= 0; i-- {
		e := r.store.audit[i]
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

type TenantRepo struct {
	store *MemoryStorage
}

func NewTenantRepo(store *MemoryStorage) *TenantRepo {
	return &TenantRepo{store: store}
}

func (r *TenantRepo) ListTenants(ctx context.Context) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	seen := make(map[string]bool)
	for _, d := range r.store.domains {
		seen[d.TenantID] = true
	}
	for _, o := range r.store.emailOrders {
		seen[o.TenantID] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

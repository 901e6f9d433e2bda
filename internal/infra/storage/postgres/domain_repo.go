package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/storage"
)

type domainRow struct {
	ID               string         `db:"id"`
	TenantID         string         `db:"tenant_id"`
	OrderID          string         `db:"order_id"`
	Name             string         `db:"name"`
	Status           string         `db:"status"`
	ExpiresAt        sql.NullTime   `db:"expires_at"`
	AutoRenew        bool           `db:"auto_renew"`
	Locked           bool           `db:"locked"`
	PrivacyProtected bool           `db:"privacy_protected"`
	Nameservers      pq.StringArray `db:"nameservers"`
	CreatedViaAPI    bool           `db:"created_via_api"`
	LastSyncedAt     sql.NullTime   `db:"last_synced_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return nullTime(*t)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func (r domainRow) toDomain() *domain.Domain {
	d := &domain.Domain{
		ID:               r.ID,
		TenantID:         r.TenantID,
		OrderID:          r.OrderID,
		Name:             r.Name,
		Status:           r.Status,
		AutoRenew:        r.AutoRenew,
		Locked:           r.Locked,
		PrivacyProtected: r.PrivacyProtected,
		Nameservers:      []string(r.Nameservers),
		CreatedViaAPI:    r.CreatedViaAPI,
		LastSyncedAt:     timePtr(r.LastSyncedAt),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if r.ExpiresAt.Valid {
		d.ExpiresAt = r.ExpiresAt.Time.UTC()
	}
	return d
}

// DomainRepo implements storage.DomainRepository using PostgreSQL.
type DomainRepo struct {
	db *DB
}

// NewDomainRepo creates a new PostgreSQL domain repository.
func NewDomainRepo(db *DB) *DomainRepo {
	return &DomainRepo{db: db}
}

const selectDomains = `
SELECT id, tenant_id, order_id, name, status, expires_at, auto_renew, locked,
       privacy_protected, nameservers, created_via_api, last_synced_at, updated_at
FROM domains`

func (r *DomainRepo) getOne(ctx context.Context, where string, arg any) (*domain.Domain, error) {
	var row domainRow
	err := r.db.GetContext(ctx, &row, selectDomains+" WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}
	return row.toDomain(), nil
}

// Get retrieves a domain by local id.
func (r *DomainRepo) Get(ctx context.Context, id string) (*domain.Domain, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByOrderID retrieves a domain by registrar order id.
func (r *DomainRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Domain, error) {
	return r.getOne(ctx, "order_id = $1 AND order_id <> '' LIMIT 1", orderID)
}

// ListByTenant retrieves all domains of a tenant.
func (r *DomainRepo) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Domain, error) {
	var rows []domainRow
	if err := r.db.SelectContext(ctx, &rows, selectDomains+" WHERE tenant_id = $1 ORDER BY name", tenantID); err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	out := make([]*domain.Domain, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Save inserts or replaces a domain.
func (r *DomainRepo) Save(ctx context.Context, d *domain.Domain) error {
	d.UpdatedAt = time.Now().UTC()
	row := domainRow{
		ID:               d.ID,
		TenantID:         d.TenantID,
		OrderID:          d.OrderID,
		Name:             d.Name,
		Status:           d.Status,
		ExpiresAt:        nullTime(d.ExpiresAt),
		AutoRenew:        d.AutoRenew,
		Locked:           d.Locked,
		PrivacyProtected: d.PrivacyProtected,
		Nameservers:      pq.StringArray(d.Nameservers),
		CreatedViaAPI:    d.CreatedViaAPI,
		LastSyncedAt:     nullTimePtr(d.LastSyncedAt),
		UpdatedAt:        d.UpdatedAt,
	}
	if row.Nameservers == nil {
		row.Nameservers = pq.StringArray{}
	}

	_, err := r.db.NamedExecContext(ctx, `
INSERT INTO domains (
    id, tenant_id, order_id, name, status, expires_at, auto_renew, locked,
    privacy_protected, nameservers, created_via_api, last_synced_at, updated_at
) VALUES (
    :id, :tenant_id, :order_id, :name, :status, :expires_at, :auto_renew, :locked,
    :privacy_protected, :nameservers, :created_via_api, :last_synced_at, :updated_at
)
ON CONFLICT (id) DO UPDATE SET
    tenant_id         = EXCLUDED.tenant_id,
    order_id          = EXCLUDED.order_id,
    name              = EXCLUDED.name,
    status            = EXCLUDED.status,
    expires_at        = EXCLUDED.expires_at,
    auto_renew        = EXCLUDED.auto_renew,
    locked            = EXCLUDED.locked,
    privacy_protected = EXCLUDED.privacy_protected,
    nameservers       = EXCLUDED.nameservers,
    created_via_api   = EXCLUDED.created_via_api,
    last_synced_at    = EXCLUDED.last_synced_at,
    updated_at        = EXCLUDED.updated_at`, row)
	if err != nil {
		return fmt.Errorf("failed to save domain: %w", err)
	}
	return nil
}

// Update applies a field patch.
func (r *DomainRepo) Update(ctx context.Context, id string, patch domain.Patch) error {
	return r.db.applyPatch(ctx, "domains", id, patch, storage.DomainFields)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/storage"
)

type emailOrderRow struct {
	ID            string       `db:"id"`
	TenantID      string       `db:"tenant_id"`
	OrderID       string       `db:"order_id"`
	DomainName    string       `db:"domain_name"`
	Plan          string       `db:"plan"`
	Seats         int          `db:"seats"`
	Status        string       `db:"status"`
	ExpiresAt     sql.NullTime `db:"expires_at"`
	AutoRenew     bool         `db:"auto_renew"`
	CreatedViaAPI bool         `db:"created_via_api"`
	LastSyncedAt  sql.NullTime `db:"last_synced_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r emailOrderRow) toDomain() *domain.EmailOrder {
	o := &domain.EmailOrder{
		ID:            r.ID,
		TenantID:      r.TenantID,
		OrderID:       r.OrderID,
		DomainName:    r.DomainName,
		Plan:          r.Plan,
		Seats:         r.Seats,
		Status:        r.Status,
		AutoRenew:     r.AutoRenew,
		CreatedViaAPI: r.CreatedViaAPI,
		LastSyncedAt:  timePtr(r.LastSyncedAt),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.ExpiresAt.Valid {
		o.ExpiresAt = r.ExpiresAt.Time.UTC()
	}
	return o
}

// EmailOrderRepo implements storage.EmailOrderRepository using PostgreSQL.
type EmailOrderRepo struct {
	db *DB
}

// NewEmailOrderRepo creates a new PostgreSQL email order repository.
func NewEmailOrderRepo(db *DB) *EmailOrderRepo {
	return &EmailOrderRepo{db: db}
}

const selectEmailOrders = `
SELECT id, tenant_id, order_id, domain_name, plan, seats, status, expires_at,
       auto_renew, created_via_api, last_synced_at, updated_at
FROM email_orders`

func (r *EmailOrderRepo) getOne(ctx context.Context, where string, arg any) (*domain.EmailOrder, error) {
	var row emailOrderRow
	err := r.db.GetContext(ctx, &row, selectEmailOrders+" WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email order: %w", err)
	}
	return row.toDomain(), nil
}

func (r *EmailOrderRepo) Get(ctx context.Context, id string) (*domain.EmailOrder, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *EmailOrderRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.EmailOrder, error) {
	return r.getOne(ctx, "order_id = $1 AND order_id <> '' LIMIT 1", orderID)
}

func (r *EmailOrderRepo) ListByTenant(ctx context.Context, tenantID string) ([]*domain.EmailOrder, error) {
	var rows []emailOrderRow
	if err := r.db.SelectContext(ctx, &rows, selectEmailOrders+" WHERE tenant_id = $1 ORDER BY domain_name", tenantID); err != nil {
		return nil, fmt.Errorf("failed to list email orders: %w", err)
	}
	out := make([]*domain.EmailOrder, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *EmailOrderRepo) Save(ctx context.Context, o *domain.EmailOrder) error {
	o.UpdatedAt = time.Now().UTC()
	row := emailOrderRow{
		ID:            o.ID,
		TenantID:      o.TenantID,
		OrderID:       o.OrderID,
		DomainName:    o.DomainName,
		Plan:          o.Plan,
		Seats:         o.Seats,
		Status:        o.Status,
		ExpiresAt:     nullTime(o.ExpiresAt),
		AutoRenew:     o.AutoRenew,
		CreatedViaAPI: o.CreatedViaAPI,
		LastSyncedAt:  nullTimePtr(o.LastSyncedAt),
		UpdatedAt:     o.UpdatedAt,
	}

	_, err := r.db.NamedExecContext(ctx, `
INSERT INTO email_orders (
    id, tenant_id, order_id, domain_name, plan, seats, status, expires_at,
    auto_renew, created_via_api, last_synced_at, updated_at
) VALUES (
    :id, :tenant_id, :order_id, :domain_name, :plan, :seats, :status, :expires_at,
    :auto_renew, :created_via_api, :last_synced_at, :updated_at
)
ON CONFLICT (id) DO UPDATE SET
    tenant_id       = EXCLUDED.tenant_id,
    order_id        = EXCLUDED.order_id,
    domain_name     = EXCLUDED.domain_name,
    plan            = EXCLUDED.plan,
    seats           = EXCLUDED.seats,
    status          = EXCLUDED.status,
    expires_at      = EXCLUDED.expires_at,
    auto_renew      = EXCLUDED.auto_renew,
    created_via_api = EXCLUDED.created_via_api,
    last_synced_at  = EXCLUDED.last_synced_at,
    updated_at      = EXCLUDED.updated_at`, row)
	if err != nil {
		return fmt.Errorf("failed to save email order: %w", err)
	}
	return nil
}

func (r *EmailOrderRepo) Update(ctx context.Context, id string, patch domain.Patch) error {
	return r.db.applyPatch(ctx, "email_orders", id, patch, storage.EmailOrderFields)
}

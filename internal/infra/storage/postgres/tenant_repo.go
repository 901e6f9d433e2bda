package postgres

import (
	"context"
	"fmt"
)

// TenantRepo lists tenants from the mirrored resource tables.
type TenantRepo struct {
	db *DB
}

func NewTenantRepo(db *DB) *TenantRepo {
	return &TenantRepo{db: db}
}

func (r *TenantRepo) ListTenants(ctx context.Context) ([]string, error) {
	var tenants []string
	err := r.db.SelectContext(ctx, &tenants, `
SELECT tenant_id FROM domains
UNION
SELECT tenant_id FROM email_orders
ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

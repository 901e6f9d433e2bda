package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidPatch is returned when a patch names a field the collection doesn't track
	ErrInvalidPatch = errors.New("invalid patch")
)

// PriceRepository handles cached price rows
type PriceRepository interface {
	// UpsertBatch writes rows keyed by (resource key, tier, slab, action, duration).
	// All rows are written in one transaction.
	UpsertBatch(ctx context.Context, rows []domain.CachedPrice) error

	// Find returns every row of a resource key in a tier
	Find(ctx context.Context, resourceKey string, tier domain.Tier) ([]domain.CachedPrice, error)

	// ListByTier returns every row of a tier
	ListByTier(ctx context.Context, tier domain.Tier) ([]domain.CachedPrice, error)
}

// DomainRepository handles mirrored domains
type DomainRepository interface {
	// Get retrieves a domain by local id
	Get(ctx context.Context, id string) (*domain.Domain, error)

	// GetByOrderID retrieves a domain by registrar order id
	GetByOrderID(ctx context.Context, orderID string) (*domain.Domain, error)

	// ListByTenant retrieves all domains of a tenant
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Domain, error)

	// Save inserts or replaces a domain and stamps UpdatedAt (provisioning, imports, user edits)
	Save(ctx context.Context, d *domain.Domain) error

	// Update applies a field patch without touching UpdatedAt
	Update(ctx context.Context, id string, patch domain.Patch) error
}

// EmailOrderRepository handles mirrored email orders
type EmailOrderRepository interface {
	Get(ctx context.Context, id string) (*domain.EmailOrder, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.EmailOrder, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.EmailOrder, error)
	Save(ctx context.Context, o *domain.EmailOrder) error
	Update(ctx context.Context, id string, patch domain.Patch) error
}

// AuditRepository keeps the reconciliation audit log
type AuditRepository interface {
	// Append stores discrepancies
	Append(ctx context.Context, entries []domain.Discrepancy) error

	// ListByResource returns the audit history of a resource, newest first
	ListByResource(ctx context.Context, resourceType domain.ResourceType, resourceID string) ([]domain.Discrepancy, error)
}

// TenantRepository lists tenants owning mirrored resources
type TenantRepository interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// DomainFields are the patchable domain columns.
var DomainFields = map[string]bool{
	domain.FieldStatus:           true,
	domain.FieldExpiresAt:        true,
	domain.FieldAutoRenew:        true,
	domain.FieldLocked:           true,
	domain.FieldPrivacyProtected: true,
	domain.FieldNameservers:      true,
	domain.FieldLastSyncedAt:     true,
}

// EmailOrderFields are the patchable email order columns.
var EmailOrderFields = map[string]bool{
	domain.FieldStatus:       true,
	domain.FieldExpiresAt:    true,
	domain.FieldAutoRenew:    true,
	domain.FieldSeats:        true,
	domain.FieldPlan:         true,
	domain.FieldLastSyncedAt: true,
}

// ValidatePatch checks field names and value types.
func ValidatePatch(patch domain.Patch, allowed map[string]bool) error {
	if len(patch) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidPatch)
	}
	for field, v := range patch {
		if !allowed[field] {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidPatch, field)
		}
		var ok bool
		switch field {
		case domain.FieldStatus, domain.FieldPlan:
			_, ok = v.(string)
		case domain.FieldExpiresAt, domain.FieldLastSyncedAt:
			_, ok = v.(time.Time)
		case domain.FieldAutoRenew, domain.FieldLocked, domain.FieldPrivacyProtected:
			_, ok = v.(bool)
		case domain.FieldNameservers:
			_, ok = v.([]string)
		case domain.FieldSeats:
			_, ok = v.(int)
		}
		if !ok {
			return fmt.Errorf("%w: field %q has type %T", ErrInvalidPatch, field, v)
		}
	}
	return nil
}

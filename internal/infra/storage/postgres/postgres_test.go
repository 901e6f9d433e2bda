package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/storage"
)

// openTestDB connects to REGSYNC_TEST_DB_URL and migrates it. The database
// should be disposable; tables are truncated before each test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("REGSYNC_TEST_DB_URL")
	if url == "" {
		t.Skip("REGSYNC_TEST_DB_URL not set")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url})
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, "TRUNCATE cached_prices, domains, email_orders, reconciliation_audit"); err != nil {
		t.Fatalf("Failed to truncate: %v", err)
	}
	return db
}

func TestPriceRepo_UpsertIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewPriceRepo(db)
	ctx := context.Background()

	row := domain.CachedPrice{
		PriceQuote: domain.PriceQuote{
			ResourceKey: "dotcom",
			Action:      domain.ActionRegister,
			Unit:        domain.UnitYears,
			Duration:    1,
			Amount:      1020,
			Currency:    "USD",
		},
		Tier:        domain.TierCustomer,
		Source:      "products/customer-price.json",
		RefreshedAt: time.Now().UTC().Truncate(time.Second),
	}

	for i := 0; i < 2; i++ {
		if err := repo.UpsertBatch(ctx, []domain.CachedPrice{row}); err != nil {
			t.Fatalf("UpsertBatch failed: %v", err)
		}
	}

	rows, err := repo.Find(ctx, "dotcom", domain.TierCustomer)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Amount != 1020 {
		t.Fatalf("expected one row of 1020, got %+v", rows)
	}
}

func TestDomainRepo_UpdateKeepsUpdatedAt(t *testing.T) {
	db := openTestDB(t)
	repo := NewDomainRepo(db)
	ctx := context.Background()

	d := &domain.Domain{
		ID:            "d1",
		TenantID:      "t1",
		OrderID:       "1001",
		Name:          "example.com",
		Status:        "Active",
		ExpiresAt:     time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		AutoRenew:     true,
		Nameservers:   []string{"ns1.example.net", "ns2.example.net"},
		CreatedViaAPI: true,
	}
	if err := repo.Save(ctx, d); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	saved, err := repo.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	synced := time.Now().UTC().Truncate(time.Second)
	err = repo.Update(ctx, "d1", domain.Patch{
		domain.FieldAutoRenew:    false,
		domain.FieldNameservers:  []string{"ns1.other.net"},
		domain.FieldLastSyncedAt: synced,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.GetByOrderID(ctx, "1001")
	if err != nil {
		t.Fatalf("GetByOrderID failed: %v", err)
	}
	if got.AutoRenew || len(got.Nameservers) != 1 || got.LastSyncedAt == nil || !got.LastSyncedAt.Equal(synced) {
		t.Errorf("patch not applied: %+v", got)
	}
	if !got.UpdatedAt.Equal(saved.UpdatedAt) {
		t.Errorf("Update must not move updated_at: %v -> %v", saved.UpdatedAt, got.UpdatedAt)
	}

	if err := repo.Update(ctx, "missing", domain.Patch{domain.FieldLocked: true}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	tenants, err := NewTenantRepo(db).ListTenants(ctx)
	if err != nil || len(tenants) != 1 || tenants[0] != "t1" {
		t.Errorf("ListTenants = %v, %v", tenants, err)
	}
}

func TestAuditRepo_AppendAndList(t *testing.T) {
	db := openTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	runID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)
	entries := []domain.Discrepancy{
		{ID: uuid.NewString(), RunID: runID, ResourceType: domain.ResourceDomain, ResourceID: "d1",
			DisplayName: "example.com", Field: domain.FieldAutoRenew, LocalValue: "true", RemoteValue: "false",
			DetectedAt: now.Add(-time.Hour)},
		{ID: uuid.NewString(), RunID: runID, ResourceType: domain.ResourceDomain, ResourceID: "d1",
			DisplayName: "example.com", Field: domain.FieldStatus, LocalValue: "Active", RemoteValue: "Expired",
			DetectedAt: now},
	}
	if err := repo.Append(ctx, entries); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := repo.ListByResource(ctx, domain.ResourceDomain, "d1")
	if err != nil {
		t.Fatalf("ListByResource failed: %v", err)
	}
	if len(got) != 2 || got[0].Field != domain.FieldStatus {
		t.Errorf("expected newest first, got %+v", got)
	}
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/storage"
)

func TestPriceRepo_UpsertIsIdempotent(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewPriceRepo(store)
	ctx := context.Background()

	row := domain.CachedPrice{
		PriceQuote: domain.PriceQuote{
			ResourceKey: "dotcom", Action: domain.ActionRegister,
			Unit: domain.UnitYears, Duration: 1, Amount: 1020, Currency: "USD",
		},
		Tier:        domain.TierCustomer,
		RefreshedAt: time.Now(),
	}

	for i := 0; i < 3; i++ {
		if err := repo.UpsertBatch(ctx, []domain.CachedPrice{row}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	rows, err := repo.Find(ctx, "dotcom", domain.TierCustomer)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 1 || rows[0].Amount != 1020 {
		t.Errorf("expected one row of 1020, got %+v", rows)
	}

	other, _ := repo.Find(ctx, "dotcom", domain.TierReseller)
	if len(other) != 0 {
		t.Errorf("tiers must not share rows")
	}
}

func TestPriceRepo_RejectsNegative(t *testing.T) {
	repo := NewPriceRepo(NewMemoryStorage())
	row := domain.CachedPrice{PriceQuote: domain.PriceQuote{ResourceKey: "x", Amount: -1}}
	if err := repo.UpsertBatch(context.Background(), []domain.CachedPrice{row}); !errors.Is(err, domain.ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestDomainRepo_UpdateKeepsUpdatedAt(t *testing.T) {
	store := NewMemoryStorage()
	saved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return saved }
	repo := NewDomainRepo(store)
	ctx := context.Background()

	d := &domain.Domain{ID: "d1", TenantID: "t1", OrderID: "42", Name: "example.com", Nameservers: []string{"a", "b"}}
	if err := repo.Save(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}

	synced := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	err := repo.Update(ctx, "d1", domain.Patch{
		domain.FieldAutoRenew:    true,
		domain.FieldNameservers:  []string{"c", "d"},
		domain.FieldLastSyncedAt: synced,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.GetByOrderID(ctx, "42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.AutoRenew || got.Nameservers[0] != "c" || !got.LastSyncedAt.Equal(synced) {
		t.Errorf("patch not applied: %+v", got)
	}
	if !got.UpdatedAt.Equal(saved) {
		t.Errorf("update must not touch UpdatedAt, got %v", got.UpdatedAt)
	}
}

func TestDomainRepo_UpdateValidation(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewDomainRepo(store)
	ctx := context.Background()
	_ = repo.Save(ctx, &domain.Domain{ID: "d1"})

	tests := []struct {
		name  string
		id    string
		patch domain.Patch
		want  error
	}{
		{"unknown field", "d1", domain.Patch{"seats": 3}, storage.ErrInvalidPatch},
		{"wrong type", "d1", domain.Patch{domain.FieldAutoRenew: "yes"}, storage.ErrInvalidPatch},
		{"empty", "d1", domain.Patch{}, storage.ErrInvalidPatch},
		{"missing", "nope", domain.Patch{domain.FieldStatus: "Active"}, storage.ErrNotFound},
	}
	for _, tt := range tests {
		if err := repo.Update(ctx, tt.id, tt.patch); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestTenantRepo_ListTenants(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	_ = NewDomainRepo(store).Save(ctx, &domain.Domain{ID: "d1", TenantID: "b"})
	_ = NewDomainRepo(store).Save(ctx, &domain.Domain{ID: "d2", TenantID: "a"})
	_ = NewEmailOrderRepo(store).Save(ctx, &domain.EmailOrder{ID: "e1", TenantID: "c"})
	_ = NewEmailOrderRepo(store).Save(ctx, &domain.EmailOrder{ID: "e2", TenantID: "a"})

	tenants, err := NewTenantRepo(store).ListTenants(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tenants) != 3 || tenants[0] != "a" || tenants[2] != "c" {
		t.Errorf("unexpected tenants %v", tenants)
	}
}

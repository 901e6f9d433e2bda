package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
)

type priceRow struct {
	ResourceKey  string    `db:"resource_key"`
	Tier         string    `db:"tier"`
	Slab         string    `db:"slab"`
	Action       string    `db:"action"`
	Duration     int       `db:"duration"`
	DurationUnit string    `db:"duration_unit"`
	AmountMinor  int64     `db:"amount_minor"`
	Currency     string    `db:"currency"`
	Source       string    `db:"source"`
	RefreshedAt  time.Time `db:"refreshed_at"`
}

func toPriceRow(p domain.CachedPrice) priceRow {
	return priceRow{
		ResourceKey:  p.ResourceKey,
		Tier:         string(p.Tier),
		Slab:         p.Slab,
		Action:       string(p.Action),
		Duration:     p.Duration,
		DurationUnit: string(p.Unit),
		AmountMinor:  p.Amount,
		Currency:     p.Currency,
		Source:       p.Source,
		RefreshedAt:  p.RefreshedAt,
	}
}

func (r priceRow) toDomain() domain.CachedPrice {
	return domain.CachedPrice{
		PriceQuote: domain.PriceQuote{
			ResourceKey: r.ResourceKey,
			Action:      domain.Action(r.Action),
			Unit:        domain.DurationUnit(r.DurationUnit),
			Duration:    r.Duration,
			Amount:      r.AmountMinor,
			Currency:    r.Currency,
		},
		Tier:        domain.Tier(r.Tier),
		Slab:        r.Slab,
		Source:      r.Source,
		RefreshedAt: r.RefreshedAt,
	}
}

// PriceRepo implements storage.PriceRepository using PostgreSQL.
type PriceRepo struct {
	db *DB
}

// NewPriceRepo creates a new PostgreSQL price repository.
func NewPriceRepo(db *DB) *PriceRepo {
	return &PriceRepo{db: db}
}

// UpsertBatch writes all rows in one transaction so readers never see a partial group.
func (r *PriceRepo) UpsertBatch(ctx context.Context, rows []domain.CachedPrice) error {
	for _, row := range rows {
		if row.Amount < 0 {
			return domain.ErrNegativeAmount
		}
	}

	uow, err := r.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.UpsertPrices(ctx, rows); err != nil {
		return err
	}
	return uow.Commit()
}

const selectPrices = `
SELECT resource_key, tier, slab, action, duration, duration_unit,
       amount_minor, currency, source, refreshed_at
FROM cached_prices`

// Find returns every row of a resource key in a tier.
func (r *PriceRepo) Find(ctx context.Context, resourceKey string, tier domain.Tier) ([]domain.CachedPrice, error) {
	var rows []priceRow
	err := r.db.SelectContext(ctx, &rows,
		selectPrices+` WHERE resource_key = $1 AND tier = $2 ORDER BY slab, action, duration`,
		resourceKey, string(tier))
	if err != nil {
		return nil, fmt.Errorf("failed to find prices: %w", err)
	}
	return toPrices(rows), nil
}

// ListByTier returns every row of a tier.
func (r *PriceRepo) ListByTier(ctx context.Context, tier domain.Tier) ([]domain.CachedPrice, error) {
	var rows []priceRow
	err := r.db.SelectContext(ctx, &rows,
		selectPrices+` WHERE tier = $1 ORDER BY resource_key, slab, action, duration`, string(tier))
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	return toPrices(rows), nil
}

func toPrices(rows []priceRow) []domain.CachedPrice {
	out := make([]domain.CachedPrice, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

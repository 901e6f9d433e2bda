package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/regsync/internal/core/domain"
)

// UnitOfWork bundles persistence operations into a single database transaction.
type UnitOfWork struct {
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

const upsertPriceSQL = `
INSERT INTO cached_prices (
    resource_key, tier, slab, action, duration, duration_unit,
    amount_minor, currency, source, refreshed_at
) VALUES (
    :resource_key, :tier, :slab, :action, :duration, :duration_unit,
    :amount_minor, :currency, :source, :refreshed_at
)
ON CONFLICT (resource_key, tier, slab, action, duration) DO UPDATE SET
    duration_unit = EXCLUDED.duration_unit,
    amount_minor  = EXCLUDED.amount_minor,
    currency      = EXCLUDED.currency,
    source        = EXCLUDED.source,
    refreshed_at  = EXCLUDED.refreshed_at`

// UpsertPrices writes price rows inside the transaction.
func (u *UnitOfWork) UpsertPrices(ctx context.Context, rows []domain.CachedPrice) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := u.tx.PrepareNamedContext(ctx, upsertPriceSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare price upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, toPriceRow(row)); err != nil {
			return fmt.Errorf("failed to upsert price %s/%s: %w", row.ResourceKey, row.Tier, err)
		}
	}
	return nil
}

const insertAuditSQL = `
INSERT INTO reconciliation_audit (
    id, run_id, resource_type, resource_id, display_name,
    field, local_value, remote_value, detected_at
) VALUES (
    :id, :run_id, :resource_type, :resource_id, :display_name,
    :field, :local_value, :remote_value, :detected_at
)`

// AppendAudit writes discrepancies inside the transaction.
func (u *UnitOfWork) AppendAudit(ctx context.Context, entries []domain.Discrepancy) error {
	for _, e := range entries {
		if _, err := u.tx.NamedExecContext(ctx, insertAuditSQL, toAuditRow(e)); err != nil {
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}
	return nil
}

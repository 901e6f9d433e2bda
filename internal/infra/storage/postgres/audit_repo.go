package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
)

type auditRow struct {
	ID           string    `db:"id"`
	RunID        string    `db:"run_id"`
	ResourceType string    `db:"resource_type"`
	ResourceID   string    `db:"resource_id"`
	DisplayName  string    `db:"display_name"`
	Field        string    `db:"field"`
	LocalValue   string    `db:"local_value"`
	RemoteValue  string    `db:"remote_value"`
	DetectedAt   time.Time `db:"detected_at"`
}

func toAuditRow(d domain.Discrepancy) auditRow {
	return auditRow{
		ID:           d.ID,
		RunID:        d.RunID,
		ResourceType: string(d.ResourceType),
		ResourceID:   d.ResourceID,
		DisplayName:  d.DisplayName,
		Field:        d.Field,
		LocalValue:   d.LocalValue,
		RemoteValue:  d.RemoteValue,
		DetectedAt:   d.DetectedAt,
	}
}

func (r auditRow) toDomain() domain.Discrepancy {
	return domain.Discrepancy{
		ID:           r.ID,
		RunID:        r.RunID,
		ResourceType: domain.ResourceType(r.ResourceType),
		ResourceID:   r.ResourceID,
		DisplayName:  r.DisplayName,
		Field:        r.Field,
		LocalValue:   r.LocalValue,
		RemoteValue:  r.RemoteValue,
		DetectedAt:   r.DetectedAt.UTC(),
	}
}

// AuditRepo implements storage.AuditRepository using PostgreSQL.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new PostgreSQL audit repository.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Append stores a batch of discrepancies in one transaction.
func (r *AuditRepo) Append(ctx context.Context, entries []domain.Discrepancy) error {
	if len(entries) == 0 {
		return nil
	}
	uow, err := r.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.AppendAudit(ctx, entries); err != nil {
		return err
	}
	return uow.Commit()
}

// ListByResource returns the audit history of a resource, newest first.
func (r *AuditRepo) ListByResource(
	ctx context.Context,
	resourceType domain.ResourceType,
	resourceID string,
) ([]domain.Discrepancy, error) {
	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows, `
SELECT id, run_id, resource_type, resource_id, display_name, field,
       local_value, remote_value, detected_at
FROM reconciliation_audit
WHERE resource_type = $1 AND resource_id = $2
ORDER BY detected_at DESC`, string(resourceType), resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	out := make([]domain.Discrepancy, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

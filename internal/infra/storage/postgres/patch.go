package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/storage"
)

// buildUpdate renders a whitelisted patch as a single UPDATE statement.
// Patch field names are the column names.
func buildUpdate(table, id string, patch domain.Patch, allowed map[string]bool) (string, []any, error) {
	if err := storage.ValidatePatch(patch, allowed); err != nil {
		return "", nil, err
	}

	fields := make([]string, 0, len(patch))
	for f := range patch {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		v := patch[f]
		if list, ok := v.([]string); ok {
			v = pq.StringArray(list)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", f, i+1))
		args = append(args, v)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	return query, args, nil
}

func (db *DB) applyPatch(ctx context.Context, table, id string, patch domain.Patch, allowed map[string]bool) error {
	query, args, err := buildUpdate(table, id, patch, allowed)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", table, id, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

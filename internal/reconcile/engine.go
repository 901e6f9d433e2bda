// Package reconcile compares mirrored domains and email orders against the
// registrar and corrects the mirror. The registrar always wins.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/storage"
	"github.com/vietddude/regsync/internal/metrics"
)

// DomainSource fetches authoritative domain details.
type DomainSource interface {
	Details(ctx context.Context, orderID string) (*domain.DomainDetails, error)
}

// EmailSource fetches authoritative email order details.
type EmailSource interface {
	Details(ctx context.Context, orderID string) (*domain.EmailDetails, error)
}

// Config controls pacing and conflict handling.
type Config struct {
	// ItemDelay is slept between remote fetches within a tenant.
	ItemDelay time.Duration
	// GraceWindow skips records edited locally within the window. Zero
	// disables it.
	GraceWindow time.Duration
	// Concurrency bounds how many tenants RunAll reconciles at once.
	Concurrency int
}

// Stores groups the repositories the engine reads and writes.
type Stores struct {
	Domains     storage.DomainRepository
	EmailOrders storage.EmailOrderRepository
	Audit       storage.AuditRepository
	Tenants     storage.TenantRepository
}

// ItemError records a resource that could not be reconciled.
type ItemError struct {
	ResourceType domain.ResourceType
	ResourceID   string
	DisplayName  string
	Err          error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.ResourceType, e.DisplayName, e.ResourceID, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// Result aggregates one reconciliation run.
type Result struct {
	RunID         string
	Checked       int
	Updated       int
	Skipped       int
	Discrepancies []domain.Discrepancy
	Errors        []ItemError
}

func (r *Result) merge(o Result) {
	r.Checked += o.Checked
	r.Updated += o.Updated
	r.Skipped += o.Skipped
	r.Discrepancies = append(r.Discrepancies, o.Discrepancies...)
	r.Errors = append(r.Errors, o.Errors...)
}

// Engine runs reconciliation.
type Engine struct {
	domains DomainSource
	email   EmailSource
	stores  Stores
	cfg     Config
	logger  *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a reconciliation engine.
func NewEngine(domains DomainSource, email EmailSource, stores Stores, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Engine{
		domains: domains,
		email:   email,
		stores:  stores,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// ReconcileDomains checks every domain of a tenant, one at a time.
func (e *Engine) ReconcileDomains(ctx context.Context, tenantID string) (Result, error) {
	return e.reconcileDomains(ctx, uuid.NewString(), tenantID)
}

// ReconcileEmailOrders checks every email order of a tenant, one at a time.
func (e *Engine) ReconcileEmailOrders(ctx context.Context, tenantID string) (Result, error) {
	return e.reconcileEmailOrders(ctx, uuid.NewString(), tenantID)
}

// ReconcileTenant checks domains and then email orders of a tenant.
func (e *Engine) ReconcileTenant(ctx context.Context, tenantID string) (Result, error) {
	return e.reconcileTenant(ctx, uuid.NewString(), tenantID)
}

// reconcileTenant runs both resource types. A failure to list one type is
// recorded against the tenant and does not stop the other; only
// cancellation is returned as an error.
func (e *Engine) reconcileTenant(ctx context.Context, runID, tenantID string) (Result, error) {
	res := Result{RunID: runID}
	passes := []struct {
		rt  domain.ResourceType
		run func(context.Context, string, string) (Result, error)
	}{
		{domain.ResourceDomain, e.reconcileDomains},
		{domain.ResourceEmailOrder, e.reconcileEmailOrders},
	}
	for _, p := range passes {
		r, err := p.run(ctx, runID, tenantID)
		res.merge(r)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.fail(e.logger, p.rt, tenantID, "tenant "+tenantID, err)
	}
	return res, nil
}

// RunAll reconciles every tenant in the store. Tenants run in parallel up to
// Concurrency; items within a tenant stay sequential.
func (e *Engine) RunAll(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	total := Result{RunID: runID}

	tenants, err := e.stores.Tenants.ListTenants(ctx)
	if err != nil {
		return total, fmt.Errorf("list tenants: %w", err)
	}

	// Tenants do not share a cancellation scope: one tenant's failure lands
	// in Errors and the rest keep going.
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.cfg.Concurrency)
	for _, tenantID := range tenants {
		g.Go(func() error {
			res, err := e.reconcileTenant(ctx, runID, tenantID)
			mu.Lock()
			total.merge(res)
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()

	e.logger.Info("Reconciliation run finished",
		"run_id", runID,
		"tenants", len(tenants),
		"checked", total.Checked,
		"updated", total.Updated,
		"skipped", total.Skipped,
		"discrepancies", len(total.Discrepancies),
		"errors", len(total.Errors),
	)
	return total, err
}

// skip reports why a record is not reconciled, or "" if it is.
func (e *Engine) skip(orderID string, viaAPI bool, updatedAt time.Time) string {
	switch {
	case orderID == "":
		return "no order id"
	case !viaAPI:
		return "not created through the registrar"
	case e.cfg.GraceWindow > 0 && e.now().Sub(updatedAt) < e.cfg.GraceWindow:
		return "edited within grace window"
	}
	return ""
}

func (e *Engine) reconcileDomains(ctx context.Context, runID, tenantID string) (Result, error) {
	res := Result{RunID: runID}
	items, err := e.stores.Domains.ListByTenant(ctx, tenantID)
	if err != nil {
		return res, fmt.Errorf("list domains: %w", err)
	}

	fetched := false
	for _, d := range items {
		if reason := e.skip(d.OrderID, d.CreatedViaAPI, d.UpdatedAt); reason != "" {
			res.Skipped++
			e.logger.Debug("Skipping domain", "domain", d.Name, "reason", reason)
			continue
		}

		if fetched {
			if err := e.sleep(ctx, e.cfg.ItemDelay); err != nil {
				return res, err
			}
		}
		fetched = true

		res.Checked++
		metrics.ReconcileChecked.WithLabelValues(string(domain.ResourceDomain)).Inc()

		remote, err := e.domains.Details(ctx, d.OrderID)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.fail(e.logger, domain.ResourceDomain, d.ID, d.Name, err)
			continue
		}

		changes := diffDomain(d, remote)
		disc, err := e.apply(ctx, runID, domain.ResourceDomain, d.ID, d.Name, changes, e.stores.Domains.Update)
		if err != nil {
			res.fail(e.logger, domain.ResourceDomain, d.ID, d.Name, err)
			continue
		}
		if len(disc) > 0 {
			res.Updated++
			res.Discrepancies = append(res.Discrepancies, disc...)
		}
	}
	return res, nil
}

func (e *Engine) reconcileEmailOrders(ctx context.Context, runID, tenantID string) (Result, error) {
	res := Result{RunID: runID}
	items, err := e.stores.EmailOrders.ListByTenant(ctx, tenantID)
	if err != nil {
		return res, fmt.Errorf("list email orders: %w", err)
	}

	fetched := false
	for _, o := range items {
		if reason := e.skip(o.OrderID, o.CreatedViaAPI, o.UpdatedAt); reason != "" {
			res.Skipped++
			e.logger.Debug("Skipping email order", "domain", o.DomainName, "reason", reason)
			continue
		}

		if fetched {
			if err := e.sleep(ctx, e.cfg.ItemDelay); err != nil {
				return res, err
			}
		}
		fetched = true

		res.Checked++
		metrics.ReconcileChecked.WithLabelValues(string(domain.ResourceEmailOrder)).Inc()

		remote, err := e.email.Details(ctx, o.OrderID)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.fail(e.logger, domain.ResourceEmailOrder, o.ID, o.DomainName, err)
			continue
		}

		changes := diffEmailOrder(o, remote)
		disc, err := e.apply(ctx, runID, domain.ResourceEmailOrder, o.ID, o.DomainName, changes, e.stores.EmailOrders.Update)
		if err != nil {
			res.fail(e.logger, domain.ResourceEmailOrder, o.ID, o.DomainName, err)
			continue
		}
		if len(disc) > 0 {
			res.Updated++
			res.Discrepancies = append(res.Discrepancies, disc...)
		}
	}
	return res, nil
}

// apply writes one patch carrying every changed field plus last_synced_at,
// then appends the discrepancies to the audit log.
func (e *Engine) apply(
	ctx context.Context,
	runID string,
	rt domain.ResourceType,
	id, name string,
	changes []change,
	update func(ctx context.Context, id string, patch domain.Patch) error,
) ([]domain.Discrepancy, error) {
	now := e.now().UTC()
	patch := domain.Patch{domain.FieldLastSyncedAt: now}

	var disc []domain.Discrepancy
	for _, c := range changes {
		patch[c.field] = c.value
		disc = append(disc, domain.Discrepancy{
			ID:           uuid.NewString(),
			RunID:        runID,
			ResourceType: rt,
			ResourceID:   id,
			DisplayName:  name,
			Field:        c.field,
			LocalValue:   c.local,
			RemoteValue:  c.remote,
			DetectedAt:   now,
		})
		metrics.ReconcileDiscrepancies.WithLabelValues(string(rt), c.field).Inc()
	}

	if err := update(ctx, id, patch); err != nil {
		return nil, fmt.Errorf("update mirror: %w", err)
	}
	if len(disc) == 0 {
		return nil, nil
	}

	metrics.ReconcileUpdated.WithLabelValues(string(rt)).Inc()
	e.logger.Info("Corrected drift from registrar",
		"resource", rt,
		"name", name,
		"fields", len(disc),
	)
	if e.stores.Audit != nil {
		if err := e.stores.Audit.Append(ctx, disc); err != nil {
			e.logger.Error("Failed to write reconciliation audit", "resource", rt, "name", name, "error", err)
		}
	}
	return disc, nil
}

func (r *Result) fail(logger *slog.Logger, rt domain.ResourceType, id, name string, err error) {
	r.Errors = append(r.Errors, ItemError{ResourceType: rt, ResourceID: id, DisplayName: name, Err: err})
	metrics.ReconcileErrors.WithLabelValues(string(rt)).Inc()
	logger.Warn("Reconciliation failed", "resource", rt, "name", name, "error", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/pricing"
	"github.com/vietddude/regsync/internal/reconcile"
)

// NewPriceRefresher refreshes the given tiers every interval.
func NewPriceRefresher(cache *pricing.Cache, tiers []domain.Tier, interval time.Duration, logger *slog.Logger) *Periodic {
	return NewPeriodic("pricing-refresh", interval, func(ctx context.Context) error {
		return cache.Refresh(ctx, tiers...).LastErr
	}, logger)
}

// NewReconciler reconciles every tenant every interval.
func NewReconciler(engine *reconcile.Engine, interval time.Duration, logger *slog.Logger) *Periodic {
	return NewPeriodic("reconcile", interval, func(ctx context.Context) error {
		_, err := engine.RunAll(ctx)
		return err
	}, logger)
}

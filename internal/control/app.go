package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/regsync/internal/core/config"
	"github.com/vietddude/regsync/internal/core/worker"
	"github.com/vietddude/regsync/internal/health"
	redisclient "github.com/vietddude/regsync/internal/infra/redis"
	"github.com/vietddude/regsync/internal/infra/reseller"
	"github.com/vietddude/regsync/internal/infra/rpc"
	"github.com/vietddude/regsync/internal/infra/storage"
	"github.com/vietddude/regsync/internal/infra/storage/memory"
	"github.com/vietddude/regsync/internal/infra/storage/postgres"
	"github.com/vietddude/regsync/internal/pricing"
	"github.com/vietddude/regsync/internal/reconcile"
)

// Stores holds the repositories backing the app.
type Stores struct {
	Prices      storage.PriceRepository
	Domains     storage.DomainRepository
	EmailOrders storage.EmailOrderRepository
	Audit       storage.AuditRepository
	Tenants     storage.TenantRepository
}

// App wires the registrar client, resource services, pricing cache and
// reconciliation engine, plus the scheduled workers that drive them.
type App struct {
	cfg *config.AppConfig

	Client     *rpc.Client
	Registrar  *reseller.Registrar
	Pricing    *pricing.Cache
	Reconciler *reconcile.Engine
	Stores     Stores

	healthMon    *health.Monitor
	healthServer *health.Server
	workers      []*worker.Periodic

	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
	wg          sync.WaitGroup
}

// New creates an App with all dependencies initialized.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{cfg: cfg, log: slog.Default()}

	// 1. Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		a.db = db
		a.Stores = Stores{
			Prices:      postgres.NewPriceRepo(db),
			Domains:     postgres.NewDomainRepo(db),
			EmailOrders: postgres.NewEmailOrderRepo(db),
			Audit:       postgres.NewAuditRepo(db),
			Tenants:     postgres.NewTenantRepo(db),
		}
	} else {
		a.log.Warn("No database configured, using in-memory storage")
		store := memory.NewMemoryStorage()
		a.Stores = Stores{
			Prices:      memory.NewPriceRepo(store),
			Domains:     memory.NewDomainRepo(store),
			EmailOrders: memory.NewEmailOrderRepo(store),
			Audit:       memory.NewAuditRepo(store),
			Tenants:     memory.NewTenantRepo(store),
		}
	}

	// 2. Registrar client and resource services
	a.Client = rpc.NewClient(cfg.Registrar.Config, rpc.WithLogger(a.log))
	rpc.SetDefault(a.Client)

	a.Registrar = reseller.New(a.Client, reseller.Options{
		PurchasesEnabled: cfg.Registrar.PurchasesEnabled,
		Currency:         cfg.Registrar.Currency,
		InvoiceOption:    cfg.Registrar.InvoiceOption,
		EmailProduct:     cfg.Registrar.EmailProduct,
		AvailabilityURL:  cfg.Registrar.AvailabilityURL,
		Logger:           a.log,
	})
	if !cfg.Registrar.PurchasesEnabled {
		a.log.Info("Registrar purchases are disabled")
	}

	// 3. Pricing cache, with a shared refresh lock when redis is available
	cacheOpts := []pricing.Option{pricing.WithLogger(a.log)}
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			a.log.Warn("Failed to connect to Redis, using in-process refresh lock", "error", err)
		} else {
			a.redisClient = rc
			cacheOpts = append(cacheOpts, pricing.WithLocker(rc), pricing.WithRefreshMarker(rc))
		}
	}
	a.Pricing = pricing.NewCache(a.Registrar.Pricing, a.Stores.Prices, pricing.Config{
		MaxAge:       cfg.Pricing.MaxAge(),
		ResourceKeys: cfg.Pricing.ResourceKeys,
		LockTTL:      cfg.Pricing.LockTTL,
	}, cacheOpts...)

	// 4. Reconciliation
	a.Reconciler = reconcile.NewEngine(a.Registrar.Domains, a.Registrar.Email, reconcile.Stores{
		Domains:     a.Stores.Domains,
		EmailOrders: a.Stores.EmailOrders,
		Audit:       a.Stores.Audit,
		Tenants:     a.Stores.Tenants,
	}, reconcile.Config{
		ItemDelay:   cfg.Reconcile.ItemDelay,
		GraceWindow: cfg.Reconcile.GraceWindow,
		Concurrency: cfg.Reconcile.Concurrency,
	}, a.log)

	// 5. Workers and health
	tiers, err := cfg.PricingTiers()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.workers = []*worker.Periodic{
		worker.NewPriceRefresher(a.Pricing, tiers, cfg.Pricing.RefreshInterval, a.log),
		worker.NewReconciler(a.Reconciler, cfg.Reconcile.Interval, a.log),
	}

	deps := health.Deps{
		Registrar: a.Client,
		Pricing:   a.Pricing,
		Tiers:     tiers,
		MaxAge:    cfg.Pricing.MaxAge(),
	}
	if a.db != nil {
		deps.Database = a.db
	}
	if a.redisClient != nil {
		deps.Redis = a.redisClient
	}
	a.healthMon = health.NewMonitor(deps)
	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port)

	return a, nil
}

// Start launches the health server and scheduled workers.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	for _, w := range a.workers {
		a.wg.Add(1)
		go func(p *worker.Periodic) {
			defer a.wg.Done()
			p.Start(ctx)
		}(w)
	}
	return nil
}

// Stop shuts down the health server and waits for workers. The context passed
// to Start must be cancelled first.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping regsync...")

	err := a.healthServer.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("Workers did not stop before shutdown deadline")
	}

	a.Close()
	return err
}

// Close releases the client and connections. Background pricing refreshes
// are allowed to finish first.
func (a *App) Close() {
	if a.Pricing != nil {
		a.Pricing.Wait()
	}
	if a.Client != nil {
		if err := a.Client.Close(); err != nil {
			a.log.Warn("Failed to close registrar client", "error", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.AppConfig {
	return a.cfg
}

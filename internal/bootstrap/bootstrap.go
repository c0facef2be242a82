// Package bootstrap wires the store, master-data sources, allocation lock and
// application services shared by the API and the worker.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wms-platform/warehouse-core/internal/application"
	"github.com/wms-platform/warehouse-core/internal/config"
	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/internal/infrastructure/memory"
	mongoStore "github.com/wms-platform/warehouse-core/internal/infrastructure/mongodb"
	"github.com/wms-platform/warehouse-core/internal/infrastructure/postgres"
	"github.com/wms-platform/warehouse-core/internal/infrastructure/redis"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
	"github.com/wms-platform/warehouse-core/pkg/mongodb"
	"github.com/wms-platform/warehouse-core/pkg/outbox"
	"github.com/wms-platform/warehouse-core/pkg/resilience"
)

// Store is a transactional store with an outbox
type Store interface {
	domain.UnitOfWork
	Outbox() outbox.Repository
}

// Services is the application layer
type Services struct {
	Ledger     *application.LedgerService
	Allocation *application.AllocationService
	Tasks      *application.TaskService
	Waves      *application.WaveService
	Exceptions *application.ExceptionService
	Counts     *application.CountService
	Scans      *application.ScanService
}

// Sources are the master data and document collaborators
type Sources struct {
	Catalog    domain.ReferenceCatalog
	Documents  domain.Documents
	Production domain.ProductionOrders
}

// App is a fully wired application
type App struct {
	Store    Store
	Sources  Sources
	Locker   domain.AllocationLocker
	Services *Services
	Breakers *resilience.Registry

	checks  []func(context.Context) error
	closers []func()
}

// NewServices wires the application services over their collaborators
func NewServices(store domain.UnitOfWork, src Sources, locker domain.AllocationLocker, perTote int, m *metrics.Metrics, logger *logging.Logger) *Services {
	ledger := application.NewLedgerService(store, src.Catalog, m, logger)
	allocation := application.NewAllocationService(store, src.Documents, src.Catalog, locker, ledger, m, logger)
	tasks := application.NewTaskService(store, src.Documents, src.Catalog, ledger, m, logger)
	return &Services{
		Ledger:     ledger,
		Allocation: allocation,
		Tasks:      tasks,
		Waves:      application.NewWaveService(store, src.Documents, src.Catalog, locker, allocation, tasks, perTote, m, logger),
		Exceptions: application.NewExceptionService(store, allocation, tasks, logger),
		Counts:     application.NewCountService(store, ledger, logger),
		Scans:      application.NewScanService(store, src.Catalog, src.Production, ledger, m, logger),
	}
}

// New connects every configured backend and wires the services. Close
// releases whatever was opened, also after a partial failure.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) (*App, error) {
	app := &App{Breakers: resilience.NewRegistry(logger.Logger)}
	if err := app.open(ctx, cfg, m, logger); err != nil {
		app.Close()
		return nil, err
	}
	app.Services = NewServices(app.Store, app.Sources, app.Locker, cfg.Waves.OrdersPerTote, m, logger)
	return app, nil
}

func (a *App) open(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) error {
	var err error
	if a.Store, err = a.openStore(ctx, cfg, m, logger); err != nil {
		return err
	}
	if a.Sources, err = a.openSources(ctx, cfg, logger); err != nil {
		return err
	}
	a.Locker, err = a.openLocker(ctx, cfg, logger)
	return err
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) (Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("Using in-memory store, state is lost on restart")
		return memory.NewStore(), nil
	}

	client, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	})
	a.checks = append(a.checks, client.HealthCheck)
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	store := mongoStore.NewStore(client, mongodb.NewObserver(m, logger))
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}
	return store, nil
}

func (a *App) openSources(ctx context.Context, cfg *config.Config, logger *logging.Logger) (Sources, error) {
	if cfg.Postgres.DSN == "" {
		catalog, documents, production := memory.NewCatalog(), memory.NewDocuments(), memory.NewProductionOrders()
		if cfg.CatalogSeedFile != "" {
			f, err := os.Open(cfg.CatalogSeedFile)
			if err != nil {
				return Sources{}, fmt.Errorf("failed to open catalog seed: %w", err)
			}
			defer f.Close()
			if err := memory.LoadSeed(f, catalog, documents, production); err != nil {
				return Sources{}, err
			}
			logger.Info("Loaded catalog seed", "file", cfg.CatalogSeedFile)
		}
		return Sources{Catalog: catalog, Documents: documents, Production: production}, nil
	}

	pool, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return Sources{}, err
	}
	a.closers = append(a.closers, pool.Close)
	a.checks = append(a.checks, pool.Ping)
	if cfg.CatalogMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return Sources{}, err
		}
	}
	logger.Info("Connected to catalog database")

	return Sources{
		Catalog:    postgres.NewCatalog(pool, a.Breakers.Get("erp-catalog")),
		Documents:  postgres.NewDocuments(pool, a.Breakers.Get("erp-documents")),
		Production: postgres.NewProductionOrders(pool, a.Breakers.Get("erp-production")),
	}, nil
}

func (a *App) openLocker(ctx context.Context, cfg *config.Config, logger *logging.Logger) (domain.AllocationLocker, error) {
	if !cfg.RedisEnabled {
		return memory.NewLocker(), nil
	}
	client, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.checks = append(a.checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
	return redis.NewLocker(client, cfg.Redis, logger), nil
}

// Ready checks every opened backend
func (a *App) Ready(ctx context.Context) error {
	for _, check := range a.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases backends in reverse order of opening
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/cardapio/internal/health"
	"github.com/vladislavdragonenkov/cardapio/internal/storage/memory"
	"github.com/vladislavdragonenkov/cardapio/internal/storage/postgres"
)

// catalogSeeder записывает справочники в выбранное хранилище.
type catalogSeeder func(ctx context.Context, clients []domain.Client, restaurants []domain.Restaurant, products []domain.Product) error

// runtimeDependencies — хранилища выбранного драйвера.
type runtimeDependencies struct {
	transactor      domain.Transactor
	catalog         domain.Catalog
	orders          domain.OrderReader
	timelineRepo    domain.TimelineRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	seed            catalogSeeder
	closeFn         func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		return initMemoryDependencies(logger), nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initMemoryDependencies(logger *log.Entry) *runtimeDependencies {
	store := memory.NewStore()
	logger.Info("using in-memory storage")

	return &runtimeDependencies{
		transactor:      store,
		catalog:         store,
		orders:          store,
		timelineRepo:    store.Timeline(),
		outboxRepo:      store.Outbox(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		storageChecker:  healthcheck.NewPingChecker("storage", store),
		seed: func(_ context.Context, clients []domain.Client, restaurants []domain.Restaurant, products []domain.Product) error {
			for _, c := range clients {
				store.PutClient(c)
			}
			for _, r := range restaurants {
				store.PutRestaurant(r)
			}
			for _, p := range products {
				store.PutProduct(p)
			}
			return nil
		},
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate postgres schema: %w", err)
		}
		logger.Info("postgres schema is up to date")
	}
	logger.Info("using postgres storage")

	return &runtimeDependencies{
		transactor:      store,
		catalog:         postgres.NewCatalogRepository(store),
		orders:          postgres.NewOrderRepository(store),
		timelineRepo:    postgres.NewTimelineRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		storageChecker:  healthcheck.NewPingChecker("storage", store),
		seed:            store.SeedCatalog,
		closeFn:         store.Close,
	}, nil
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

package app

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/cardapio/internal/health"
	"github.com/vladislavdragonenkov/cardapio/internal/messaging/kafka"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory
	cfg.KafkaBrokers = ""
	cfg.RedisAddr = ""

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	require.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestRun_GRPCListenError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "256.0.0.1:bad"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "listen grpc")
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	ctx := context.Background()
	deps, err := initRuntimeDependencies(ctx, cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.close(log.WithField("test", "postgres-close"))

	require.NotNil(t, deps.transactor)
	require.NotNil(t, deps.outboxRepo)
	require.NotNil(t, deps.timelineRepo)
	require.NotNil(t, deps.idempotencyRepo)
	require.NotNil(t, deps.closeFn)

	check := deps.storageChecker.Check(ctx)
	require.Equal(t, healthcheck.StatusHealthy, check.Status)

	require.NoError(t, seedDemoCatalog(ctx, deps))
	// Повторный сид не должен падать на дубликатах.
	require.NoError(t, seedDemoCatalog(ctx, deps))

	menu, err := deps.catalog.GetProductsByRestaurant(ctx, DemoRestaurantID)
	require.NoError(t, err)
	require.Len(t, menu, 3)
}

func TestCloseKafkaProducer_NonNil(t *testing.T) {
	producer, err := kafka.NewProducer([]string{"localhost:9092"})
	if err != nil {
		t.Skipf("kafka is not available for integration test: %v", err)
	}
	closeKafkaProducer(producer, log.WithField("test", "kafka-close"))
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("CARDAPIO_POSTGRES_TEST_DSN"))
}

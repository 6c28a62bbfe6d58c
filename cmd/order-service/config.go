package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/cardapio/internal/app"
)

const (
	envGRPCAddr                    = "CARDAPIO_GRPC_ADDR"
	envHTTPAddr                    = "CARDAPIO_HTTP_ADDR"
	envMetricsAddr                 = "CARDAPIO_METRICS_ADDR"
	envStorageDriver               = "CARDAPIO_STORAGE_DRIVER"
	envPostgresDSN                 = "CARDAPIO_POSTGRES_DSN"
	envPostgresAutoMigrate         = "CARDAPIO_POSTGRES_AUTO_MIGRATE"
	envSeedDemo                    = "CARDAPIO_SEED_DEMO"
	envMergePricePolicy            = "CARDAPIO_MERGE_PRICE_POLICY"
	envRequestTimeout              = "CARDAPIO_REQUEST_TIMEOUT"
	envShutdownTimeout             = "CARDAPIO_SHUTDOWN_TIMEOUT"
	envTxRetryAttempts             = "CARDAPIO_TX_RETRY_ATTEMPTS"
	envKafkaBrokers                = "CARDAPIO_KAFKA_BROKERS"
	envKafkaConsumerGroup          = "CARDAPIO_KAFKA_CONSUMER_GROUP"
	envRedisAddr                   = "CARDAPIO_REDIS_ADDR"
	envRedisPassword               = "CARDAPIO_REDIS_PASSWORD"
	envRedisDB                     = "CARDAPIO_REDIS_DB"
	envCacheTTL                    = "CARDAPIO_CACHE_TTL"
	envOutboxPollInterval          = "CARDAPIO_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "CARDAPIO_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "CARDAPIO_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "CARDAPIO_OUTBOX_RETRY_DELAY"
	envIdempotencyCleanupInterval  = "CARDAPIO_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "CARDAPIO_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envLogLevel                    = "CARDAPIO_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на конфигурацию по умолчанию.
// Некорректное значение не останавливает запуск: остаётся значение по умолчанию и
// возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("invalid %s=%q: %v; using default", key, raw, err))
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseBool(raw)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseInt(raw, valid, rule)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseDuration(raw, valid, rule)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	boolean(envSeedDemo, &cfg.SeedDemo)
	str(envMergePricePolicy, &cfg.MergePricePolicy)
	duration(envRequestTimeout, &cfg.RequestTimeout, positiveDuration, "must be > 0")
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")
	integer(envTxRetryAttempts, &cfg.TxRetryAttempts, positive, "must be > 0")

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaConsumerGroup, &cfg.KafkaConsumerGroup)

	str(envRedisAddr, &cfg.RedisAddr)
	if v, ok := lookup(envRedisPassword); ok {
		cfg.RedisPassword = v
	}
	integer(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")
	duration(envCacheTTL, &cfg.CacheTTL, positiveDuration, "must be > 0")

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")

	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected one of true/false, yes/no, on/off, 1/0")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("%s", rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("%s", rule)
	}
	return v, nil
}

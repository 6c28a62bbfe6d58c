package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cardapio/internal/storage/rediscache"
)

// initKafkaProducer создаёт producer, если заданы брокеры.
// Ошибка подключения не фатальна: сервис работает без публикации событий.
func initKafkaProducer(brokers []string, logger *log.Entry) *kafka.Producer {
	if len(brokers) == 0 {
		logger.Info("kafka is not configured, outbox events stay in storage")
		return nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer
}

// startCacheInvalidator подписывает кэш на события заказов других реплик.
func startCacheInvalidator(ctx context.Context, cfg Config, cache domain.OrderCache, producer *kafka.Producer, logger *log.Entry) *kafka.Consumer {
	brokers := cfg.Brokers()
	if len(brokers) == 0 || cache == nil {
		return nil
	}

	consumer, err := kafka.NewConsumer(
		brokers,
		cfg.KafkaConsumerGroup,
		[]string{kafka.TopicOrderEvents},
		kafka.NewCacheInvalidator(cache, logger.WithField("component", "cache-invalidator")),
		kafka.WithDLQ(producer),
		kafka.WithConsumerLogger(logger.WithField("component", "kafka-consumer")),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, cache invalidation is local only")
		return nil
	}
	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start kafka consumer")
		return nil
	}
	return consumer
}

// initOrderCache подключает Redis-кэш. Недоступный Redis не мешает старту.
func initOrderCache(ctx context.Context, cfg Config, logger *log.Entry) *rediscache.OrderCache {
	if cfg.RedisAddr == "" {
		return nil
	}

	cache, err := rediscache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, rediscache.WithTTL(cfg.CacheTTL))
	if err != nil {
		logger.WithError(err).Warn("redis is unavailable, continuing without order cache")
		return nil
	}
	logger.WithField("addr", cfg.RedisAddr).Info("order cache enabled")
	return cache
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}

func closeOrderCache(cache *rediscache.OrderCache, logger *log.Entry) {
	if cache == nil {
		return
	}
	if err := cache.Close(); err != nil {
		logger.WithError(err).Warn("failed to close redis client")
	}
}

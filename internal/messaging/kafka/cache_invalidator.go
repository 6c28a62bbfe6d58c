package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// NewCacheInvalidator возвращает обработчик, который сбрасывает кэш заказа по событиям
// из топика заказов. Так кэш остаётся согласованным между несколькими инстансами сервиса.
func NewCacheInvalidator(cache domain.OrderCache, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "kafka-cache-invalidator")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := ParseEnvelope(message)
		if err != nil {
			// Битое сообщение не станет валидным при повторе.
			logger.WithError(err).WithField("offset", message.Offset).Warn("skip malformed event")
			return nil
		}
		if !envelope.IsOrderEvent() {
			return nil
		}

		version := envelope.OrderVersion()
		if err := cache.Invalidate(ctx, envelope.AggregateID, version); err != nil {
			return fmt.Errorf("invalidate order %s: %w", envelope.AggregateID, err)
		}

		logger.WithFields(log.Fields{
			"order_id":   envelope.AggregateID,
			"event_type": envelope.EventType,
			"version":    version,
		}).Debug("order cache invalidated")
		return nil
	}
}

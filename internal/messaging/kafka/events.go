package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "cardapio.order.events"
	TopicDeadLetterQueue = "cardapio.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEventPrefix — общий префикс типов событий заказа.
const OrderEventPrefix = "order."

// Envelope — конверт события outbox в топике заказов.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// IsOrderEvent сообщает, относится ли событие к заказу.
func (e Envelope) IsOrderEvent() bool {
	return strings.HasPrefix(e.EventType, OrderEventPrefix) && e.AggregateID != ""
}

// OrderVersion возвращает версию заказа из payload; для удаления — domain.DeletedOrderVersion.
// Без версии в payload возвращается 0.
func (e Envelope) OrderVersion() int64 {
	if e.EventType == domain.EventOrderDeleted {
		return domain.DeletedOrderVersion
	}
	var payload struct {
		Version int64 `json:"version"`
	}
	if len(e.Payload) == 0 || json.Unmarshal(e.Payload, &payload) != nil {
		return 0
	}
	return payload.Version
}

// DeadLetter — сообщение, отправленное в DLQ после исчерпания попыток.
type DeadLetter struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// ParseEnvelope парсит конверт события из сообщения
func ParseEnvelope(message *sarama.ConsumerMessage) (Envelope, error) {
	var envelope Envelope
	if message == nil {
		return envelope, fmt.Errorf("message is nil")
	}
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return envelope, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}
	return envelope, nil
}

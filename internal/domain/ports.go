package domain

import (
	"context"
	"math"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxWriter ставит событие в outbox в рамках текущей транзакции.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// OutboxRepository позволяет выбирать и помечать события для публикации.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineWriter добавляет событие в историю заказа внутри транзакции.
type TimelineWriter interface {
	Append(ctx context.Context, event TimelineEvent) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Release удаляет ключ, который ещё в статусе processing, чтобы запрос можно было повторить.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OrderCache — кэш собранных заказов для GetOrder.
type OrderCache interface {
	// Get возвращает (view, true, nil) при попадании.
	Get(ctx context.Context, orderID string) (OrderView, bool, error)
	// Set не должен записывать заказ старше версии, переданной в Invalidate.
	Set(ctx context.Context, view OrderView) error
	// Invalidate удаляет запись и запоминает version как нижнюю границу для Set.
	Invalidate(ctx context.Context, orderID string, version int64) error
}

// DeletedOrderVersion — граница для удалённого заказа: после неё кэш не принимает записей.
const DeletedOrderVersion int64 = math.MaxInt64

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Attempts      int
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

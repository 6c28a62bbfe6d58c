// Package ordering реализует приём заказов и согласованность остатков:
// создание заказа, добавление позиций, смену статуса и удаление.
// Каждая команда выполняется ровно в одной транзакции domain.Transactor.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/metrics"
)

// PricePolicy определяет цену существующей позиции при добавлении к ней единиц.
type PricePolicy string

const (
	// PriceKeep оставляет цену, зафиксированную при создании позиции.
	PriceKeep PricePolicy = "keep"
	// PriceRefresh переписывает цену позиции текущей ценой каталога.
	PriceRefresh PricePolicy = "refresh"
)

// ParsePricePolicy разбирает политику цены; пустая строка означает PriceKeep.
func ParsePricePolicy(raw string) (PricePolicy, error) {
	switch PricePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PriceKeep:
		return PriceKeep, nil
	case PriceRefresh:
		return PriceRefresh, nil
	default:
		return "", fmt.Errorf("unknown merge price policy %q", raw)
	}
}

// Названия операций для метрик и логов.
const (
	opCreateOrder   = "create_order"
	opMergeItem     = "merge_item"
	opRepriceLine   = "reprice_line"
	opTransition    = "transition_status"
	opDeleteOrder   = "delete_order"
	opGetOrder      = "get_order"
	opListOrders    = "list_orders"
	opListByClient  = "list_orders_by_client"
	opOrderTotal    = "order_total"
	opMenu          = "restaurant_menu"
	opOrderTimeline = "order_timeline"
)

// Service — прикладной слой заказов.
type Service struct {
	tx       domain.Transactor
	catalog  domain.Catalog
	orders   domain.OrderReader
	timeline domain.TimelineRepository
	cache    domain.OrderCache
	ledger   *Ledger

	metrics     *metrics.OrderMetrics
	logger      *log.Entry
	pricePolicy PricePolicy
	retry       RetryConfig
	now         func() time.Time
	newID       func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает запись метрик.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache подключает кэш собранных заказов.
func WithCache(cache domain.OrderCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithPricePolicy задаёт политику цены при добавлении к существующей позиции.
func WithPricePolicy(policy PricePolicy) Option {
	return func(s *Service) {
		if policy != "" {
			s.pricePolicy = policy
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов и позиций.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New создаёт сервис заказов.
func New(
	tx domain.Transactor,
	catalog domain.Catalog,
	orders domain.OrderReader,
	timeline domain.TimelineRepository,
	opts ...Option,
) *Service {
	s := &Service{
		tx:          tx,
		catalog:     catalog,
		orders:      orders,
		timeline:    timeline,
		logger:      log.NewEntry(log.StandardLogger()).WithField("component", "ordering"),
		pricePolicy: PriceKeep,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger = NewLedger(s.metrics)
	s.tx = newRetryingTransactor(s.tx, s.retry, s.logger)
	return s
}

// PricePolicy возвращает текущую политику цены.
func (s *Service) PricePolicy() PricePolicy {
	return s.pricePolicy
}

// finish пишет длительность операции и классифицирует неуспех.
// Ожидаемые отказы (NotFound, Validation, Conflict) пишутся в Warn, сбои — в Error.
func (s *Service) finish(op string, start time.Time, err error, fields log.Fields) {
	s.metrics.ObserveOperation(op, time.Since(start))
	if err == nil {
		return
	}

	kind := domain.KindOf(err)
	s.metrics.RecordRejection(string(kind))

	entry := s.logger.WithError(err).WithField("operation", op).WithFields(fields)
	if kind == domain.KindInternal {
		entry.Error("order operation failed")
		return
	}
	entry.Warn("order operation rejected")
}

// asInternal помечает неклассифицированную ошибку хранилища как Internal.
func asInternal(err error) error {
	if err == nil || domain.KindOf(err) != domain.KindInternal || errors.Is(err, domain.ErrInternal) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrInternal, err)
}

func parseOrderID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", domain.ErrOrderIDInvalid
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", domain.ErrOrderIDInvalid
	}
	return id, nil
}

// invalidate сбрасывает закэшированный заказ. Ошибка кэша не влияет на результат команды.
func (s *Service) invalidate(ctx context.Context, orderID string, version int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, orderID, version); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to invalidate cached order")
	}
}

// recordChange пишет событие outbox и запись timeline в рамках текущей транзакции.
func (s *Service) recordChange(
	ctx context.Context,
	uow domain.UnitOfWork,
	eventType string,
	order domain.Order,
	prev domain.OrderStatus,
	timelineType, reason string,
	at time.Time,
) error {
	msg, err := domain.NewOrderEvent(eventType, order, prev, at)
	if err != nil {
		return fmt.Errorf("%w: build %s event: %w", domain.ErrInternal, eventType, err)
	}
	if _, err := uow.Outbox().Enqueue(ctx, msg); err != nil {
		return err
	}
	if err := uow.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     timelineType,
		Reason:   reason,
		Occurred: at,
	}); err != nil {
		return err
	}
	return nil
}

// afterCommit учитывает записанные события. Вызывается только после успешной фиксации;
// version — версия заказа после коммита.
func (s *Service) afterCommit(ctx context.Context, orderID string, version int64) {
	s.metrics.RecordOutboxEvent()
	s.metrics.RecordTimelineEvent()
	s.invalidate(ctx, orderID, version)
}

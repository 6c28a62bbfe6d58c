package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// Store — in-memory хранилище каталога и заказов (для разработки/тестов).
//
// Транзакции сериализуются txMu: в каждый момент выполняется не больше одной
// RunAtomic, поэтому проверка остатка и списание неделимы. Записи транзакции
// копятся в memTx и применяются к зафиксированному состоянию только при успехе.
type Store struct {
	txMu sync.Mutex

	mu          sync.RWMutex
	clients     map[string]domain.Client
	restaurants map[string]domain.Restaurant
	products    map[string]domain.Product
	orders      map[string]domain.Order

	outbox   *outboxRepositoryInMemory
	timeline *timelineRepositoryInMemory
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		clients:     make(map[string]domain.Client),
		restaurants: make(map[string]domain.Restaurant),
		products:    make(map[string]domain.Product),
		orders:      make(map[string]domain.Order),
		outbox:      NewOutboxRepository(),
		timeline:    NewTimelineRepository(),
	}
}

// Outbox возвращает репозиторий outbox, в который транзакции пишут события.
func (s *Store) Outbox() *outboxRepositoryInMemory {
	return s.outbox
}

// Timeline возвращает историю заказов.
func (s *Store) Timeline() domain.TimelineRepository {
	return s.timeline
}

// Ping всегда успешен: хранилище живёт в памяти процесса.
func (s *Store) Ping(context.Context) error {
	return nil
}

// RunAtomic выполняет fn в транзакции. Ошибка или паника внутри fn отбрасывает все
// накопленные изменения.
func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := newMemTx(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, product := range tx.products {
		s.products[id] = product
	}
	for id, order := range tx.orders {
		s.orders[id] = order.Clone()
	}
	for id := range tx.deleted {
		delete(s.orders, id)
	}
	for _, msg := range tx.outbox {
		_, _ = s.outbox.Enqueue(context.Background(), msg)
	}
	for _, event := range tx.timeline {
		_ = s.timeline.Append(context.Background(), event)
	}
}

var (
	_ domain.Transactor  = (*Store)(nil)
	_ domain.Catalog     = (*Store)(nil)
	_ domain.OrderReader = (*Store)(nil)
)

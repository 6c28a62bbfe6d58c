package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// memTx накапливает изменения одной транзакции. Чтение сначала смотрит в
// накопленные изменения, затем в зафиксированное состояние Store.
type memTx struct {
	store    *Store
	products map[string]domain.Product
	orders   map[string]domain.Order
	deleted  map[string]struct{}
	outbox   []domain.OutboxMessage
	timeline []domain.TimelineEvent
}

func newMemTx(store *Store) *memTx {
	return &memTx{
		store:    store,
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		deleted:  make(map[string]struct{}),
	}
}

func (tx *memTx) Products() domain.ProductLedgerStore { return txProducts{tx} }
func (tx *memTx) Orders() domain.OrderStore           { return txOrders{tx} }
func (tx *memTx) Outbox() domain.OutboxWriter         { return txOutbox{tx} }
func (tx *memTx) Timeline() domain.TimelineWriter     { return txTimeline{tx} }

func (tx *memTx) lookupOrder(id string) (domain.Order, bool) {
	if _, gone := tx.deleted[id]; gone {
		return domain.Order{}, false
	}
	if order, ok := tx.orders[id]; ok {
		return order.Clone(), true
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	order, ok := tx.store.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return order.Clone(), true
}

type txProducts struct{ tx *memTx }

func (p txProducts) GetForUpdate(_ context.Context, id string) (domain.Product, error) {
	if product, ok := p.tx.products[id]; ok {
		return product, nil
	}

	p.tx.store.mu.RLock()
	defer p.tx.store.mu.RUnlock()
	product, ok := p.tx.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (p txProducts) SaveStock(_ context.Context, product domain.Product) error {
	current, err := p.GetForUpdate(context.Background(), product.ID)
	if err != nil {
		return err
	}
	if product.Stock < 0 {
		return domain.ErrInsufficientStock
	}
	current.Stock = product.Stock
	current.Available = product.Available
	p.tx.products[product.ID] = current
	return nil
}

type txOrders struct{ tx *memTx }

func (o txOrders) Create(_ context.Context, order domain.Order) error {
	if _, exists := o.tx.lookupOrder(order.ID); exists {
		return domain.ErrDuplicateID
	}
	delete(o.tx.deleted, order.ID)
	order = order.Clone()
	order.Version = 1
	o.tx.orders[order.ID] = order
	return nil
}

func (o txOrders) GetForUpdate(_ context.Context, id string) (domain.Order, error) {
	order, ok := o.tx.lookupOrder(id)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (o txOrders) UpdateStatus(_ context.Context, order domain.Order) error {
	current, err := o.current(order)
	if err != nil {
		return err
	}
	current.Status = order.Status
	current.UpdatedAt = order.UpdatedAt
	current.Version++
	o.tx.orders[current.ID] = current
	return nil
}

func (o txOrders) UpsertLine(_ context.Context, order domain.Order, line domain.OrderLine) error {
	current, err := o.current(order)
	if err != nil {
		return err
	}

	replaced := false
	for i := range current.Lines {
		if current.Lines[i].ID == line.ID {
			current.Lines[i] = line
			replaced = true
			break
		}
	}
	if !replaced {
		current.Lines = append(current.Lines, line)
	}
	current.UpdatedAt = order.UpdatedAt
	current.Version++
	o.tx.orders[current.ID] = current
	return nil
}

func (o txOrders) Delete(_ context.Context, id string) error {
	if _, ok := o.tx.lookupOrder(id); !ok {
		return domain.ErrOrderNotFound
	}
	delete(o.tx.orders, id)
	o.tx.deleted[id] = struct{}{}
	return nil
}

// current возвращает сохранённую версию заказа и проверяет optimistic-версию.
func (o txOrders) current(order domain.Order) (domain.Order, error) {
	current, ok := o.tx.lookupOrder(order.ID)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.Order{}, domain.ErrOrderVersionConflict
	}
	return current, nil
}

type txOutbox struct{ tx *memTx }

func (w txOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	w.tx.outbox = append(w.tx.outbox, msg)
	return msg, nil
}

type txTimeline struct{ tx *memTx }

func (w txTimeline) Append(_ context.Context, event domain.TimelineEvent) error {
	w.tx.timeline = append(w.tx.timeline, event)
	return nil
}

var _ domain.UnitOfWork = (*memTx)(nil)

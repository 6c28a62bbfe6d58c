package domain

import "context"

// Catalog — справочники клиентов, ресторанов и товаров. Владелец — внешний CRUD-слой,
// ядро только читает через этот контракт.
type Catalog interface {
	GetClient(ctx context.Context, id string) (Client, error)
	GetRestaurant(ctx context.Context, id string) (Restaurant, error)
	// GetProduct возвращает товар или ErrProductNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)
	GetProductsByRestaurant(ctx context.Context, restaurantID string) ([]Product, error)
}

// OrderReader — чтение заказов вне транзакции.
type OrderReader interface {
	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы от новых к старым; limit <= 0 означает без ограничения.
	List(ctx context.Context, limit int) ([]Order, error)
	ListByClient(ctx context.Context, clientID string, limit int) ([]Order, error)
}

// ProductLedgerStore — доступ к остаткам внутри транзакции.
type ProductLedgerStore interface {
	// GetForUpdate читает товар и блокирует его до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Product, error)
	// SaveStock записывает остаток и флаг доступности.
	SaveStock(ctx context.Context, product Product) error
}

// OrderStore — запись заказов внутри транзакции.
type OrderStore interface {
	// Create сохраняет новый заказ вместе с позициями.
	Create(ctx context.Context, order Order) error
	// GetForUpdate читает заказ с позициями и блокирует строку заказа.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	// UpdateStatus меняет статус с проверкой версии.
	UpdateStatus(ctx context.Context, order Order) error
	// UpsertLine добавляет позицию или обновляет количество и цену существующей.
	UpsertLine(ctx context.Context, order Order, line OrderLine) error
	// Delete удаляет заказ вместе с позициями.
	Delete(ctx context.Context, id string) error
}

// UnitOfWork — хранилища, привязанные к одной транзакции.
type UnitOfWork interface {
	Products() ProductLedgerStore
	Orders() OrderStore
	Outbox() OutboxWriter
	Timeline() TimelineWriter
}

// Transactor — граница транзакции. Все записи внутри fn фиксируются вместе
// или не фиксируются вовсе, если fn вернула ошибку или запаниковала.
type Transactor interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

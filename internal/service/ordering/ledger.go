package ordering

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/metrics"
)

// Результаты резервирования для метрик.
const (
	reserveOK           = "ok"
	reserveUnavailable  = "unavailable"
	reserveInsufficient = "insufficient_stock"
	reserveNotFound     = "not_found"
	reserveInvalid      = "invalid"
	reserveError        = "error"
)

// Ledger списывает и возвращает остатки товаров. Работает только внутри
// транзакции: товар читается с блокировкой строки, поэтому проверка и
// списание не разделяются конкурирующей транзакцией.
type Ledger struct {
	metrics *metrics.OrderMetrics
}

// NewLedger создаёт Ledger; metrics может быть nil.
func NewLedger(m *metrics.OrderMetrics) *Ledger {
	return &Ledger{metrics: m}
}

// CheckAndReserve проверяет доступность и остаток товара и списывает qty единиц.
// При нулевом остатке товар снимается с продажи.
func (l *Ledger) CheckAndReserve(ctx context.Context, uow domain.UnitOfWork, productID string, qty int) (domain.Product, error) {
	if qty <= 0 {
		l.metrics.RecordReservation(reserveInvalid)
		return domain.Product{}, domain.ErrQuantityInvalid
	}

	product, err := uow.Products().GetForUpdate(ctx, productID)
	if err != nil {
		l.metrics.RecordReservation(reservationResult(err))
		return domain.Product{}, err
	}
	product.Normalize()

	if err := product.Reserve(qty); err != nil {
		l.metrics.RecordReservation(reservationResult(err))
		return domain.Product{}, err
	}
	if err := uow.Products().SaveStock(ctx, product); err != nil {
		l.metrics.RecordReservation(reservationResult(err))
		return domain.Product{}, err
	}

	l.metrics.RecordReservation(reserveOK)
	return product, nil
}

// Release возвращает qty единиц на склад; товар с нулевым остатком снова поступает в продажу.
func (l *Ledger) Release(ctx context.Context, uow domain.UnitOfWork, productID string, qty int) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, domain.ErrQuantityInvalid
	}

	product, err := uow.Products().GetForUpdate(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	product.Normalize()

	if err := product.Release(qty); err != nil {
		return domain.Product{}, err
	}
	if err := uow.Products().SaveStock(ctx, product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func reservationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrProductUnavailable):
		return reserveUnavailable
	case errors.Is(err, domain.ErrInsufficientStock):
		return reserveInsufficient
	case errors.Is(err, domain.ErrNotFound):
		return reserveNotFound
	case errors.Is(err, domain.ErrValidation):
		return reserveInvalid
	default:
		return reserveError
	}
}

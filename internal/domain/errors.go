package domain

import (
	"context"
	"errors"
)

// Категории ошибок ядра. Конкретные ошибки ниже оборачивают одну из них,
// поэтому вызывающая сторона проверяет категорию через errors.Is.
var (
	// ErrNotFound — отсутствует клиент, ресторан, товар или заказ.
	ErrNotFound = errors.New("not found")
	// ErrValidation — некорректный запрос (пустой список позиций, количество <= 0 и т.п.).
	ErrValidation = errors.New("validation failed")
	// ErrConflict — запрос корректен, но противоречит текущему состоянию (сток, статус).
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition — запрошенный переход статуса не разрешён.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInternal — неожиданный сбой хранилища или инфраструктуры.
	ErrInternal = errors.New("internal error")
)

// kindError связывает конкретную ошибку с её категорией.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrClientNotFound     = newKindError(ErrNotFound, "client not found")
	ErrRestaurantNotFound = newKindError(ErrNotFound, "restaurant not found")
	ErrProductNotFound    = newKindError(ErrNotFound, "product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newKindError(ErrNotFound, "order not found")
	// ErrLineNotFound — в заказе нет позиции для указанного товара.
	ErrLineNotFound = newKindError(ErrNotFound, "order line not found")

	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired        = newKindError(ErrValidation, "order must contain at least one item")
	ErrClientIDRequired     = newKindError(ErrValidation, "client_id is required")
	ErrRestaurantIDRequired = newKindError(ErrValidation, "restaurant_id is required")
	ErrProductIDRequired    = newKindError(ErrValidation, "product_id is required")
	ErrOrderIDInvalid       = newKindError(ErrValidation, "order_id is malformed")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrQuantityInvalid = newKindError(ErrValidation, "quantity must be greater than zero")
	// Цена позиции должна быть не меньше 0.01.
	ErrPriceInvalid  = newKindError(ErrValidation, "unit price must be at least 0.01")
	ErrStatusUnknown = newKindError(ErrValidation, "unknown order status")

	// ErrProductUnavailable — товар снят с продажи.
	ErrProductUnavailable = newKindError(ErrConflict, "product is unavailable")
	// ErrInsufficientStock — остатка меньше запрошенного количества.
	ErrInsufficientStock = newKindError(ErrConflict, "insufficient stock")
	// ErrOrderNotModifiable — добавлять позиции можно только в заказ в статусе InProgress.
	ErrOrderNotModifiable = newKindError(ErrConflict, "order is not open for modification")
	// ErrOrderDelivered — доставленный заказ нельзя удалить.
	ErrOrderDelivered = newKindError(ErrConflict, "delivered order cannot be deleted")
	// ErrOrderCancelled — по отменённому заказу сумма не считается.
	ErrOrderCancelled = newKindError(ErrConflict, "order is cancelled")
	// ErrPriceChanged — цена в каталоге отличается от той, что видел клиент.
	ErrPriceChanged = newKindError(ErrConflict, "catalog price changed")
	// ErrConcurrentUpdate — транзакция проиграла гонку (deadlock/serialization failure).
	ErrConcurrentUpdate = newKindError(ErrConflict, "concurrent update, retry the request")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = newKindError(ErrConflict, "order version conflict")
	// ErrDuplicateID — запись с таким идентификатором уже существует.
	ErrDuplicateID = newKindError(ErrConflict, "duplicate identifier")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorKind — категория ошибки для транспортного слоя.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindValidation        ErrorKind = "validation"
	KindConflict          ErrorKind = "conflict"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindInternal          ErrorKind = "internal"
)

// KindOf классифицирует ошибку. Всё, что не относится к известным категориям, считается Internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsTransient сообщает, что повтор того же запроса может пройти: проигранная гонка
// блокировок, конфликт версий, отмена или сбой инфраструктуры.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrConcurrentUpdate), IsVersionConflict(err):
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return KindOf(err) == KindInternal
	}
}

// TransitionError описывает отклонённый переход статуса.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return "invalid status transition " + string(e.From) + " -> " + string(e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

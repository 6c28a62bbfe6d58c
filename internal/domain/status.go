package domain

import "strings"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusOpen — заказ создан и ещё не принят рестораном.
	OrderStatusOpen OrderStatus = "Open"
	// OrderStatusInProgress — ресторан готовит заказ; только в этом статусе можно добавлять позиции.
	OrderStatusInProgress OrderStatus = "InProgress"
	// OrderStatusDelivered — заказ доставлен (терминальный статус).
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCancelled — заказ отменён (терминальный статус).
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// validNext — разрешённые рёбра графа статусов.
var validNext = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusOpen: {
		OrderStatusInProgress: {},
		OrderStatusCancelled:  {},
	},
	OrderStatusInProgress: {
		OrderStatusDelivered: {},
		OrderStatusCancelled: {},
	},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal сообщает, что из статуса нет исходящих переходов.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// CanTransition сообщает, разрешён ли переход from -> to.
func CanTransition(from, to OrderStatus) bool {
	next, ok := validNext[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Transition проверяет переход и возвращает *TransitionError, если он запрещён.
func Transition(from, to OrderStatus) error {
	if !to.Valid() {
		return ErrStatusUnknown
	}
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

var statusAliases = map[string]OrderStatus{
	"open":         OrderStatusOpen,
	"aberto":       OrderStatusOpen,
	"inprogress":   OrderStatusInProgress,
	"in_progress":  OrderStatusInProgress,
	"em andamento": OrderStatusInProgress,
	"em preparo":   OrderStatusInProgress,
	"delivered":    OrderStatusDelivered,
	"entregue":     OrderStatusDelivered,
	"cancelled":    OrderStatusCancelled,
	"canceled":     OrderStatusCancelled,
	"cancelado":    OrderStatusCancelled,
}

// ParseOrderStatus разбирает статус без учёта регистра.
// Принимаются и названия статусов из старого API (Aberto, Em Preparo или Em Andamento, Entregue, Cancelado).
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", ErrStatusUnknown
	}
	return status, nil
}

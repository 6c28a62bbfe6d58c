package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AggregateOrder — тип агрегата для событий outbox.
const AggregateOrder = "order"

// Типы событий заказа, публикуемых через outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderItemMerged    = "order.item_merged"
	EventOrderLineRepriced  = "order.line_repriced"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
)

// OrderEventLine — позиция в теле события.
type OrderEventLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

// OrderEventPayload — тело события заказа. Денежные поля передаются строками, без потери точности.
type OrderEventPayload struct {
	OrderID      string           `json:"order_id"`
	ClientID     string           `json:"client_id"`
	RestaurantID string           `json:"restaurant_id"`
	Status       string           `json:"status"`
	PrevStatus   string           `json:"prev_status,omitempty"`
	Total        string           `json:"total"`
	Lines        []OrderEventLine `json:"lines,omitempty"`
	Version      int64            `json:"version"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// NewOrderEvent собирает сообщение outbox по текущему состоянию заказа.
func NewOrderEvent(eventType string, order Order, prevStatus OrderStatus, at time.Time) (OutboxMessage, error) {
	payload := OrderEventPayload{
		OrderID:      order.ID,
		ClientID:     order.ClientID,
		RestaurantID: order.RestaurantID,
		Status:       string(order.Status),
		PrevStatus:   string(prevStatus),
		Total:        order.Total().StringFixed(2),
		Version:      order.Version,
		OccurredAt:   at.UTC(),
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, OrderEventLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Subtotal:  line.Subtotal().StringFixed(2),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, err
	}

	return OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     at.UTC(),
	}, nil
}

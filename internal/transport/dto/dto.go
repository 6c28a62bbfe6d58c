// Package dto описывает JSON-представления заказов, общие для REST и gRPC.
package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/service/ordering"
)

// ItemRequest — позиция в запросе на создание заказа.
type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest — тело POST /v1/orders.
type CreateOrderRequest struct {
	ClientID     string        `json:"clientId"`
	RestaurantID string        `json:"restaurantId"`
	Items        []ItemRequest `json:"items"`
}

// Command переводит запрос в команду сервиса.
func (r CreateOrderRequest) Command() ordering.CreateOrderCommand {
	items := make([]ordering.ItemRequest, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, ordering.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return ordering.CreateOrderCommand{
		ClientID:     r.ClientID,
		RestaurantID: r.RestaurantID,
		Items:        items,
	}
}

// MergeItemRequest — тело POST /v1/orders/{orderId}/items.
// UnitPrice — цена, которую видел клиент; при расхождении с каталогом запрос отклоняется.
type MergeItemRequest struct {
	OrderID   string           `json:"orderId,omitempty"`
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

// Command переводит запрос в команду сервиса.
func (r MergeItemRequest) Command(orderID string) ordering.MergeItemCommand {
	if orderID == "" {
		orderID = r.OrderID
	}
	return ordering.MergeItemCommand{
		OrderID:       orderID,
		ProductID:     r.ProductID,
		Quantity:      r.Quantity,
		UnitPriceHint: r.UnitPrice,
	}
}

// StatusRequest — тело PUT /v1/orders/{orderId}/status.
type StatusRequest struct {
	OrderID string `json:"orderId,omitempty"`
	Status  string `json:"status"`
}

// OrderRef адресует заказ в gRPC-запросах.
type OrderRef struct {
	OrderID string `json:"orderId"`
}

// ListRequest — параметры выборки списка заказов.
type ListRequest struct {
	ClientID string `json:"clientId,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Party — сводка клиента или ресторана.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Line — позиция заказа.
type Line struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unitPrice"`
	Subtotal  string    `json:"subtotal"`
	CreatedAt time.Time `json:"createdAt"`
}

// Order — собранный заказ.
type Order struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Version    int64     `json:"version"`
	Client     Party     `json:"client"`
	Restaurant Party     `json:"restaurant"`
	Lines      []Line    `json:"lines"`
	Total      string    `json:"total"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// OrderList — ответ списковых методов.
type OrderList struct {
	Orders []Order `json:"orders"`
}

// Total — ответ GET /v1/orders/{orderId}/total.
type Total struct {
	OrderID string `json:"orderId"`
	Total   string `json:"total"`
}

// Product — позиция меню ресторана.
type Product struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurantId"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	Available    bool   `json:"available"`
	Stock        int    `json:"stock"`
}

// Menu — ответ GET /v1/restaurants/{restaurantId}/products.
type Menu struct {
	RestaurantID string    `json:"restaurantId"`
	Products     []Product `json:"products"`
}

// TimelineEvent — событие истории заказа.
type TimelineEvent struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// Timeline — ответ на запрос истории заказа.
type Timeline struct {
	OrderID string          `json:"orderId"`
	Events  []TimelineEvent `json:"events"`
}

// Error — тело ответа об ошибке.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope оборачивает Error в поле error.
type ErrorEnvelope struct {
	Error Error `json:"error"`
}

// FromLine конвертирует позицию заказа.
func FromLine(line domain.OrderLine) Line {
	return Line{
		ID:        line.ID,
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		UnitPrice: line.UnitPrice.StringFixed(2),
		Subtotal:  line.Subtotal().StringFixed(2),
		CreatedAt: line.CreatedAt,
	}
}

// FromView конвертирует собранный заказ.
func FromView(view domain.OrderView) Order {
	lines := make([]Line, 0, len(view.Order.Lines))
	for _, line := range view.Order.Lines {
		lines = append(lines, FromLine(line))
	}
	return Order{
		ID:         view.Order.ID,
		Status:     string(view.Order.Status),
		Version:    view.Order.Version,
		Client:     Party{ID: view.Client.ID, Name: view.Client.Name},
		Restaurant: Party{ID: view.Restaurant.ID, Name: view.Restaurant.Name},
		Lines:      lines,
		Total:      view.Total().StringFixed(2),
		CreatedAt:  view.Order.CreatedAt,
		UpdatedAt:  view.Order.UpdatedAt,
	}
}

// FromViews конвертирует список заказов.
func FromViews(views []domain.OrderView) OrderList {
	orders := make([]Order, 0, len(views))
	for _, view := range views {
		orders = append(orders, FromView(view))
	}
	return OrderList{Orders: orders}
}

// FromMenu конвертирует меню ресторана.
func FromMenu(restaurantID string, products []domain.Product) Menu {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		out = append(out, Product{
			ID:           p.ID,
			RestaurantID: p.RestaurantID,
			Name:         p.Name,
			Price:        p.Price.StringFixed(2),
			Available:    p.Available,
			Stock:        p.Stock,
		})
	}
	return Menu{RestaurantID: restaurantID, Products: out}
}

// FromTimeline конвертирует историю заказа.
func FromTimeline(orderID string, events []domain.TimelineEvent) Timeline {
	out := make([]TimelineEvent, 0, len(events))
	for _, event := range events {
		out = append(out, TimelineEvent{Type: event.Type, Reason: event.Reason, Occurred: event.Occurred})
	}
	return Timeline{OrderID: orderID, Events: out}
}

// PublicMessage возвращает текст ошибки, безопасный для клиента. Внутренние детали скрываются.
func PublicMessage(err error) string {
	if domain.KindOf(err) == domain.KindInternal {
		return "internal error"
	}
	return err.Error()
}

package domain

import "github.com/shopspring/decimal"

// OrderView — полностью собранный заказ для выдачи наружу: сводки клиента и ресторана,
// позиции и вычисленная сумма.
type OrderView struct {
	Order      Order
	Client     Client
	Restaurant Restaurant
}

// Total возвращает сумму заказа.
func (v OrderView) Total() decimal.Decimal {
	return v.Order.Total()
}

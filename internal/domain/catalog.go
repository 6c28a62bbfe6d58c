package domain

import "github.com/shopspring/decimal"

// Client — клиент из внешнего справочника. Ядро использует только сводку.
type Client struct {
	ID    string
	Name  string
	Email string
}

// Restaurant — ресторан из внешнего справочника.
type Restaurant struct {
	ID   string
	Name string
}

// Product принадлежит каталогу, но остаток и флаг доступности меняет ядро.
type Product struct {
	ID           string
	RestaurantID string
	Name         string
	Price        decimal.Decimal
	Available    bool
	Stock        int
}

// Normalize восстанавливает инвариант: при нулевом остатке товар недоступен.
func (p *Product) Normalize() {
	if p.Stock <= 0 {
		p.Stock = 0
		p.Available = false
	}
}

// CheckReserve проверяет, можно ли списать qty единиц, не меняя товар.
func (p Product) CheckReserve(qty int) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	if !p.Available {
		return ErrProductUnavailable
	}
	if p.Stock < qty {
		return ErrInsufficientStock
	}
	return nil
}

// Reserve списывает qty единиц. При достижении нуля товар снимается с продажи.
func (p *Product) Reserve(qty int) error {
	if err := p.CheckReserve(qty); err != nil {
		return err
	}
	p.Stock -= qty
	p.Normalize()
	return nil
}

// Release возвращает qty единиц на склад. Товар, снятый с продажи из-за нулевого
// остатка, снова становится доступным.
func (p *Product) Release(qty int) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	if p.Stock == 0 {
		p.Available = true
	}
	p.Stock += qty
	return nil
}

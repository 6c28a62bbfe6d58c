package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinUnitPrice — минимально допустимая цена за единицу.
var MinUnitPrice = decimal.New(1, -2)

// OrderLine представляет одну позицию заказа.
type OrderLine struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID        string
	OrderID   string
	ProductID string
	// Quantity — количество единиц товара, не меньше 1.
	Quantity int
	// UnitPrice — цена за единицу, зафиксированная в момент добавления позиции.
	// От последующих изменений цены в каталоге не зависит.
	UnitPrice decimal.Decimal
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Subtotal возвращает Quantity * UnitPrice.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID           string
	ClientID     string
	RestaurantID string
	Status       OrderStatus
	Lines        []OrderLine
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Total — сумма заказа. Не хранится, всегда пересчитывается по позициям.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// LineFor возвращает позицию по товару и её индекс.
func (o *Order) LineFor(productID string) (OrderLine, int, bool) {
	for i, line := range o.Lines {
		if line.ProductID == productID {
			return line, i, true
		}
	}
	return OrderLine{}, -1, false
}

// Clone возвращает глубокую копию заказа, чтобы вызывающий код не делил срез позиций с хранилищем.
func (o Order) Clone() Order {
	cp := o
	if o.Lines != nil {
		cp.Lines = make([]OrderLine, len(o.Lines))
		copy(cp.Lines, o.Lines)
	}
	return cp
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ClientID == "" {
		errs = append(errs, ErrClientIDRequired)
	}
	if o.RestaurantID == "" {
		errs = append(errs, ErrRestaurantIDRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusUnknown)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	seen := make(map[string]struct{}, len(o.Lines))
	for _, line := range o.Lines {
		if line.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if _, dup := seen[line.ProductID]; dup {
			errs = append(errs, ErrDuplicateID)
		}
		seen[line.ProductID] = struct{}{}
		if line.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if err := ValidateUnitPrice(line.UnitPrice); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// ValidateUnitPrice проверяет, что цена не меньше 0.01.
func ValidateUnitPrice(price decimal.Decimal) error {
	if price.LessThan(MinUnitPrice) {
		return ErrPriceInvalid
	}
	return nil
}

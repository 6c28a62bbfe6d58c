package ordering_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/service/ordering"
	"github.com/vladislavdragonenkov/cardapio/internal/storage/memory"
)

const (
	clientID     = "client-1"
	restaurantID = "rest-1"
	otherRestID  = "rest-2"
)

type fixture struct {
	store *memory.Store
	svc   *ordering.Service
}

func newFixture(t *testing.T, opts ...ordering.Option) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.PutClient(domain.Client{ID: clientID, Name: "Ana", Email: "ana@example.com"})
	store.PutRestaurant(domain.Restaurant{ID: restaurantID, Name: "Cantina"})
	store.PutRestaurant(domain.Restaurant{ID: otherRestID, Name: "Pizzaria"})
	store.PutProduct(product("P5", restaurantID, "19.90", 10))
	store.PutProduct(product("P7", restaurantID, "9.50", 5))
	store.PutProduct(product("P9", restaurantID, "7.00", 1))
	store.PutProduct(product("X1", otherRestID, "30.00", 3))

	return &fixture{
		store: store,
		svc:   ordering.New(store, store, store, store.Timeline(), opts...),
	}
}

func product(id, restaurant, price string, stock int) domain.Product {
	return domain.Product{
		ID:           id,
		RestaurantID: restaurant,
		Name:         "Product " + id,
		Price:        decimal.RequireFromString(price),
		Available:    true,
		Stock:        stock,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) stock(t *testing.T, productID string) domain.Product {
	t.Helper()

	p, err := f.store.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product %s: %v", productID, err)
	}
	return p
}

func (f *fixture) createOrder(t *testing.T, items ...ordering.ItemRequest) domain.OrderView {
	t.Helper()

	view, err := f.svc.CreateOrder(context.Background(), ordering.CreateOrderCommand{
		ClientID:     clientID,
		RestaurantID: restaurantID,
		Items:        items,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return view
}

// orderInStatus создаёт заказ и проводит его по графу до нужного статуса.
func (f *fixture) orderInStatus(t *testing.T, status domain.OrderStatus, items ...ordering.ItemRequest) domain.OrderView {
	t.Helper()

	view := f.createOrder(t, items...)
	path := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusOpen:       nil,
		domain.OrderStatusInProgress: {domain.OrderStatusInProgress},
		domain.OrderStatusDelivered:  {domain.OrderStatusInProgress, domain.OrderStatusDelivered},
		domain.OrderStatusCancelled:  {domain.OrderStatusCancelled},
	}[status]

	for _, next := range path {
		var err error
		view, err = f.svc.TransitionStatus(context.Background(), view.Order.ID, next)
		if err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	return view
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

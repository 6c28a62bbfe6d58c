package ordering_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/metrics"
	"github.com/vladislavdragonenkov/cardapio/internal/service/ordering"
)

type fakeCache struct {
	mu          sync.Mutex
	views       map[string]domain.OrderView
	fences      map[string]int64
	gets        int
	invalidated []string
	versions    []int64
	failGet     bool
	beforeSet   func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{views: make(map[string]domain.OrderView), fences: make(map[string]int64)}
}

func (c *fakeCache) Get(_ context.Context, id string) (domain.OrderView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return domain.OrderView{}, false, errors.New("cache down")
	}
	view, ok := c.views[id]
	return view, ok, nil
}

func (c *fakeCache) Set(_ context.Context, view domain.OrderView) error {
	if c.beforeSet != nil {
		hook := c.beforeSet
		c.beforeSet = nil
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if view.Order.Version < c.fences[view.Order.ID] {
		return nil
	}
	c.views[view.Order.ID] = view
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, id string, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
	if version > c.fences[id] {
		c.fences[id] = version
	}
	c.invalidated = append(c.invalidated, id)
	c.versions = append(c.versions, version)
	return nil
}

func TestGetOrder_ReadsThroughCache(t *testing.T) {
	cache := newFakeCache()
	f := newFixture(t, ordering.WithCache(cache))
	view := f.orderInStatus(t, domain.OrderStatusInProgress, ordering.ItemRequest{ProductID: "P5", Quantity: 1})

	first, err := f.svc.GetOrder(context.Background(), view.Order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := cache.views[view.Order.ID]; !ok {
		t.Fatal("view must be cached after miss")
	}
	if first.Restaurant.Name != "Cantina" || !first.Total().Equal(dec("19.90")) {
		t.Fatalf("unexpected view: %+v", first)
	}

	if _, err := f.svc.MergeItem(context.Background(), ordering.MergeItemCommand{OrderID: view.Order.ID, ProductID: "P5", Quantity: 1}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, ok := cache.views[view.Order.ID]; ok {
		t.Fatal("merge must invalidate cached view")
	}

	second, err := f.svc.GetOrder(context.Background(), view.Order.ID)
	if err != nil {
		t.Fatalf("get after merge: %v", err)
	}
	if !second.Total().Equal(dec("39.80")) {
		t.Fatalf("stale view after merge: %s", second.Total())
	}
}

func TestGetOrder_CommandBetweenLoadAndSetDoesNotLeaveStaleView(t *testing.T) {
	cache := newFakeCache()
	f := newFixture(t, ordering.WithCache(cache))
	view := f.createOrder(t, ordering.ItemRequest{ProductID: "P5", Quantity: 1})

	// Заказ уже прочитан из хранилища, но ещё не положен в кэш.
	cache.beforeSet = func() {
		if _, err := f.svc.TransitionStatus(context.Background(), view.Order.ID, domain.OrderStatusInProgress); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}

	first, err := f.svc.GetOrder(context.Background(), view.Order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.Order.Status != domain.OrderStatusOpen {
		t.Fatalf("read must see the pre-transition state, got %s", first.Order.Status)
	}
	if _, ok := cache.views[view.Order.ID]; ok {
		t.Fatal("view older than the last invalidation must not be cached")
	}

	second, err := f.svc.GetOrder(context.Background(), view.Order.ID)
	if err != nil {
		t.Fatalf("get after transition: %v", err)
	}
	if second.Order.Status != domain.OrderStatusInProgress {
		t.Fatalf("stale status served: %s", second.Order.Status)
	}
	if cached, ok := cache.views[view.Order.ID]; !ok || cached.Order.Version != second.Order.Version {
		t.Fatalf("fresh view must be cached, got %+v", cached.Order)
	}
}

func TestCommands_InvalidateWithCommittedVersion(t *testing.T) {
	cache := newFakeCache()
	f := newFixture(t, ordering.WithCache(cache))
	view := f.createOrder(t, ordering.ItemRequest{ProductID: "P5", Quantity: 1})

	if _, err := f.svc.MergeItem(context.Background(), ordering.MergeItemCommand{OrderID: view.Order.ID, ProductID: "P5", Quantity: 1}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	moved, err := f.svc.TransitionStatus(context.Background(), view.Order.ID, domain.OrderStatusInProgress)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := f.svc.DeleteOrder(context.Background(), view.Order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []int64{view.Order.Version, view.Order.Version + 1, moved.Order.Version, domain.DeletedOrderVersion}
	if len(cache.versions) != len(want) {
		t.Fatalf("expected versions %v, got %v", want, cache.versions)
	}
	for i := range want {
		if cache.versions[i] != want[i] {
			t.Fatalf("expected versions %v, got %v", want, cache.versions)
		}
	}
	if moved.Order.Version != view.Order.Version+2 {
		t.Fatalf("unexpected version after transition: %d", moved.Order.Version)
	}
}

func TestGetOrder_CacheFailureFallsBackToStore(t *testing.T) {
	cache := newFakeCache()
	cache.failGet = true
	f := newFixture(t, ordering.WithCache(cache))
	view := f.createOrder(t, ordering.ItemRequest{ProductID: "P7", Quantity: 1})

	got, err := f.svc.GetOrder(context.Background(), view.Order.ID)
	if err != nil {
		t.Fatalf("get with broken cache: %v", err)
	}
	if got.Order.ID != view.Order.ID {
		t.Fatalf("unexpected order: %+v", got.Order)
	}
}

func TestGetOrder_Errors(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.GetOrder(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrOrderIDInvalid) {
		t.Fatalf("expected ErrOrderIDInvalid, got %v", err)
	}
	if _, err := f.svc.GetOrder(context.Background(), "0b6c7c8e-1f0a-4b55-9d56-8a1f9b3f1c11"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestListOrders(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	f := newFixture(t, ordering.WithClock(clock))

	older := f.createOrder(t, ordering.ItemRequest{ProductID: "P5", Quantity: 1})
	newer := f.createOrder(t, ordering.ItemRequest{ProductID: "P7", Quantity: 1})

	all, err := f.svc.ListOrders(context.Background(), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Order.ID != newer.Order.ID || all[1].Order.ID != older.Order.ID {
		t.Fatalf("expected newest first: %+v", all)
	}

	limited, err := f.svc.ListOrders(context.Background(), 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one order, got %d err=%v", len(limited), err)
	}

	byClient, err := f.svc.ListOrdersByClient(context.Background(), clientID, 0)
	if err != nil {
		t.Fatalf("list by client: %v", err)
	}
	if len(byClient) != 2 || byClient[0].Client.Name != "Ana" {
		t.Fatalf("unexpected client orders: %+v", byClient)
	}
}

func TestListOrdersByClient_Errors(t *testing.T) {
	f := newFixture(t)
	f.store.PutClient(domain.Client{ID: "client-2", Name: "Bruno"})

	empty, err := f.svc.ListOrdersByClient(context.Background(), "client-2", 0)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %+v err=%v", empty, err)
	}
	if _, err := f.svc.ListOrdersByClient(context.Background(), "ghost", 0); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
	if _, err := f.svc.ListOrdersByClient(context.Background(), "", 0); !errors.Is(err, domain.ErrClientIDRequired) {
		t.Fatalf("expected ErrClientIDRequired, got %v", err)
	}
}

func TestOrderTotal_CancelledIsConflict(t *testing.T) {
	f := newFixture(t)
	view := f.orderInStatus(t, domain.OrderStatusCancelled, ordering.ItemRequest{ProductID: "P5", Quantity: 1})

	if _, err := f.svc.OrderTotal(context.Background(), view.Order.ID); !errors.Is(err, domain.ErrOrderCancelled) {
		t.Fatalf("expected ErrOrderCancelled, got %v", err)
	}
}

func TestRestaurantMenu(t *testing.T) {
	f := newFixture(t)

	menu, err := f.svc.RestaurantMenu(context.Background(), restaurantID)
	if err != nil {
		t.Fatalf("menu: %v", err)
	}
	if len(menu) != 3 {
		t.Fatalf("expected 3 products, got %+v", menu)
	}
	for _, p := range menu {
		if p.RestaurantID != restaurantID {
			t.Fatalf("foreign product in menu: %+v", p)
		}
	}

	if _, err := f.svc.RestaurantMenu(context.Background(), "ghost"); !errors.Is(err, domain.ErrRestaurantNotFound) {
		t.Fatalf("expected ErrRestaurantNotFound, got %v", err)
	}
}

func TestOrderTimeline_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.OrderTimeline(context.Background(), "3f0c1a52-7d6e-4e1b-a7a4-2b0f3e3f8d10"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestService_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewOrderMetricsWithRegisterer(reg)
	f := newFixture(t, ordering.WithMetrics(m))

	f.createOrder(t, ordering.ItemRequest{ProductID: "P9", Quantity: 1})
	_, _ = f.svc.CreateOrder(context.Background(), ordering.CreateOrderCommand{
		ClientID:     clientID,
		RestaurantID: restaurantID,
		Items:        []ordering.ItemRequest{{ProductID: "P9", Quantity: 1}},
	})

	if got := gathered(t, reg, "cardapio_orders_created_total", nil); got != 1 {
		t.Fatalf("expected 1 created order, got %v", got)
	}
	if got := gathered(t, reg, "cardapio_order_rejections_total", map[string]string{"reason": string(domain.KindConflict)}); got != 1 {
		t.Fatalf("expected 1 conflict rejection, got %v", got)
	}
	if got := gathered(t, reg, "cardapio_stock_reservations_total", map[string]string{"result": "unavailable"}); got != 1 {
		t.Fatalf("expected 1 unavailable reservation, got %v", got)
	}
}

// gathered возвращает значение счётчика с заданными метками из registry.
func gathered(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

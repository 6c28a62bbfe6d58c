package ordering

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// GetOrder возвращает собранный заказ. При подключённом кэше читает через него.
func (s *Service) GetOrder(ctx context.Context, rawOrderID string) (view domain.OrderView, err error) {
	start := time.Now()
	defer func() {
		s.finish(opGetOrder, start, err, log.Fields{"order_id": rawOrderID})
	}()

	orderID, err := parseOrderID(rawOrderID)
	if err != nil {
		return domain.OrderView{}, err
	}

	if s.cache != nil {
		cached, hit, cacheErr := s.cache.Get(ctx, orderID)
		if cacheErr != nil {
			s.logger.WithError(cacheErr).WithField("order_id", orderID).Warn("order cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.OrderView{}, asInternal(err)
	}
	view, err = s.composeView(ctx, order, viewLookups{})
	if err != nil {
		return domain.OrderView{}, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, view); cacheErr != nil {
			s.logger.WithError(cacheErr).WithField("order_id", orderID).Warn("order cache write failed")
		}
	}
	return view, nil
}

// ListOrders возвращает заказы от новых к старым; limit <= 0 — без ограничения.
func (s *Service) ListOrders(ctx context.Context, limit int) (views []domain.OrderView, err error) {
	start := time.Now()
	defer func() {
		s.finish(opListOrders, start, err, log.Fields{"limit": limit})
	}()

	orders, err := s.orders.List(ctx, limit)
	if err != nil {
		return nil, asInternal(err)
	}
	return s.composeViews(ctx, orders)
}

// ListOrdersByClient возвращает заказы клиента. Клиент без заказов даёт пустой список.
func (s *Service) ListOrdersByClient(ctx context.Context, clientID string, limit int) (views []domain.OrderView, err error) {
	start := time.Now()
	defer func() {
		s.finish(opListByClient, start, err, log.Fields{"client_id": clientID, "limit": limit})
	}()

	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, domain.ErrClientIDRequired
	}
	client, err := s.catalog.GetClient(ctx, clientID)
	if err != nil {
		return nil, asInternal(err)
	}

	orders, err := s.orders.ListByClient(ctx, clientID, limit)
	if err != nil {
		return nil, asInternal(err)
	}

	lookups := viewLookups{clients: map[string]domain.Client{client.ID: client}}
	views = make([]domain.OrderView, 0, len(orders))
	for _, order := range orders {
		view, err := s.composeView(ctx, order, lookups)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// OrderTotal возвращает сумму заказа. Для заказа без позиций — ноль,
// для отменённого — Conflict.
func (s *Service) OrderTotal(ctx context.Context, rawOrderID string) (total decimal.Decimal, err error) {
	start := time.Now()
	defer func() {
		s.finish(opOrderTotal, start, err, log.Fields{"order_id": rawOrderID})
	}()

	orderID, err := parseOrderID(rawOrderID)
	if err != nil {
		return decimal.Zero, err
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return decimal.Zero, asInternal(err)
	}
	if order.Status == domain.OrderStatusCancelled {
		return decimal.Zero, domain.ErrOrderCancelled
	}
	return order.Total(), nil
}

// RestaurantMenu возвращает товары ресторана.
func (s *Service) RestaurantMenu(ctx context.Context, restaurantID string) (products []domain.Product, err error) {
	start := time.Now()
	defer func() {
		s.finish(opMenu, start, err, log.Fields{"restaurant_id": restaurantID})
	}()

	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return nil, domain.ErrRestaurantIDRequired
	}
	if _, err := s.catalog.GetRestaurant(ctx, restaurantID); err != nil {
		return nil, asInternal(err)
	}
	products, err = s.catalog.GetProductsByRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, asInternal(err)
	}
	return products, nil
}

// OrderTimeline возвращает историю заказа. История удалённого заказа остаётся доступной.
func (s *Service) OrderTimeline(ctx context.Context, rawOrderID string) (events []domain.TimelineEvent, err error) {
	start := time.Now()
	defer func() {
		s.finish(opOrderTimeline, start, err, log.Fields{"order_id": rawOrderID})
	}()

	orderID, err := parseOrderID(rawOrderID)
	if err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return nil, domain.ErrOrderNotFound
	}

	events, err = s.timeline.List(ctx, orderID)
	if err != nil {
		return nil, asInternal(err)
	}
	if len(events) == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return events, nil
}

// viewLookups кэширует сводки клиентов и ресторанов в пределах одного запроса.
type viewLookups struct {
	clients     map[string]domain.Client
	restaurants map[string]domain.Restaurant
}

func (s *Service) composeViews(ctx context.Context, orders []domain.Order) ([]domain.OrderView, error) {
	lookups := viewLookups{
		clients:     make(map[string]domain.Client),
		restaurants: make(map[string]domain.Restaurant),
	}
	views := make([]domain.OrderView, 0, len(orders))
	for _, order := range orders {
		view, err := s.composeView(ctx, order, lookups)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// composeView дополняет заказ сводками клиента и ресторана. Если запись
// справочника удалена, в сводке остаётся только идентификатор.
func (s *Service) composeView(ctx context.Context, order domain.Order, lookups viewLookups) (domain.OrderView, error) {
	view := domain.OrderView{Order: order}

	if client, ok := lookups.clients[order.ClientID]; ok {
		view.Client = client
	} else {
		client, err := s.catalog.GetClient(ctx, order.ClientID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			client = domain.Client{ID: order.ClientID}
		case err != nil:
			return domain.OrderView{}, asInternal(err)
		}
		view.Client = client
		if lookups.clients != nil {
			lookups.clients[order.ClientID] = client
		}
	}

	if restaurant, ok := lookups.restaurants[order.RestaurantID]; ok {
		view.Restaurant = restaurant
	} else {
		restaurant, err := s.catalog.GetRestaurant(ctx, order.RestaurantID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			restaurant = domain.Restaurant{ID: order.RestaurantID}
		case err != nil:
			return domain.OrderView{}, asInternal(err)
		}
		view.Restaurant = restaurant
		if lookups.restaurants != nil {
			lookups.restaurants[order.RestaurantID] = restaurant
		}
	}

	return view, nil
}

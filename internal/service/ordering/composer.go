package ordering

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// ItemRequest — позиция в запросе на создание заказа.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand — запрос на создание заказа. Цену передавать нельзя:
// она всегда берётся из каталога в момент резервирования.
type CreateOrderCommand struct {
	ClientID     string
	RestaurantID string
	Items        []ItemRequest
}

// CreateOrder проверяет ссылки, резервирует остатки по каждой позиции и
// сохраняет заказ в статусе Open. Любой отказ откатывает все списания.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (view domain.OrderView, err error) {
	start := time.Now()
	defer func() {
		s.finish(opCreateOrder, start, err, log.Fields{
			"client_id":     cmd.ClientID,
			"restaurant_id": cmd.RestaurantID,
		})
	}()

	cmd.ClientID = strings.TrimSpace(cmd.ClientID)
	cmd.RestaurantID = strings.TrimSpace(cmd.RestaurantID)
	items, err := normalizeItems(cmd)
	if err != nil {
		return domain.OrderView{}, err
	}

	client, err := s.catalog.GetClient(ctx, cmd.ClientID)
	if err != nil {
		return domain.OrderView{}, asInternal(err)
	}
	restaurant, err := s.catalog.GetRestaurant(ctx, cmd.RestaurantID)
	if err != nil {
		return domain.OrderView{}, asInternal(err)
	}

	var order domain.Order
	err = s.tx.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		if err := lockProducts(ctx, uow, cmd.RestaurantID, items); err != nil {
			return err
		}

		now := s.now()
		order = domain.Order{
			ID:           s.newID(),
			ClientID:     client.ID,
			RestaurantID: restaurant.ID,
			Status:       domain.OrderStatusOpen,
			Lines:        make([]domain.OrderLine, 0, len(items)),
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		// Позиции обрабатываются строго в порядке запроса.
		for _, item := range items {
			product, err := s.ledger.CheckAndReserve(ctx, uow, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			order.Lines = append(order.Lines, domain.OrderLine{
				ID:        s.newID(),
				OrderID:   order.ID,
				ProductID: product.ID,
				Quantity:  item.Quantity,
				UnitPrice: product.Price,
				CreatedAt: now,
			})
		}

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}
		if err := uow.Orders().Create(ctx, order); err != nil {
			return err
		}
		return s.recordChange(ctx, uow, domain.EventOrderCreated, order, "", domain.TimelineCreated, "", now)
	})
	if err != nil {
		return domain.OrderView{}, asInternal(err)
	}

	s.metrics.RecordOrderCreated()
	s.afterCommit(ctx, order.ID, order.Version)
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"lines":    len(order.Lines),
		"total":    order.Total().StringFixed(2),
	}).Info("order created")

	return domain.OrderView{Order: order, Client: client, Restaurant: restaurant}, nil
}

// normalizeItems проверяет запрос и объединяет повторяющиеся товары в одну позицию
// с суммарным количеством. Порядок первых вхождений сохраняется.
func normalizeItems(cmd CreateOrderCommand) ([]ItemRequest, error) {
	if cmd.ClientID == "" {
		return nil, domain.ErrClientIDRequired
	}
	if cmd.RestaurantID == "" {
		return nil, domain.ErrRestaurantIDRequired
	}
	if len(cmd.Items) == 0 {
		return nil, domain.ErrItemsRequired
	}

	items := make([]ItemRequest, 0, len(cmd.Items))
	index := make(map[string]int, len(cmd.Items))
	for i, item := range cmd.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("item[%d]: %w", i, domain.ErrProductIDRequired)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, domain.ErrQuantityInvalid)
		}
		if pos, seen := index[productID]; seen {
			if item.Quantity > math.MaxInt-items[pos].Quantity {
				return nil, fmt.Errorf("item[%d]: %w", i, domain.ErrQuantityInvalid)
			}
			items[pos].Quantity += item.Quantity
			continue
		}
		index[productID] = len(items)
		items = append(items, ItemRequest{ProductID: productID, Quantity: item.Quantity})
	}
	return items, nil
}

// lockProducts блокирует все товары запроса в порядке возрастания id и проверяет,
// что они принадлежат ресторану. Единый порядок захвата исключает взаимную
// блокировку двух заказов с одинаковым набором товаров.
func lockProducts(ctx context.Context, uow domain.UnitOfWork, restaurantID string, items []ItemRequest) error {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)

	for _, id := range ids {
		product, err := uow.Products().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if product.RestaurantID != restaurantID {
			return fmt.Errorf("%w: product %s belongs to another restaurant", domain.ErrProductNotFound, id)
		}
	}
	return nil
}

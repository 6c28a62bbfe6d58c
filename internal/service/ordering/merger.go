package ordering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// MergeItemCommand — добавление единиц товара в заказ.
type MergeItemCommand struct {
	OrderID   string
	ProductID string
	Quantity  int
	// UnitPriceHint — цена, которую видел клиент. Если задана, должна совпадать с ценой каталога.
	UnitPriceHint *decimal.Decimal
}

// MergeItem добавляет товар в заказ в статусе InProgress. Для товара, уже
// присутствующего в заказе, увеличивается количество существующей позиции.
func (s *Service) MergeItem(ctx context.Context, cmd MergeItemCommand) (line domain.OrderLine, err error) {
	start := time.Now()
	defer func() {
		s.finish(opMergeItem, start, err, log.Fields{
			"order_id":   cmd.OrderID,
			"product_id": cmd.ProductID,
			"quantity":   cmd.Quantity,
		})
	}()

	orderID, err := parseOrderID(cmd.OrderID)
	if err != nil {
		return domain.OrderLine{}, err
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.OrderLine{}, domain.ErrProductIDRequired
	}
	if cmd.Quantity <= 0 {
		return domain.OrderLine{}, domain.ErrQuantityInvalid
	}
	if cmd.UnitPriceHint != nil {
		if err := domain.ValidateUnitPrice(*cmd.UnitPriceHint); err != nil {
			return domain.OrderLine{}, err
		}
	}

	var version int64
	err = s.tx.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		order, err := lockModifiableOrder(ctx, uow, orderID)
		if err != nil {
			return err
		}

		product, err := uow.Products().GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if product.RestaurantID != order.RestaurantID {
			return fmt.Errorf("%w: product %s belongs to another restaurant", domain.ErrProductNotFound, productID)
		}
		if cmd.UnitPriceHint != nil && !cmd.UnitPriceHint.Equal(product.Price) {
			return fmt.Errorf("%w: expected %s, catalog has %s",
				domain.ErrPriceChanged, cmd.UnitPriceHint.StringFixed(2), product.Price.StringFixed(2))
		}

		product, err = s.ledger.CheckAndReserve(ctx, uow, productID, cmd.Quantity)
		if err != nil {
			return err
		}

		now := s.now()
		existing, idx, found := order.LineFor(productID)
		if found {
			line = existing
			line.Quantity += cmd.Quantity
			if s.pricePolicy == PriceRefresh {
				line.UnitPrice = product.Price
			}
		} else {
			line = domain.OrderLine{
				ID:        s.newID(),
				OrderID:   order.ID,
				ProductID: productID,
				Quantity:  cmd.Quantity,
				UnitPrice: product.Price,
				CreatedAt: now,
			}
		}

		order.UpdatedAt = now
		if err := uow.Orders().UpsertLine(ctx, order, line); err != nil {
			return err
		}
		order.Version++
		version = order.Version
		if found {
			order.Lines[idx] = line
		} else {
			order.Lines = append(order.Lines, line)
		}

		reason := fmt.Sprintf("product=%s qty=+%d", productID, cmd.Quantity)
		return s.recordChange(ctx, uow, domain.EventOrderItemMerged, order, "", domain.TimelineItemMerged, reason, now)
	})
	if err != nil {
		return domain.OrderLine{}, asInternal(err)
	}

	s.metrics.RecordMerge()
	s.afterCommit(ctx, orderID, version)
	s.logger.WithFields(log.Fields{
		"order_id":   orderID,
		"product_id": productID,
		"quantity":   line.Quantity,
	}).Info("item merged into order")

	return line, nil
}

// RepriceLine переписывает цену позиции текущей ценой каталога.
// Количество и остатки не меняются.
func (s *Service) RepriceLine(ctx context.Context, rawOrderID, rawProductID string) (line domain.OrderLine, err error) {
	start := time.Now()
	defer func() {
		s.finish(opRepriceLine, start, err, log.Fields{
			"order_id":   rawOrderID,
			"product_id": rawProductID,
		})
	}()

	orderID, err := parseOrderID(rawOrderID)
	if err != nil {
		return domain.OrderLine{}, err
	}
	productID := strings.TrimSpace(rawProductID)
	if productID == "" {
		return domain.OrderLine{}, domain.ErrProductIDRequired
	}

	var (
		changed bool
		version int64
	)
	err = s.tx.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		order, err := lockModifiableOrder(ctx, uow, orderID)
		if err != nil {
			return err
		}

		existing, idx, found := order.LineFor(productID)
		if !found {
			return domain.ErrLineNotFound
		}
		product, err := uow.Products().GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}

		line = existing
		if line.UnitPrice.Equal(product.Price) {
			return nil
		}
		previous := line.UnitPrice
		line.UnitPrice = product.Price

		now := s.now()
		order.UpdatedAt = now
		if err := uow.Orders().UpsertLine(ctx, order, line); err != nil {
			return err
		}
		order.Version++
		order.Lines[idx] = line
		changed = true
		version = order.Version

		reason := fmt.Sprintf("product=%s price=%s->%s", productID, previous.StringFixed(2), line.UnitPrice.StringFixed(2))
		return s.recordChange(ctx, uow, domain.EventOrderLineRepriced, order, "", domain.TimelineLineRepriced, reason, now)
	})
	if err != nil {
		return domain.OrderLine{}, asInternal(err)
	}

	if changed {
		s.afterCommit(ctx, orderID, version)
	}
	return line, nil
}

// lockModifiableOrder блокирует заказ и проверяет, что в него можно добавлять позиции.
func lockModifiableOrder(ctx context.Context, uow domain.UnitOfWork, orderID string) (domain.Order, error) {
	order, err := uow.Orders().GetForUpdate(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusInProgress {
		return domain.Order{}, fmt.Errorf("%w: status %s", domain.ErrOrderNotModifiable, order.Status)
	}
	return order, nil
}

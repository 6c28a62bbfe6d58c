package ordering

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// DeleteOrder удаляет заказ и возвращает на склад количество всех его позиций.
// Доставленный заказ удалить нельзя.
func (s *Service) DeleteOrder(ctx context.Context, rawOrderID string) (err error) {
	start := time.Now()
	defer func() {
		s.finish(opDeleteOrder, start, err, log.Fields{"order_id": rawOrderID})
	}()

	orderID, err := parseOrderID(rawOrderID)
	if err != nil {
		return err
	}

	err = s.tx.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		order, err := uow.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusDelivered {
			return domain.ErrOrderDelivered
		}

		// Тот же порядок блокировок, что и при создании заказа.
		lines := append([]domain.OrderLine(nil), order.Lines...)
		sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
		for _, line := range lines {
			if _, err := s.ledger.Release(ctx, uow, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		if err := uow.Orders().Delete(ctx, orderID); err != nil {
			return err
		}
		now := s.now()
		order.UpdatedAt = now
		return s.recordChange(ctx, uow, domain.EventOrderDeleted, order, order.Status, domain.TimelineDeleted, "", now)
	})
	if err != nil {
		return asInternal(err)
	}

	s.afterCommit(ctx, orderID, domain.DeletedOrderVersion)
	s.logger.WithField("order_id", orderID).Info("order deleted")
	return nil
}

package ordering

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// TransitionStatus переводит заказ в target по графу статусов.
// Меняются только статус, UpdatedAt и версия; позиции и остатки не трогаются.
func (s *Service) TransitionStatus(ctx context.Context, rawOrderID string, target domain.OrderStatus) (view domain.OrderView, err error) {
	start := time.Now()
	defer func() {
		s.finish(opTransition, start, err, log.Fields{
			"order_id": rawOrderID,
			"status":   string(target),
		})
	}()

	orderID, err := parseOrderID(rawOrderID)
	if err != nil {
		return domain.OrderView{}, err
	}
	if !target.Valid() {
		return domain.OrderView{}, domain.ErrStatusUnknown
	}

	var (
		order domain.Order
		prev  domain.OrderStatus
	)
	err = s.tx.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		var err error
		order, err = uow.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := domain.Transition(order.Status, target); err != nil {
			return err
		}

		now := s.now()
		prev = order.Status
		order.Status = target
		order.UpdatedAt = now
		if err := uow.Orders().UpdateStatus(ctx, order); err != nil {
			return err
		}
		order.Version++

		return s.recordChange(ctx, uow, domain.EventOrderStatusChanged, order, prev,
			domain.TimelineStatusPrefix+string(target), string(prev)+" -> "+string(target), now)
	})
	if err != nil {
		return domain.OrderView{}, asInternal(err)
	}

	s.metrics.RecordTransition(string(prev), string(target))
	s.afterCommit(ctx, orderID, order.Version)
	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"from":     string(prev),
		"to":       string(target),
	}).Info("order status changed")

	return s.composeView(ctx, order, viewLookups{})
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// RunAtomic открывает транзакцию READ COMMITTED и выполняет fn. Строки товаров и
// заказов читаются через SELECT ... FOR UPDATE, поэтому конкурирующие транзакции
// на тот же товар ждут фиксации и видят уже списанный остаток.
// Любая ошибка или паника внутри fn откатывает транзакцию.
func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("%w: postgres store is not initialized", domain.ErrInternal)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInternal, wrapPgError("begin tx", err))
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if err = fn(ctx, &unitOfWork{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		err = wrapPgError("commit", err)
		if errors.Is(err, domain.ErrConflict) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrInternal, err)
	}
	committed = true
	return nil
}

// unitOfWork отдаёт репозитории, работающие поверх одной транзакции.
type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) Products() domain.ProductLedgerStore { return &productLedger{q: u.tx} }
func (u *unitOfWork) Orders() domain.OrderStore           { return &orderStore{q: u.tx} }
func (u *unitOfWork) Outbox() domain.OutboxWriter         { return &outboxWriter{q: u.tx} }
func (u *unitOfWork) Timeline() domain.TimelineWriter     { return &timelineWriter{q: u.tx} }

var (
	_ domain.Transactor = (*Store)(nil)
	_ domain.UnitOfWork = (*unitOfWork)(nil)
)

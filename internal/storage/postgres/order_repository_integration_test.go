package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

func TestOrderRepository_PostgresCreateGetAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store, 10, 10)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", now.Add(-2*time.Minute), sampleLine("burger", 2, "10.50"))
	order2 := sampleOrder("order-2", now.Add(-time.Minute), sampleLine("soda", 1, "4.00"), sampleLine("burger", 1, "10.50"))
	createOrderForIntegrationTest(t, store, order1)
	createOrderForIntegrationTest(t, store, order2)

	got, err := repo.Get(ctx, order2.ID)
	if err != nil {
		t.Fatalf("get order2: %v", err)
	}
	if got.ClientID != "client-1" || got.Status != domain.OrderStatusOpen || got.Version != 1 {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if len(got.Lines) != 2 || got.Lines[0].ProductID != "soda" {
		t.Fatalf("unexpected lines: %+v", got.Lines)
	}
	if !got.Total().Equal(decimal.RequireFromString("14.50")) {
		t.Fatalf("unexpected total: %s", got.Total())
	}

	listed, err := repo.ListByClient(ctx, "client-1", 1)
	if err != nil {
		t.Fatalf("list by client with limit: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != order2.ID || len(listed[0].Lines) != 2 {
		t.Fatalf("unexpected list result with limit: %+v", listed)
	}

	all, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[1].ID != order1.ID || len(all[1].Lines) != 1 {
		t.Fatalf("unexpected full list: %+v", all)
	}

	none, err := repo.ListByClient(ctx, "nobody", 0)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list, got %+v err=%v", none, err)
	}
}

func TestOrderStore_PostgresUpsertLineAndStatus(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store, 10, 10)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	createOrderForIntegrationTest(t, store, sampleOrder("order-merge", now, sampleLine("burger", 1, "10.50")))

	err := store.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		order, err := uow.Orders().GetForUpdate(ctx, "order-merge")
		if err != nil {
			return err
		}
		line, _, _ := order.LineFor("burger")
		line.Quantity = 3
		order.UpdatedAt = now.Add(time.Second)
		if err := uow.Orders().UpsertLine(ctx, order, line); err != nil {
			return err
		}
		order.Version++

		soda := domain.OrderLine{
			ID:        "order-merge-soda",
			OrderID:   order.ID,
			ProductID: "soda",
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("4.00"),
			CreatedAt: now.Add(time.Second),
		}
		if err := uow.Orders().UpsertLine(ctx, order, soda); err != nil {
			return err
		}
		order.Version++

		order.Status = domain.OrderStatusInProgress
		return uow.Orders().UpdateStatus(ctx, order)
	})
	if err != nil {
		t.Fatalf("merge and transition: %v", err)
	}

	got, err := repo.Get(ctx, "order-merge")
	if err != nil {
		t.Fatalf("get merged order: %v", err)
	}
	if got.Status != domain.OrderStatusInProgress || got.Version != 4 {
		t.Fatalf("unexpected order state: status=%s version=%d", got.Status, got.Version)
	}
	if len(got.Lines) != 2 || got.Lines[0].Quantity != 3 || got.Lines[1].Quantity != 2 {
		t.Fatalf("unexpected lines after upsert: %+v", got.Lines)
	}
}

func TestOrderStore_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store, 10, 10)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	base := sampleOrder("order-errors", now, sampleLine("burger", 1, "10.50"))

	if _, err := repo.Get(ctx, "missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	err := store.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		return uow.Orders().UpdateStatus(ctx, base)
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on update missing, got %v", err)
	}

	createOrderForIntegrationTest(t, store, base)
	err = store.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		return uow.Orders().Create(ctx, base)
	})
	if !errors.Is(err, domain.ErrDuplicateID) || domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected ErrDuplicateID on duplicate create, got %v", err)
	}

	stale := base
	stale.Status = domain.OrderStatusInProgress
	stale.Version = 42
	err = store.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		return uow.Orders().UpdateStatus(ctx, stale)
	})
	if !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict on stale update, got %v", err)
	}

	err = store.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		return uow.Orders().Delete(ctx, base.ID)
	})
	if err != nil {
		t.Fatalf("delete order: %v", err)
	}
	if _, err := repo.Get(ctx, base.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected deleted order to be gone, got %v", err)
	}

	var lines int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM order_lines WHERE order_id = $1`, base.ID).Scan(&lines); err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if lines != 0 {
		t.Fatalf("expected lines to be removed with order, got %d", lines)
	}
}

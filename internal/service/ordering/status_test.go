package ordering_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/service/ordering"
)

func TestTransitionStatus_Lifecycle(t *testing.T) {
	f := newFixture(t)
	view := f.createOrder(t, ordering.ItemRequest{ProductID: "P5", Quantity: 1})

	for _, next := range []domain.OrderStatus{domain.OrderStatusInProgress, domain.OrderStatusDelivered} {
		updated, err := f.svc.TransitionStatus(context.Background(), view.Order.ID, next)
		if err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
		if updated.Order.Status != next {
			t.Fatalf("expected %s, got %s", next, updated.Order.Status)
		}
		if !updated.Total().Equal(dec("19.90")) || updated.Client.ID != clientID {
			t.Fatalf("view must carry lines and summaries: %+v", updated)
		}
	}

	events, err := f.svc.OrderTimeline(context.Background(), view.Order.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	want := []string{domain.TimelineCreated, "status:InProgress", "status:Delivered"}
	if len(events) != len(want) {
		t.Fatalf("unexpected timeline: %+v", events)
	}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Fatalf("timeline[%d] = %s, want %s", i, ev.Type, want[i])
		}
	}
}

func TestTransitionStatus_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		from   domain.OrderStatus
		target domain.OrderStatus
		want   error
	}{
		{name: "delivered back to open", from: domain.OrderStatusDelivered, target: domain.OrderStatusOpen, want: domain.ErrInvalidTransition},
		{name: "delivered to cancelled", from: domain.OrderStatusDelivered, target: domain.OrderStatusCancelled, want: domain.ErrInvalidTransition},
		{name: "cancelled to in progress", from: domain.OrderStatusCancelled, target: domain.OrderStatusInProgress, want: domain.ErrInvalidTransition},
		{name: "open to delivered", from: domain.OrderStatusOpen, target: domain.OrderStatusDelivered, want: domain.ErrInvalidTransition},
		{name: "self transition", from: domain.OrderStatusOpen, target: domain.OrderStatusOpen, want: domain.ErrInvalidTransition},
		{name: "unknown target", from: domain.OrderStatusOpen, target: domain.OrderStatus("Shipped"), want: domain.ErrStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			view := f.orderInStatus(t, tt.from, ordering.ItemRequest{ProductID: "P5", Quantity: 1})

			_, err := f.svc.TransitionStatus(context.Background(), view.Order.ID, tt.target)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}

			stored, err := f.store.Get(context.Background(), view.Order.ID)
			if err != nil {
				t.Fatalf("stored order: %v", err)
			}
			if stored.Status != tt.from {
				t.Fatalf("status must stay %s, got %s", tt.from, stored.Status)
			}
		})
	}
}

func TestTransitionStatus_ErrorDetails(t *testing.T) {
	f := newFixture(t)
	view := f.orderInStatus(t, domain.OrderStatusDelivered, ordering.ItemRequest{ProductID: "P5", Quantity: 1})

	_, err := f.svc.TransitionStatus(context.Background(), view.Order.ID, domain.OrderStatusOpen)

	var transitionErr *domain.TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected *TransitionError, got %T %v", err, err)
	}
	if transitionErr.From != domain.OrderStatusDelivered || transitionErr.To != domain.OrderStatusOpen {
		t.Fatalf("unexpected transition error: %+v", transitionErr)
	}
	if domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("unexpected kind %s", domain.KindOf(err))
	}
}

func TestTransitionStatus_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.TransitionStatus(context.Background(), "5d1bfc33-5e7e-4a0d-9f0b-8f5ad1b1d7a0", domain.OrderStatusInProgress)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := f.svc.TransitionStatus(context.Background(), "", domain.OrderStatusInProgress); !errors.Is(err, domain.ErrOrderIDInvalid) {
		t.Fatalf("expected ErrOrderIDInvalid, got %v", err)
	}
}

func TestTransitionStatus_CancelKeepsStock(t *testing.T) {
	f := newFixture(t)
	f.orderInStatus(t, domain.OrderStatusCancelled, ordering.ItemRequest{ProductID: "P5", Quantity: 3})

	if got := f.stock(t, "P5").Stock; got != 7 {
		t.Fatalf("transition must not touch stock, got %d", got)
	}
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	timelineRepo := NewTimelineRepository(store)
	ctx := context.Background()

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	err := store.RunAtomic(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		// Нулевое время заполняется автоматически.
		if err := uow.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID: "timeline-order",
			Type:    domain.TimelineCreated,
		}); err != nil {
			return err
		}
		return uow.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  "timeline-order",
			Type:     domain.TimelineStatusPrefix + string(domain.OrderStatusInProgress),
			Reason:   "accepted",
			Occurred: createdAt,
		})
	})
	if err != nil {
		t.Fatalf("append timeline events: %v", err)
	}

	events, err := timelineRepo.List(ctx, "timeline-order")
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(events))
	}
	if events[0].Type != "status:InProgress" || events[0].Reason != "accepted" || events[1].Type != domain.TimelineCreated {
		t.Fatalf("events should be sorted by occurred asc: %+v", events)
	}
}

func TestTimelineRepository_PostgresUnknownOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	timelineRepo := NewTimelineRepository(store)

	events, err := timelineRepo.List(context.Background(), "missing-order")
	if err != nil {
		t.Fatalf("list for missing order should not fail: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for missing order, got %d", len(events))
	}
}

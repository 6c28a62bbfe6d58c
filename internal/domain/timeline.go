package domain

import "time"

// Типы событий истории заказа.
const (
	TimelineCreated      = "created"
	TimelineItemMerged   = "item_merged"
	TimelineLineRepriced = "line_repriced"
	TimelineStatusPrefix = "status:"
	TimelineDeleted      = "deleted"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

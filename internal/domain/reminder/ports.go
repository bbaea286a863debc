package reminder

import (
	"context"
	"time"
)

// Deliverer sends a message to a user on whichever channel they are reachable.
// A non-nil error means "not delivered"; user reminders stay unfired and are
// retried on the next tick.
type Deliverer interface {
	Deliver(ctx context.Context, userID, message string, kind Kind, agentID string) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, userID, message string, kind Kind, agentID string) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, userID, message string, kind Kind, agentID string) error {
	return f(ctx, userID, message, kind, agentID)
}

// CalendarSource returns a user's events starting within the given window.
type CalendarSource interface {
	UpcomingEvents(ctx context.Context, userID string, within time.Duration) ([]CalendarEvent, error)
}

package scheduler

import (
	"time"

	"nudge/internal/domain/reminder"
)

// Delivery outcomes reported to Metrics.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// Suppression reasons reported to Metrics.
const (
	SuppressedQuietHours = "quiet_hours"
	SuppressedDisabled   = "disabled"
)

// Metrics receives engine counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ReminderCreated(confidence reminder.Confidence)
	DeliveryAttempted(kind reminder.Kind, outcome string)
	RemindersSuppressed(reason string, count int)
	TickCompleted(duration time.Duration)
	TickSkipped()
}

type nopMetrics struct{}

func (nopMetrics) ReminderCreated(reminder.Confidence) {}
func (nopMetrics) DeliveryAttempted(reminder.Kind, string) {}
func (nopMetrics) RemindersSuppressed(string, int) {}
func (nopMetrics) TickCompleted(time.Duration) {}
func (nopMetrics) TickSkipped() {}

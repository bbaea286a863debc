package scheduler

import (
	"time"

	"nudge/internal/domain/reminder"
	"nudge/internal/shared/timeparse"
)

const (
	// DefaultCheckInterval is how often the tick runs when not configured.
	DefaultCheckInterval = 60 * time.Second

	// batchOverdueThreshold separates "very overdue" reminders, which are
	// folded into one message on the first tick, from recently due ones.
	batchOverdueThreshold = 5 * time.Minute

	// calendarLookAhead is the window requested from the calendar source.
	calendarLookAhead = time.Hour

	retentionSchedule = "@daily"
)

// Config holds engine configuration.
type Config struct {
	// Timezone is the IANA zone used for parsing and quiet hours.
	Timezone string
	// CheckInterval is the tick period.
	CheckInterval time.Duration
	// QuietHours is the default window for users without their own. Nil
	// disables quiet hours.
	QuietHours *reminder.QuietHours
	// RetentionDays controls the daily cleanup of fired reminders. Zero
	// disables it.
	RetentionDays int
	// RetryFailedNudges forgets a meeting nudge whose delivery failed so the
	// next tick tries again. Off by default: nudges are sent at most once.
	RetryFailedNudges bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Timezone:      timeparse.DefaultTimezone,
		CheckInterval: DefaultCheckInterval,
		QuietHours:    &reminder.QuietHours{Start: 22, End: 8},
		RetentionDays: 30,
	}
}

func (c Config) normalized() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.Timezone == "" {
		c.Timezone = timeparse.DefaultTimezone
	}
	if c.QuietHours != nil {
		window := *c.QuietHours
		c.QuietHours = &window
	}
	return c
}

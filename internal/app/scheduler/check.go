package scheduler

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"nudge/internal/domain/reminder"
)

// checkUserReminders delivers the user's overdue reminders. A reminder is
// marked fired only after the deliverer accepts it; failures stay pending and
// are retried on the next tick.
func (e *Engine) checkUserReminders(ctx context.Context, userID string, batchMissed bool) {
	now := e.now()
	overdue := overdueReminders(e.store.GetPendingReminders(userID), now)
	if len(overdue) == 0 {
		return
	}

	settings := e.store.GetSettings(userID)
	if !settings.Enabled {
		e.metrics.RemindersSuppressed(SuppressedDisabled, len(overdue))
		e.logger.Debug("Scheduler: reminders disabled for %s, holding %d", userID, len(overdue))
		return
	}
	if window := e.quietHoursFor(settings); window != nil && window.Contains(now.In(e.loc).Hour()) {
		e.metrics.RemindersSuppressed(SuppressedQuietHours, len(overdue))
		e.logger.Debug("Scheduler: quiet hours for %s, holding %d reminders", userID, len(overdue))
		return
	}

	if batchMissed {
		missed, recent := splitMissed(overdue, now)
		if len(overdue) > 1 && len(missed) > 1 {
			e.deliverMissedBatch(ctx, userID, missed)
			overdue = recent
		}
	}
	for _, r := range overdue {
		e.deliverReminder(ctx, userID, r)
	}
}

func (e *Engine) deliverReminder(ctx context.Context, userID string, r reminder.Reminder) {
	if err := e.deliver(ctx, userID, formatReminder(r), reminder.KindUser, r.CreatedBy); err != nil {
		e.logger.Warn("Scheduler: delivery of reminder %s to %s failed, will retry: %v", r.ID, userID, err)
		return
	}
	e.store.MarkFired(userID, e.now(), r.ID)
	e.logger.Info("Scheduler: fired reminder %s for %s", r.ID, userID)
}

// deliverMissedBatch sends reminders missed while the process was down as a
// single message. Either all of them are marked fired or none are.
func (e *Engine) deliverMissedBatch(ctx context.Context, userID string, missed []reminder.Reminder) {
	if err := e.deliver(ctx, userID, formatMissedBatch(missed), reminder.KindUser, missed[0].CreatedBy); err != nil {
		e.logger.Warn("Scheduler: batch of %d missed reminders for %s failed, will retry: %v", len(missed), userID, err)
		return
	}
	ids := make([]string, len(missed))
	for i, r := range missed {
		ids[i] = r.ID
	}
	e.store.MarkFired(userID, e.now(), ids...)
	e.logger.Info("Scheduler: delivered %d missed reminders to %s in one message", len(missed), userID)
}

// checkCalendarNudges nudges the user about meetings starting within their
// lead time. Quiet hours do not apply. Each (event, start) pair is nudged at
// most once; a failed nudge is not retried unless RetryFailedNudges is set.
func (e *Engine) checkCalendarNudges(ctx context.Context, userID string) {
	if e.calendar == nil {
		return
	}
	state := e.nudgeStateFor(userID)
	if state == nil {
		return
	}
	settings := e.store.GetSettings(userID)
	if !settings.Enabled {
		return
	}

	events, err := e.calendar.UpcomingEvents(ctx, userID, calendarLookAhead)
	if err != nil {
		e.logger.Warn("Scheduler: calendar query for %s failed: %v", userID, err)
		return
	}

	now := e.now()
	lead := time.Duration(settings.MeetingReminderMinutes) * time.Minute
	current := make(map[string]struct{}, len(events))
	for _, ev := range events {
		key := ev.NudgeKey()
		current[key] = struct{}{}

		until := ev.Start.Sub(now)
		if until <= 0 || until > lead || state.has(key) {
			continue
		}
		state.add(key)
		if err := e.deliver(ctx, userID, formatMeeting(ev, until), reminder.KindMeeting, ""); err != nil {
			if e.config.RetryFailedNudges {
				state.forget(key)
				e.logger.Warn("Scheduler: meeting nudge %s for %s failed, will retry: %v", key, userID, err)
				continue
			}
			e.logger.Warn("Scheduler: meeting nudge %s for %s failed: %v", key, userID, err)
			continue
		}
		e.logger.Info("Scheduler: nudged %s about %q", userID, ev.Title)
	}

	if dropped := state.retain(current); dropped > 0 {
		e.logger.Debug("Scheduler: evicted %d stale nudge keys for %s", dropped, userID)
	}
	state.lastCheck = now
}

func (e *Engine) deliver(ctx context.Context, userID, message string, kind reminder.Kind, agentID string) error {
	err := e.deliverer.Deliver(ctx, userID, message, kind, agentID)
	outcome := OutcomeDelivered
	if err != nil {
		outcome = OutcomeFailed
	}
	e.metrics.DeliveryAttempted(kind, outcome)
	return err
}

// quietHoursFor prefers the user's own window over the configured default.
func (e *Engine) quietHoursFor(settings reminder.Settings) *reminder.QuietHours {
	if settings.QuietHours != nil {
		return settings.QuietHours
	}
	return e.config.QuietHours
}

func overdueReminders(pending []reminder.Reminder, now time.Time) []reminder.Reminder {
	var overdue []reminder.Reminder
	for _, r := range pending {
		if r.IsOverdue(now) {
			overdue = append(overdue, r)
		}
	}
	return overdue
}

// splitMissed separates reminders overdue by more than the batch threshold
// from those that only just became due.
func splitMissed(overdue []reminder.Reminder, now time.Time) (missed, recent []reminder.Reminder) {
	for _, r := range overdue {
		if now.Sub(r.DueAt) > batchOverdueThreshold {
			missed = append(missed, r)
		} else {
			recent = append(recent, r)
		}
	}
	return missed, recent
}

func formatReminder(r reminder.Reminder) string {
	return "⏰ Reminder: " + r.Content
}

func formatMissedBatch(missed []reminder.Reminder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ You have %d missed reminders:", len(missed))
	for _, r := range missed {
		b.WriteString("\n• ")
		b.WriteString(r.Content)
	}
	return b.String()
}

func formatMeeting(ev reminder.CalendarEvent, until time.Duration) string {
	minutes := int(math.Ceil(until.Minutes()))
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s starts in %d %s", strings.TrimSpace(ev.Title), minutes, unit)
	if loc := strings.TrimSpace(ev.Location); loc != "" {
		b.WriteString("\n📍 ")
		b.WriteString(loc)
	}
	if link := strings.TrimSpace(ev.ConferenceURL); link != "" {
		b.WriteString("\n🔗 ")
		b.WriteString(link)
	}
	return b.String()
}

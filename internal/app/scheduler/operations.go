package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nudge/internal/domain/reminder"
	"nudge/internal/shared/timeparse"
	"nudge/internal/shared/utils/id"
)

// CreateResult is what a caller learns about a freshly created reminder.
type CreateResult struct {
	Reminder       reminder.Reminder   `json:"reminder"`
	Interpretation string              `json:"interpretation"`
	Confidence     reminder.Confidence `json:"confidence"`
}

// CreateReminder parses timeInput in the configured timezone and stores a
// new reminder. Parsing never fails; low-confidence results are returned to
// the caller so it can ask the user to confirm.
func (e *Engine) CreateReminder(_ context.Context, userID, content, timeInput, agentID string) (CreateResult, error) {
	userID = strings.TrimSpace(userID)
	content = strings.TrimSpace(content)
	if userID == "" {
		return CreateResult{}, fmt.Errorf("create reminder: %w: empty user id", reminder.ErrInvalidInput)
	}
	if content == "" {
		return CreateResult{}, fmt.Errorf("create reminder: %w: empty content", reminder.ErrInvalidInput)
	}

	now := e.now()
	parsed := timeparse.Parse(timeInput, e.config.Timezone, now)
	r := reminder.Reminder{
		ID:        id.NewReminderID(),
		UserID:    userID,
		Content:   content,
		DueAt:     parsed.Date,
		CreatedAt: now,
		CreatedBy: strings.TrimSpace(agentID),
	}
	e.store.AddReminder(userID, r)
	e.metrics.ReminderCreated(parsed.Confidence)
	e.logger.Info("Scheduler: created reminder %s for %s due %s (%s confidence)",
		r.ID, userID, r.DueAt.Format(time.RFC3339), parsed.Confidence)

	return CreateResult{
		Reminder:       r,
		Interpretation: parsed.Interpretation,
		Confidence:     parsed.Confidence,
	}, nil
}

// GetReminders returns the user's pending reminders ordered by due time.
func (e *Engine) GetReminders(userID string) ([]reminder.Reminder, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("get reminders: %w: empty user id", reminder.ErrInvalidInput)
	}
	return e.store.GetPendingReminders(userID), nil
}

// CancelReminder deletes a reminder by id.
func (e *Engine) CancelReminder(userID, reminderID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(reminderID) == "" {
		return fmt.Errorf("cancel reminder: %w: user id and reminder id are required", reminder.ErrInvalidInput)
	}
	if !e.store.CancelReminder(userID, reminderID) {
		return fmt.Errorf("cancel reminder %s: %w", reminderID, reminder.ErrReminderNotFound)
	}
	e.logger.Info("Scheduler: cancelled reminder %s for %s", reminderID, userID)
	return nil
}

// CancelReminderByContent cancels the first pending reminder, in creation order, whose content
// contains query, ignoring case, and returns it.
func (e *Engine) CancelReminderByContent(userID, query string) (reminder.Reminder, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(query) == "" {
		return reminder.Reminder{}, fmt.Errorf("cancel reminder: %w: user id and query are required", reminder.ErrInvalidInput)
	}
	r, ok := e.store.FindReminderByContent(userID, query)
	if !ok {
		return reminder.Reminder{}, fmt.Errorf("cancel reminder matching %q: %w", query, reminder.ErrReminderNotFound)
	}
	if err := e.CancelReminder(userID, r.ID); err != nil {
		return reminder.Reminder{}, err
	}
	return r, nil
}

// SetMeetingReminderMinutes sets the lead time for the user's meeting nudges.
func (e *Engine) SetMeetingReminderMinutes(userID string, minutes int) error {
	_, err := e.UpdateSettings(userID, reminder.SettingsPatch{MeetingReminderMinutes: &minutes})
	return err
}

// GetMeetingReminderMinutes returns the user's meeting nudge lead time.
func (e *Engine) GetMeetingReminderMinutes(userID string) int {
	return e.store.GetSettings(userID).MeetingReminderMinutes
}

// GetSettings returns the user's settings.
func (e *Engine) GetSettings(userID string) (reminder.Settings, error) {
	if strings.TrimSpace(userID) == "" {
		return reminder.Settings{}, fmt.Errorf("get settings: %w: empty user id", reminder.ErrInvalidInput)
	}
	return e.store.GetSettings(userID), nil
}

// UpdateSettings validates and merges patch into the user's settings.
func (e *Engine) UpdateSettings(userID string, patch reminder.SettingsPatch) (reminder.Settings, error) {
	if strings.TrimSpace(userID) == "" {
		return reminder.Settings{}, fmt.Errorf("update settings: %w: empty user id", reminder.ErrInvalidInput)
	}
	if err := patch.Validate(); err != nil {
		return reminder.Settings{}, fmt.Errorf("update settings: %w", err)
	}
	return e.store.UpdateSettings(userID, patch), nil
}

// CleanupOldReminders removes fired reminders older than daysOld for every
// registered user and returns the total removed.
func (e *Engine) CleanupOldReminders(daysOld int) int {
	now := e.now()
	total := 0
	for _, userID := range e.RegisteredUsers() {
		total += e.store.CleanupOldReminders(userID, daysOld, now)
	}
	if total > 0 {
		e.logger.Info("Scheduler: retention removed %d fired reminders older than %d days", total, daysOld)
	}
	return total
}

// ParseTime resolves a time expression in the configured timezone.
func (e *Engine) ParseTime(input string) reminder.ParsedTime {
	return timeparse.Parse(input, e.config.Timezone, e.now())
}

// ParseTimeIn resolves a time expression in the given timezone, falling back
// to the configured one when tz is empty.
func (e *Engine) ParseTimeIn(input, tz string) reminder.ParsedTime {
	if strings.TrimSpace(tz) == "" {
		tz = e.config.Timezone
	}
	return timeparse.Parse(input, tz, e.now())
}

// Timezone returns the configured timezone name.
func (e *Engine) Timezone() string {
	return e.config.Timezone
}

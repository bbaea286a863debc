package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudge/internal/domain/reminder"
)

func TestCreateReminder_ParsesAndStores(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	res, err := h.engine.CreateReminder(context.Background(), "alice", "  stretch  ", "in 30 minutes", "agent-7")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Reminder.ID, "rem-"))
	assert.Equal(t, "stretch", res.Reminder.Content)
	assert.Equal(t, "agent-7", res.Reminder.CreatedBy)
	assert.True(t, noon.Add(30*time.Minute).Equal(res.Reminder.DueAt))
	assert.True(t, noon.Equal(res.Reminder.CreatedAt))
	assert.Equal(t, reminder.ConfidenceHigh, res.Confidence)
	assert.NotEmpty(t, res.Interpretation)

	pending, err := h.engine.GetReminders("alice")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.Reminder.ID, pending[0].ID)
	assert.False(t, pending[0].Fired)
}

func TestCreateReminder_LowConfidenceStillCreates(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	res, err := h.engine.CreateReminder(context.Background(), "alice", "call", "whenever works", "")
	require.NoError(t, err)
	assert.Equal(t, reminder.ConfidenceLow, res.Confidence)
	assert.True(t, noon.Add(time.Hour).Equal(res.Reminder.DueAt))
}

func TestCreateReminder_RejectsEmptyInput(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	_, err := h.engine.CreateReminder(context.Background(), "", "x", "in 1 hour", "")
	assert.ErrorIs(t, err, reminder.ErrInvalidInput)
	_, err = h.engine.CreateReminder(context.Background(), "alice", "   ", "in 1 hour", "")
	assert.ErrorIs(t, err, reminder.ErrInvalidInput)

	_, err = h.engine.GetReminders(" ")
	assert.ErrorIs(t, err, reminder.ErrInvalidInput)
}

func TestCancelReminder(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	res, err := h.engine.CreateReminder(context.Background(), "alice", "pay rent", "tomorrow", "")
	require.NoError(t, err)

	require.NoError(t, h.engine.CancelReminder("alice", res.Reminder.ID))
	err = h.engine.CancelReminder("alice", res.Reminder.ID)
	assert.True(t, errors.Is(err, reminder.ErrReminderNotFound))
	assert.ErrorIs(t, h.engine.CancelReminder("alice", ""), reminder.ErrInvalidInput)
}

func TestCancelReminderByContent(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	_, err := h.engine.CreateReminder(context.Background(), "alice", "Book flights", "in 2 hours", "")
	require.NoError(t, err)
	_, err = h.engine.CreateReminder(context.Background(), "alice", "book dentist", "in 1 hour", "")
	require.NoError(t, err)

	cancelled, err := h.engine.CancelReminderByContent("alice", "BOOK")
	require.NoError(t, err)
	assert.Equal(t, "Book flights", cancelled.Content, "first match in creation order")

	_, err = h.engine.CancelReminderByContent("alice", "groceries")
	assert.ErrorIs(t, err, reminder.ErrReminderNotFound)

	pending, _ := h.engine.GetReminders("alice")
	require.Len(t, pending, 1)
	assert.Equal(t, "book dentist", pending[0].Content)
}

func TestMeetingReminderMinutes(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	assert.Equal(t, reminder.DefaultMeetingReminderMinutes, h.engine.GetMeetingReminderMinutes("alice"))

	require.NoError(t, h.engine.SetMeetingReminderMinutes("alice", 30))
	assert.Equal(t, 30, h.engine.GetMeetingReminderMinutes("alice"))

	assert.ErrorIs(t, h.engine.SetMeetingReminderMinutes("alice", 0), reminder.ErrInvalidInput)
	assert.Equal(t, 30, h.engine.GetMeetingReminderMinutes("alice"))
}

func TestUpdateSettings_Validation(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	_, err := h.engine.UpdateSettings("alice", reminder.SettingsPatch{QuietHours: &reminder.QuietHours{Start: 25, End: 3}})
	assert.ErrorIs(t, err, reminder.ErrInvalidInput)

	got, err := h.engine.UpdateSettings("alice", reminder.SettingsPatch{QuietHours: &reminder.QuietHours{Start: 23, End: 6}})
	require.NoError(t, err)
	require.NotNil(t, got.QuietHours)

	settings, err := h.engine.GetSettings("alice")
	require.NoError(t, err)
	assert.Equal(t, got, settings)
}

func TestCleanupOldReminders_RegisteredUsersOnly(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	old := noon.AddDate(0, 0, -45)
	for _, user := range []string{"alice", "bob"} {
		h.store.AddReminder(user, reminder.Reminder{ID: "rem-" + user, UserID: user, Content: "x", DueAt: old})
		h.store.MarkFired(user, old, "rem-"+user)
	}

	assert.Equal(t, 1, h.engine.CleanupOldReminders(30))

	_, ok := h.store.GetReminder("alice", "rem-alice")
	assert.False(t, ok)
	_, ok = h.store.GetReminder("bob", "rem-bob")
	assert.True(t, ok)
}

func TestParseTime_UsesConfiguredZone(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	got := h.engine.ParseTime("5pm")
	assert.True(t, time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC).Equal(got.Date))
	assert.Equal(t, reminder.ConfidenceMedium, got.Confidence)

	fallback := h.engine.ParseTimeIn("5pm", "")
	assert.True(t, got.Date.Equal(fallback.Date))
}

// Package reminder holds the domain model shared by the parser, the store and
// the tick engine, plus the ports through which the engine reaches delivery
// channels and calendars.
package reminder

import (
	"errors"
	"strings"
	"time"
)

// DefaultMeetingReminderMinutes is the lead time for calendar nudges when a
// user has not configured one.
const DefaultMeetingReminderMinutes = 15

var (
	// ErrReminderNotFound is returned when a reminder id or content query
	// matches nothing for the user.
	ErrReminderNotFound = errors.New("reminder not found")
	// ErrInvalidInput is returned for empty user ids, empty content and
	// out-of-range settings.
	ErrInvalidInput = errors.New("invalid input")
)

// Reminder is a user-created, one-shot notification.
type Reminder struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Content   string     `json:"content"`
	DueAt     time.Time  `json:"dueAt"`
	CreatedAt time.Time  `json:"createdAt"`
	CreatedBy string     `json:"createdBy,omitempty"`
	Fired     bool       `json:"fired"`
	FiredAt   *time.Time `json:"firedAt,omitempty"`
}

// IsOverdue reports whether the reminder is unfired and due at or before now.
func (r Reminder) IsOverdue(now time.Time) bool {
	return !r.Fired && !r.DueAt.After(now)
}

// QuietHours is an hour-of-day window during which user reminders are held.
// Start > End wraps past midnight (22–8); Start == End disables the window.
type QuietHours struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Contains reports whether hour falls inside the window.
func (q QuietHours) Contains(hour int) bool {
	if q.Start == q.End {
		return false
	}
	if q.Start > q.End {
		return hour >= q.Start || hour < q.End
	}
	return hour >= q.Start && hour < q.End
}

// Validate rejects hours outside 0–23.
func (q QuietHours) Validate() error {
	if q.Start < 0 || q.Start > 23 || q.End < 0 || q.End > 23 {
		return ErrInvalidInput
	}
	return nil
}

// Settings holds per-user reminder preferences.
type Settings struct {
	MeetingReminderMinutes int         `json:"meetingReminderMinutes"`
	Enabled                bool        `json:"enabled"`
	QuietHours             *QuietHours `json:"quietHours,omitempty"`
}

// DefaultSettings returns the settings a user gets on first access.
func DefaultSettings() Settings {
	return Settings{
		MeetingReminderMinutes: DefaultMeetingReminderMinutes,
		Enabled:                true,
	}
}

// SettingsPatch carries a partial settings update; nil fields are untouched.
type SettingsPatch struct {
	MeetingReminderMinutes *int        `json:"meetingReminderMinutes,omitempty"`
	Enabled                *bool       `json:"enabled,omitempty"`
	QuietHours             *QuietHours `json:"quietHours,omitempty"`
	ClearQuietHours        bool        `json:"clearQuietHours,omitempty"`
}

// Validate checks the fields that are present.
func (p SettingsPatch) Validate() error {
	if p.MeetingReminderMinutes != nil && *p.MeetingReminderMinutes <= 0 {
		return ErrInvalidInput
	}
	if p.QuietHours != nil {
		return p.QuietHours.Validate()
	}
	return nil
}

// Apply merges the patch into s.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.MeetingReminderMinutes != nil {
		s.MeetingReminderMinutes = *p.MeetingReminderMinutes
	}
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.ClearQuietHours {
		s.QuietHours = nil
	}
	if p.QuietHours != nil {
		window := *p.QuietHours
		s.QuietHours = &window
	}
	return s
}

// UserStore is the persisted per-user document.
type UserStore struct {
	Reminders []Reminder `json:"reminders"`
	Settings  Settings   `json:"settings"`
}

// NewUserStore returns an empty store with default settings.
func NewUserStore() *UserStore {
	return &UserStore{Reminders: []Reminder{}, Settings: DefaultSettings()}
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (s *UserStore) Clone() *UserStore {
	if s == nil {
		return NewUserStore()
	}
	out := &UserStore{
		Reminders: make([]Reminder, len(s.Reminders)),
		Settings:  s.Settings,
	}
	copy(out.Reminders, s.Reminders)
	for i := range out.Reminders {
		if fa := out.Reminders[i].FiredAt; fa != nil {
			t := *fa
			out.Reminders[i].FiredAt = &t
		}
	}
	if s.Settings.QuietHours != nil {
		window := *s.Settings.QuietHours
		out.Settings.QuietHours = &window
	}
	return out
}

// Normalize fills defaults that older snapshots may lack.
func (s *UserStore) Normalize() {
	if s.Reminders == nil {
		s.Reminders = []Reminder{}
	}
	if s.Settings.MeetingReminderMinutes <= 0 {
		s.Settings.MeetingReminderMinutes = DefaultMeetingReminderMinutes
	}
}

// Kind distinguishes calendar nudges from user reminders at delivery time.
type Kind string

const (
	KindMeeting Kind = "meeting"
	KindUser    Kind = "user"
)

// Confidence grades how unambiguous a parsed time expression was.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParsedTime is the parser's answer for a time expression.
type ParsedTime struct {
	Date           time.Time  `json:"date"`
	Confidence     Confidence `json:"confidence"`
	Interpretation string     `json:"interpretation"`
}

// CalendarEvent is the subset of a calendar entry the nudge check needs.
type CalendarEvent struct {
	ID            string    `json:"id,omitempty" yaml:"id,omitempty"`
	Title         string    `json:"title" yaml:"title"`
	Start         time.Time `json:"start" yaml:"start"`
	Location      string    `json:"location,omitempty" yaml:"location,omitempty"`
	ConferenceURL string    `json:"conferenceUrl,omitempty" yaml:"conference_url,omitempty"`
}

// NudgeKey identifies one (event, start time) pair. Events without an id fall
// back to their title.
func (e CalendarEvent) NudgeKey() string {
	identity := strings.TrimSpace(e.ID)
	if identity == "" {
		identity = e.Title
	}
	return identity + "_" + e.Start.UTC().Format(time.RFC3339)
}

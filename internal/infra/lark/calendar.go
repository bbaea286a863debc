package lark

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcalendar "github.com/larksuite/oapi-sdk-go/v3/service/calendar/v4"

	"nudge/internal/domain/reminder"
	"nudge/internal/shared/logging"
)

const (
	primaryCalendarID = "primary"
	eventPageSize     = 50
	maxEventPages     = 10
	statusCancelled   = "cancelled"
)

// CalendarSource lists upcoming events from Lark calendars. Each user maps
// to a calendar id; unmapped users read the app's primary calendar.
type CalendarSource struct {
	client *lark.Client
	logger logging.Logger
	now    func() time.Time

	mu          sync.RWMutex
	calendarIDs map[string]string
}

// CalendarOption customizes a CalendarSource.
type CalendarOption func(*CalendarSource)

// WithCalendarClock overrides time.Now.
func WithCalendarClock(now func() time.Time) CalendarOption {
	return func(s *CalendarSource) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCalendarIDs sets the user id to calendar id mapping.
func WithCalendarIDs(ids map[string]string) CalendarOption {
	return func(s *CalendarSource) {
		for user, cal := range ids {
			s.calendarIDs[user] = cal
		}
	}
}

// NewCalendarSource creates a CalendarSource over an SDK client.
func NewCalendarSource(client *lark.Client, logger logging.Logger, opts ...CalendarOption) *CalendarSource {
	s := &CalendarSource{
		client:      client,
		logger:      logging.OrNop(logger),
		now:         time.Now,
		calendarIDs: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCalendarID maps a user to a calendar.
func (s *CalendarSource) SetCalendarID(userID, calendarID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendarIDs[userID] = calendarID
}

func (s *CalendarSource) calendarFor(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id := strings.TrimSpace(s.calendarIDs[userID]); id != "" {
		return id
	}
	return primaryCalendarID
}

// UpcomingEvents returns events on the user's calendar that start between now
// and now+within, ordered by start. Cancelled events are skipped.
func (s *CalendarSource) UpcomingEvents(ctx context.Context, userID string, within time.Duration) ([]reminder.CalendarEvent, error) {
	if s.client == nil {
		return nil, fmt.Errorf("lark client not initialized")
	}
	calID := s.calendarFor(userID)
	now := s.now()
	end := now.Add(within)

	var events []reminder.CalendarEvent
	pageToken := ""
	for page := 0; page < maxEventPages; page++ {
		builder := larkcalendar.NewListCalendarEventReqBuilder().
			CalendarId(calID).
			StartTime(strconv.FormatInt(now.Unix(), 10)).
			EndTime(strconv.FormatInt(end.Unix(), 10)).
			PageSize(eventPageSize)
		if pageToken != "" {
			builder.PageToken(pageToken)
		}

		resp, err := s.client.Calendar.CalendarEvent.List(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("list calendar events: %w", err)
		}
		if !resp.Success() {
			return nil, &APIError{Code: resp.Code, Msg: resp.Msg}
		}
		if resp.Data == nil {
			break
		}

		for _, item := range resp.Data.Items {
			ev, ok := toCalendarEvent(item)
			if !ok || ev.Start.Before(now) || ev.Start.After(end) {
				continue
			}
			events = append(events, ev)
		}

		if resp.Data.HasMore == nil || !*resp.Data.HasMore || resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	s.logger.Debug("Lark: %d upcoming events on %s for %s", len(events), calID, userID)
	return events, nil
}

func toCalendarEvent(item *larkcalendar.CalendarEvent) (reminder.CalendarEvent, bool) {
	if item == nil || item.StartTime == nil || item.StartTime.Timestamp == nil {
		return reminder.CalendarEvent{}, false
	}
	if item.Status != nil && *item.Status == statusCancelled {
		return reminder.CalendarEvent{}, false
	}
	start, ok := parseTimestamp(*item.StartTime.Timestamp)
	if !ok {
		return reminder.CalendarEvent{}, false
	}

	ev := reminder.CalendarEvent{Start: start}
	if item.EventId != nil {
		ev.ID = *item.EventId
	}
	if item.Summary != nil {
		ev.Title = *item.Summary
	}
	if item.Location != nil && item.Location.Name != nil {
		ev.Location = *item.Location.Name
	}
	if item.Vchat != nil && item.Vchat.MeetingUrl != nil {
		ev.ConferenceURL = *item.Vchat.MeetingUrl
	}
	return ev, true
}

func parseTimestamp(ts string) (time.Time, bool) {
	sec, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

// Package calendarfile serves calendar events from a local YAML file.
//
// The file maps user ids to event lists:
//
//	users:
//	  alice:
//	    - id: standup
//	      title: Daily standup
//	      start: 2026-03-10T09:30:00+08:00
//	      location: Room 4
//	      conference_url: https://meet.example.com/standup
//
// Starts without an offset are read in the source's location. The file is
// re-read whenever its modification time changes.
package calendarfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"nudge/internal/domain/reminder"
	"nudge/internal/infra/filestore"
	"nudge/internal/shared/logging"
)

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

type fileEvent struct {
	ID            string `yaml:"id"`
	Title         string `yaml:"title"`
	Start         string `yaml:"start"`
	Location      string `yaml:"location"`
	ConferenceURL string `yaml:"conference_url"`
}

type fileDoc struct {
	Users map[string][]fileEvent `yaml:"users"`
}

// Source implements reminder.CalendarSource over a YAML file.
type Source struct {
	path   string
	loc    *time.Location
	logger logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	modTime time.Time
	size    int64
	events  map[string][]reminder.CalendarEvent
}

// Option customizes a Source.
type Option func(*Source)

// WithLocation sets the zone used for offset-less start times.
func WithLocation(loc *time.Location) Option {
	return func(s *Source) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Source) { s.logger = logging.OrNop(logger) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Source reading path. A missing file yields no events.
func New(path string, opts ...Option) *Source {
	s := &Source{
		path:   filestore.ResolvePath(path, ""),
		loc:    time.UTC,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the resolved file path.
func (s *Source) Path() string { return s.path }

// UpcomingEvents returns the user's events starting in (now, now+within],
// ordered by start.
func (s *Source) UpcomingEvents(_ context.Context, userID string, within time.Duration) ([]reminder.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadLocked(); err != nil {
		return nil, err
	}

	now := s.now()
	end := now.Add(within)
	var out []reminder.CalendarEvent
	for _, ev := range s.events[userID] {
		if !ev.Start.After(now) || ev.Start.After(end) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Source) reloadLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.events != nil {
				s.logger.Info("CalendarFile: %s removed, clearing events", s.path)
			}
			s.events = nil
			s.modTime = time.Time{}
			s.size = 0
			return nil
		}
		return fmt.Errorf("stat calendar file: %w", err)
	}
	if s.events != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return nil
	}

	data, err := filestore.ReadFileOrEmpty(s.path)
	if err != nil {
		return fmt.Errorf("read calendar file: %w", err)
	}
	events, err := s.parse(data)
	if err != nil {
		return err
	}
	s.events = events
	s.modTime = info.ModTime()
	s.size = info.Size()
	s.logger.Debug("CalendarFile: loaded %d users from %s", len(events), s.path)
	return nil
}

func (s *Source) parse(data []byte) (map[string][]reminder.CalendarEvent, error) {
	events := make(map[string][]reminder.CalendarEvent)
	if len(bytes.TrimSpace(data)) == 0 {
		return events, nil
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse calendar file: %w", err)
	}
	for user, list := range doc.Users {
		for i, fe := range list {
			start, err := s.parseStart(fe.Start)
			if err != nil {
				s.logger.Warn("CalendarFile: skipping event %d for %s: %v", i, user, err)
				continue
			}
			events[user] = append(events[user], reminder.CalendarEvent{
				ID:            strings.TrimSpace(fe.ID),
				Title:         strings.TrimSpace(fe.Title),
				Start:         start,
				Location:      strings.TrimSpace(fe.Location),
				ConferenceURL: strings.TrimSpace(fe.ConferenceURL),
			})
		}
		sort.SliceStable(events[user], func(a, b int) bool {
			return events[user][a].Start.Before(events[user][b].Start)
		})
	}
	return events, nil
}

func (s *Source) parseStart(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing start")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized start %q", raw)
}

// Package reminderstore persists one JSON snapshot per user and keeps a
// bounded cache of recently used snapshots in memory.
//
// Storage problems never surface to callers: an unreadable file is moved
// aside and replaced by an empty default store, and a failed write is logged
// and retried on the next save or when the entry leaves the cache.
package reminderstore

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"nudge/internal/domain/reminder"
	"nudge/internal/infra/filestore"
	jsonx "nudge/internal/shared/json"
	"nudge/internal/shared/logging"
)

const (
	// DefaultCacheSize bounds the number of user snapshots held in memory.
	DefaultCacheSize = 1024

	fileExt  = ".json"
	filePerm = 0o600
)

type entry struct {
	doc   *reminder.UserStore
	dirty bool
}

// Store is a file-per-user reminder store. All methods are safe for
// concurrent use.
type Store struct {
	dir      string
	logger   logging.Logger
	defaults reminder.Settings

	mu    sync.Mutex
	cache *lru.Cache[string, *entry]
	// pinned holds dirty entries the cache evicted before they could be
	// written. They stay authoritative until a write succeeds.
	pinned map[string]*entry
}

// Option customizes a Store.
type Option func(*options)

type options struct {
	cacheSize int
	logger    logging.Logger
	defaults  reminder.Settings
}

// WithCacheSize bounds the in-memory cache. Non-positive values keep the
// default.
func WithCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// WithDefaultSettings sets the settings new users start with.
func WithDefaultSettings(settings reminder.Settings) Option {
	return func(o *options) { o.defaults = settings }
}

// WithLogger sets the store logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New returns a store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("reminderstore: directory is required")
	}
	o := options{cacheSize: DefaultCacheSize, defaults: reminder.DefaultSettings()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := filestore.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("reminderstore: create dir: %w", err)
	}

	if o.defaults.MeetingReminderMinutes <= 0 {
		o.defaults.MeetingReminderMinutes = reminder.DefaultMeetingReminderMinutes
	}
	s := &Store{
		dir:      dir,
		logger:   logging.OrNop(o.logger),
		defaults: o.defaults,
		pinned:   make(map[string]*entry),
	}
	cache, err := lru.NewWithEvict[string, *entry](o.cacheSize, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("reminderstore: cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// onEvict runs under s.mu because every cache mutation happens with the store
// lock held.
func (s *Store) onEvict(userID string, e *entry) {
	if e == nil || !e.dirty {
		return
	}
	if err := s.write(userID, e.doc); err != nil {
		s.pinned[userID] = e
		s.logger.Error("ReminderStore: keeping unsaved changes for %s in memory after eviction: %v", userID, err)
		return
	}
	e.dirty = false
}

// Load returns a copy of the user's store. Missing files yield a default
// store; corrupt files are quarantined and also yield a default store.
func (s *Store) Load(userID string) *reminder.UserStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(userID).doc.Clone()
}

// Save replaces the user's store and writes it through to disk.
func (s *Store) Save(userID string, doc *reminder.UserStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{doc: doc.Clone()}
	e.doc.Normalize()
	delete(s.pinned, userID)
	s.cache.Add(userID, e)
	s.persistLocked(userID, e)
}

// AddReminder appends r to the user's reminders.
func (s *Store) AddReminder(userID string, r reminder.Reminder) {
	s.update(userID, func(doc *reminder.UserStore) bool {
		doc.Reminders = append(doc.Reminders, r)
		return true
	})
}

// GetPendingReminders returns unfired reminders ordered by due time.
func (s *Store) GetPendingReminders(userID string) []reminder.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.loadLocked(userID).doc
	pending := make([]reminder.Reminder, 0, len(doc.Reminders))
	for _, r := range doc.Reminders {
		if !r.Fired {
			pending = append(pending, r)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].DueAt.Before(pending[j].DueAt)
	})
	return pending
}

// GetReminder looks up a reminder by id.
func (s *Store) GetReminder(userID, id string) (reminder.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.loadLocked(userID).doc.Reminders {
		if r.ID == id {
			if r.FiredAt != nil {
				at := *r.FiredAt
				r.FiredAt = &at
			}
			return r, true
		}
	}
	return reminder.Reminder{}, false
}

// MarkFired flags the given reminders as delivered at firedAt and reports
// how many changed. Reminders that are already fired keep their original
// timestamp.
func (s *Store) MarkFired(userID string, firedAt time.Time, ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	marked := 0
	s.update(userID, func(doc *reminder.UserStore) bool {
		for i := range doc.Reminders {
			r := &doc.Reminders[i]
			if _, ok := want[r.ID]; !ok || r.Fired {
				continue
			}
			at := firedAt
			r.Fired = true
			r.FiredAt = &at
			marked++
		}
		return marked > 0
	})
	return marked
}

// CancelReminder removes a reminder and reports whether it existed.
func (s *Store) CancelReminder(userID, id string) bool {
	removed := false
	s.update(userID, func(doc *reminder.UserStore) bool {
		for i, r := range doc.Reminders {
			if r.ID == id {
				doc.Reminders = append(doc.Reminders[:i], doc.Reminders[i+1:]...)
				removed = true
				return true
			}
		}
		return false
	})
	return removed
}

// FindReminderByContent returns the first pending reminder, in stored order,
// whose content contains query case-insensitively.
func (s *Store) FindReminderByContent(userID, query string) (reminder.Reminder, bool) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return reminder.Reminder{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.loadLocked(userID).doc.Reminders {
		if !r.Fired && strings.Contains(strings.ToLower(r.Content), needle) {
			return r, true
		}
	}
	return reminder.Reminder{}, false
}

// GetSettings returns the user's settings, defaults included.
func (s *Store) GetSettings(userID string) reminder.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(userID).doc.Clone().Settings
}

// UpdateSettings merges patch into the user's settings and returns the
// result.
func (s *Store) UpdateSettings(userID string, patch reminder.SettingsPatch) reminder.Settings {
	var out reminder.Settings
	s.update(userID, func(doc *reminder.UserStore) bool {
		doc.Settings = patch.Apply(doc.Settings)
		out = doc.Settings
		return true
	})
	if out.QuietHours != nil {
		window := *out.QuietHours
		out.QuietHours = &window
	}
	return out
}

// CleanupOldReminders drops fired reminders whose delivery is older than
// daysOld days before now. Unfired reminders are always kept.
func (s *Store) CleanupOldReminders(userID string, daysOld int, now time.Time) int {
	if daysOld < 0 {
		return 0
	}
	cutoff := now.AddDate(0, 0, -daysOld)
	removed := 0
	s.update(userID, func(doc *reminder.UserStore) bool {
		kept := doc.Reminders[:0]
		for _, r := range doc.Reminders {
			if r.Fired && r.FiredAt != nil && r.FiredAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		doc.Reminders = kept
		return removed > 0
	})
	return removed
}

// ListUserIDs returns the users that have a snapshot on disk, plus users
// whose first write is still pending, sorted.
func (s *Store) ListUserIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reminderstore: readdir: %w", err)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != fileExt {
			continue
		}
		userID, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil || userID == "" {
			continue
		}
		seen[userID] = struct{}{}
	}
	for _, userID := range s.cache.Keys() {
		if e, ok := s.cache.Peek(userID); ok && e.dirty {
			seen[userID] = struct{}{}
		}
	}
	for userID := range s.pinned {
		seen[userID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Flush retries every pending write and reports the first failure.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, userID := range s.cache.Keys() {
		e, ok := s.cache.Peek(userID)
		if !ok || !e.dirty {
			continue
		}
		if err := s.write(userID, e.doc); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		e.dirty = false
	}
	for userID, e := range s.pinned {
		if err := s.write(userID, e.doc); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		e.dirty = false
		delete(s.pinned, userID)
	}
	return first
}

// update applies fn to the cached document and persists it when fn reports a
// change.
func (s *Store) update(userID string, fn func(doc *reminder.UserStore) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.loadLocked(userID)
	if !fn(e.doc) {
		return
	}
	s.persistLocked(userID, e)
}

func (s *Store) persistLocked(userID string, e *entry) {
	if err := s.write(userID, e.doc); err != nil {
		e.dirty = true
		s.logger.Error("ReminderStore: failed to save %s, will retry: %v", userID, err)
		return
	}
	e.dirty = false
	s.flushDirtyLocked(userID)
}

// flushDirtyLocked retries writes that failed earlier for other users.
func (s *Store) flushDirtyLocked(skip string) {
	for _, userID := range s.cache.Keys() {
		if userID == skip {
			continue
		}
		e, ok := s.cache.Peek(userID)
		if !ok || !e.dirty {
			continue
		}
		if err := s.write(userID, e.doc); err != nil {
			s.logger.Warn("ReminderStore: retry save for %s failed: %v", userID, err)
			continue
		}
		e.dirty = false
	}
	for userID, e := range s.pinned {
		if userID == skip {
			continue
		}
		if err := s.write(userID, e.doc); err != nil {
			s.logger.Warn("ReminderStore: retry save for %s failed: %v", userID, err)
			continue
		}
		e.dirty = false
		delete(s.pinned, userID)
	}
}

func (s *Store) loadLocked(userID string) *entry {
	if e, ok := s.cache.Get(userID); ok {
		return e
	}
	if e, ok := s.pinned[userID]; ok {
		delete(s.pinned, userID)
		s.cache.Add(userID, e)
		return e
	}
	e := &entry{doc: s.read(userID)}
	s.cache.Add(userID, e)
	return e
}

func (s *Store) read(userID string) *reminder.UserStore {
	path := s.path(userID)
	data, err := filestore.ReadFileOrEmpty(path)
	if err != nil {
		s.logger.Error("ReminderStore: failed to read %s, using empty store: %v", userID, err)
		return s.empty()
	}
	if len(data) == 0 {
		return s.empty()
	}

	doc := s.empty()
	if err := jsonx.Unmarshal(data, doc); err != nil {
		moved, qerr := filestore.Quarantine(path)
		if qerr != nil {
			s.logger.Error("ReminderStore: corrupt store for %s (%v); quarantine failed: %v", userID, err, qerr)
		} else {
			s.logger.Error("ReminderStore: corrupt store for %s moved to %s: %v", userID, moved, err)
		}
		return s.empty()
	}
	doc.Normalize()
	return doc
}

func (s *Store) empty() *reminder.UserStore {
	doc := reminder.NewUserStore()
	doc.Settings = s.defaults
	if s.defaults.QuietHours != nil {
		window := *s.defaults.QuietHours
		doc.Settings.QuietHours = &window
	}
	return doc
}

func (s *Store) write(userID string, doc *reminder.UserStore) error {
	return filestore.WriteJSON(s.path(userID), doc, filePerm)
}

func (s *Store) path(userID string) string {
	return filepath.Join(s.dir, url.PathEscape(userID)+fileExt)
}

// Package scheduler runs the reminder tick: it delivers due user reminders
// and upcoming-meeting nudges for every registered user, and exposes the
// reminder operations used by the HTTP API and the CLI.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"nudge/internal/domain/reminder"
	"nudge/internal/shared/async"
	"nudge/internal/shared/logging"
	"nudge/internal/shared/timeparse"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrStopped is returned when Start is called after Stop.
	ErrStopped = errors.New("scheduler stopped")
)

// Store is the persistence the engine needs.
type Store interface {
	AddReminder(userID string, r reminder.Reminder)
	GetPendingReminders(userID string) []reminder.Reminder
	MarkFired(userID string, firedAt time.Time, ids ...string) int
	CancelReminder(userID, id string) bool
	FindReminderByContent(userID, query string) (reminder.Reminder, bool)
	GetSettings(userID string) reminder.Settings
	UpdateSettings(userID string, patch reminder.SettingsPatch) reminder.Settings
	CleanupOldReminders(userID string, daysOld int, now time.Time) int
}

// Engine evaluates reminders and calendar nudges on a fixed interval. At most
// one tick runs at a time; a tick that finds another in flight is skipped.
type Engine struct {
	config    Config
	loc       *time.Location
	store     Store
	deliverer reminder.Deliverer
	calendar  reminder.CalendarSource
	logger    logging.Logger
	metrics   Metrics
	now       func() time.Time

	ticking   atomic.Bool
	firstTick atomic.Bool

	mu       sync.Mutex
	users    map[string]*nudgeState
	started  bool
	stopping bool
	cron     *cron.Cron

	inflight sync.WaitGroup
	stopped  chan struct{}
	stopOnce sync.Once
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(logger) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine. calendar may be nil, in which case no meeting
// nudges are produced.
func New(cfg Config, store Store, deliverer reminder.Deliverer, calendar reminder.CalendarSource, opts ...Option) *Engine {
	cfg = cfg.normalized()
	if deliverer == nil {
		deliverer = NopDeliverer{}
	}
	e := &Engine{
		config:    cfg,
		loc:       timeparse.Location(cfg.Timezone),
		store:     store,
		deliverer: deliverer,
		calendar:  calendar,
		logger:    logging.Nop(),
		metrics:   nopMetrics{},
		now:       time.Now,
		users:     make(map[string]*nudgeState),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start runs one tick immediately, then ticks every CheckInterval until ctx
// is cancelled or Stop is called. The first tick folds long-missed reminders
// into a single message.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopping {
		return ErrStopped
	}
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	e.cron = cron.New(
		cron.WithLocation(e.loc),
		cron.WithLogger(cronLogger{logger: e.logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: e.logger})),
	)
	e.cron.Schedule(cron.Every(e.config.CheckInterval), cron.FuncJob(func() {
		e.Tick(ctx)
	}))
	if e.config.RetentionDays > 0 {
		retention := cron.NewChain(cron.SkipIfStillRunning(cronLogger{logger: e.logger})).Then(cron.FuncJob(func() {
			e.CleanupOldReminders(e.config.RetentionDays)
		}))
		if _, err := e.cron.AddJob(retentionSchedule, retention); err != nil {
			e.logger.Warn("Scheduler: failed to register retention job: %v", err)
		}
	}

	// The initial tick joins the WaitGroup and the cron starts before the
	// lock is released, so a concurrent Stop always sees both.
	e.firstTick.Store(true)
	async.GoTracked(&e.inflight, e.logger, "scheduler.initial-tick", func() {
		e.Tick(ctx)
	})
	e.cron.Start()
	e.logger.Info("Scheduler started (interval=%s, timezone=%s, users=%d)",
		e.config.CheckInterval, e.loc, len(e.users))

	async.Go(e.logger, "scheduler.shutdown", func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-e.stopped:
		}
	})
	return nil
}

// Stop halts future ticks and waits for an in-flight tick to finish. Safe to
// call multiple times, and before Start.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.logger.Info("Scheduler stopping...")
		e.mu.Lock()
		e.stopping = true
		c := e.cron
		e.mu.Unlock()
		if c != nil {
			<-c.Stop().Done()
		}
		e.inflight.Wait()
		close(e.stopped)
		e.logger.Info("Scheduler stopped")
	})
}

// Done returns a channel that is closed when the engine has fully stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

// RegisterUser adds a user to the evaluation set. Registering twice keeps
// the existing nudge state.
func (e *Engine) RegisterUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("register user: %w: empty user id", reminder.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.users[userID]; !ok {
		e.users[userID] = newNudgeState()
		e.logger.Debug("Scheduler: registered user %s", userID)
	}
	return nil
}

// UnregisterUser removes a user and drops their nudge state.
func (e *Engine) UnregisterUser(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.users[userID]; ok {
		delete(e.users, userID)
		e.logger.Debug("Scheduler: unregistered user %s", userID)
	}
}

// RegisteredUsers returns the evaluation set, sorted.
func (e *Engine) RegisteredUsers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	users := make([]string, 0, len(e.users))
	for id := range e.users {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// IsRegistered reports whether the user is in the evaluation set.
func (e *Engine) IsRegistered(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.users[userID]
	return ok
}

func (e *Engine) nudgeStateFor(userID string) *nudgeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.users[userID]
}

// Tick evaluates every registered user once and reports whether it ran. A
// call made while another tick is running returns false without touching
// any state. Cancelling ctx does not interrupt a tick that has begun.
func (e *Engine) Tick(ctx context.Context) bool {
	if !e.ticking.CompareAndSwap(false, true) {
		e.logger.Warn("Scheduler: previous tick still running, skipping")
		e.metrics.TickSkipped()
		return false
	}
	defer e.ticking.Store(false)

	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	batchMissed := e.firstTick.Load()

	users := e.RegisteredUsers()
	for _, userID := range users {
		e.evaluateUser(ctx, userID, batchMissed)
	}

	if batchMissed {
		e.firstTick.Store(false)
	}
	elapsed := time.Since(started)
	e.metrics.TickCompleted(elapsed)
	e.logger.Debug("Scheduler: tick evaluated %d users in %s", len(users), elapsed)
	return true
}

// evaluateUser runs both checks for one user. A panic is contained to this
// user so the rest of the tick still runs.
func (e *Engine) evaluateUser(ctx context.Context, userID string, batchMissed bool) {
	defer async.Recover(e.logger, "scheduler.user:"+userID)
	e.checkUserReminders(ctx, userID, batchMissed)
	e.checkCalendarNudges(ctx, userID)
}

// cronLogger routes robfig/cron diagnostics into the engine logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("Scheduler: cron %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("Scheduler: cron %s: %v %v", msg, err, keysAndValues)
}

package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudge/internal/domain/reminder"
	"nudge/internal/infra/reminderstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type delivery struct {
	UserID  string
	Message string
	Kind    reminder.Kind
}

// recordingDeliverer records every attempt; fail decides per attempt.
type recordingDeliverer struct {
	mu       sync.Mutex
	attempts []delivery
	fail     func(d delivery) error
}

func (r *recordingDeliverer) Deliver(_ context.Context, userID, message string, kind reminder.Kind, _ string) error {
	d := delivery{UserID: userID, Message: message, Kind: kind}
	r.mu.Lock()
	r.attempts = append(r.attempts, d)
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail(d)
	}
	return nil
}

func (r *recordingDeliverer) setFail(fn func(d delivery) error) {
	r.mu.Lock()
	r.fail = fn
	r.mu.Unlock()
}

func (r *recordingDeliverer) count(kind reminder.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.attempts {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingDeliverer) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.attempts))
	for i, d := range r.attempts {
		out[i] = d.Message
	}
	return out
}

type fakeCalendar struct {
	mu     sync.Mutex
	events []reminder.CalendarEvent
	err    error
}

func (f *fakeCalendar) UpcomingEvents(context.Context, string, time.Duration) ([]reminder.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]reminder.CalendarEvent(nil), f.events...), nil
}

func (f *fakeCalendar) set(events ...reminder.CalendarEvent) {
	f.mu.Lock()
	f.events = events
	f.mu.Unlock()
}

// Tuesday 2026-03-10 14:00 UTC, outside the default quiet window.
var noon = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type harness struct {
	engine    *Engine
	store     *reminderstore.Store
	clock     *fakeClock
	deliverer *recordingDeliverer
	calendar  *fakeCalendar
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	store, err := reminderstore.New(t.TempDir())
	require.NoError(t, err)
	h := &harness{
		store:     store,
		clock:     newFakeClock(noon),
		deliverer: &recordingDeliverer{},
		calendar:  &fakeCalendar{},
	}
	h.engine = New(cfg, store, h.deliverer, h.calendar, WithClock(h.clock.Now))
	require.NoError(t, h.engine.RegisterUser("alice"))
	return h
}

func (h *harness) addDue(t *testing.T, id string, due time.Time) {
	t.Helper()
	h.store.AddReminder("alice", reminder.Reminder{
		ID: id, UserID: "alice", Content: "task " + id, DueAt: due, CreatedAt: due.Add(-time.Hour),
	})
}

func TestTick_FiresDueReminderExactlyOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDue(t, "rem-1", noon.Add(-time.Minute))
	h.addDue(t, "rem-future", noon.Add(time.Hour))

	require.True(t, h.engine.Tick(context.Background()))
	require.True(t, h.engine.Tick(context.Background()))

	assert.Equal(t, 1, h.deliverer.count(reminder.KindUser))
	assert.Equal(t, []string{"⏰ Reminder: task rem-1"}, h.deliverer.messages())

	got, ok := h.store.GetReminder("alice", "rem-1")
	require.True(t, ok)
	assert.True(t, got.Fired)
	require.NotNil(t, got.FiredAt)
	assert.True(t, noon.Equal(*got.FiredAt))
}

func TestTick_FailedDeliveryIsRetried(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDue(t, "rem-1", noon.Add(-time.Minute))
	h.deliverer.setFail(func(delivery) error { return errors.New("network down") })

	h.engine.Tick(context.Background())
	got, _ := h.store.GetReminder("alice", "rem-1")
	assert.False(t, got.Fired)
	assert.Nil(t, got.FiredAt)

	h.deliverer.setFail(nil)
	h.clock.Set(noon.Add(time.Minute))
	h.engine.Tick(context.Background())

	got, _ = h.store.GetReminder("alice", "rem-1")
	assert.True(t, got.Fired)
	assert.Equal(t, 2, h.deliverer.count(reminder.KindUser))
}

func TestTick_OneFailureDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDue(t, "rem-bad", noon.Add(-2*time.Minute))
	h.addDue(t, "rem-good", noon.Add(-time.Minute))
	h.deliverer.setFail(func(d delivery) error {
		if strings.Contains(d.Message, "rem-bad") {
			return errors.New("rejected")
		}
		return nil
	})

	h.engine.Tick(context.Background())

	bad, _ := h.store.GetReminder("alice", "rem-bad")
	good, _ := h.store.GetReminder("alice", "rem-good")
	assert.False(t, bad.Fired)
	assert.True(t, good.Fired)
}

func TestTick_QuietHoursHoldReminderUntilWindowEnds(t *testing.T) {
	h := newHarness(t, Config{QuietHours: &reminder.QuietHours{Start: 22, End: 8}})
	due := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	h.addDue(t, "rem-late", due)

	for _, at := range []time.Time{
		due.Add(5 * time.Minute),
		time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 11, 7, 59, 0, 0, time.UTC),
	} {
		h.clock.Set(at)
		h.engine.Tick(context.Background())
		assert.Zero(t, h.deliverer.count(reminder.KindUser), "delivered during quiet hours at %s", at)
	}

	h.clock.Set(time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC))
	h.engine.Tick(context.Background())
	assert.Equal(t, 1, h.deliverer.count(reminder.KindUser))
}

func TestTick_UserQuietHoursOverrideDefault(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	_, err := h.engine.UpdateSettings("alice", reminder.SettingsPatch{QuietHours: &reminder.QuietHours{Start: 13, End: 15}})
	require.NoError(t, err)
	h.addDue(t, "rem-1", noon.Add(-time.Minute))

	h.engine.Tick(context.Background())
	assert.Zero(t, h.deliverer.count(reminder.KindUser))

	h.clock.Set(noon.Add(time.Hour))
	h.engine.Tick(context.Background())
	assert.Equal(t, 1, h.deliverer.count(reminder.KindUser))
}

func TestTick_DisabledUserGetsNothing(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	disabled := false
	_, err := h.engine.UpdateSettings("alice", reminder.SettingsPatch{Enabled: &disabled})
	require.NoError(t, err)
	h.addDue(t, "rem-1", noon.Add(-time.Minute))
	h.calendar.set(reminder.CalendarEvent{ID: "evt", Title: "Standup", Start: noon.Add(5 * time.Minute)})

	h.engine.Tick(context.Background())
	assert.Empty(t, h.deliverer.messages())

	got, _ := h.store.GetReminder("alice", "rem-1")
	assert.False(t, got.Fired)
}

func TestTick_UnregisteredUsersAreIgnored(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.store.AddReminder("bob", reminder.Reminder{ID: "rem-b", UserID: "bob", Content: "x", DueAt: noon.Add(-time.Minute)})

	h.engine.Tick(context.Background())
	assert.Empty(t, h.deliverer.messages())
}

func TestTick_PanicIsContainedToOneUser(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	require.NoError(t, h.engine.RegisterUser("zed"))
	h.addDue(t, "rem-1", noon.Add(-time.Minute))
	h.store.AddReminder("zed", reminder.Reminder{ID: "rem-z", UserID: "zed", Content: "z", DueAt: noon.Add(-time.Minute)})
	h.deliverer.setFail(func(d delivery) error {
		if d.UserID == "alice" {
			panic("boom")
		}
		return nil
	})

	assert.True(t, h.engine.Tick(context.Background()))

	zed, _ := h.store.GetReminder("zed", "rem-z")
	assert.True(t, zed.Fired)
	assert.True(t, h.engine.Tick(context.Background()), "guard released after panic")
}

func TestTick_SkippedWhileAnotherTickRuns(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDue(t, "rem-1", noon.Add(-time.Minute))

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.engine.deliverer = reminder.DelivererFunc(func(context.Context, string, string, reminder.Kind, string) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	})

	done := make(chan bool)
	go func() { done <- h.engine.Tick(context.Background()) }()
	<-entered

	assert.False(t, h.engine.Tick(context.Background()))
	pending := h.store.GetPendingReminders("alice")
	require.Len(t, pending, 1, "skipped tick must not touch state")

	close(release)
	assert.True(t, <-done)
	assert.Empty(t, h.store.GetPendingReminders("alice"))
}

func TestTick_ContextCancellationDoesNotInterruptDelivery(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDue(t, "rem-1", noon.Add(-time.Minute))

	var seen error
	h.engine.deliverer = reminder.DelivererFunc(func(ctx context.Context, _, _ string, _ reminder.Kind, _ string) error {
		seen = ctx.Err()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.engine.Tick(ctx)
	assert.NoError(t, seen)
	got, _ := h.store.GetReminder("alice", "rem-1")
	assert.True(t, got.Fired)
}

func TestStart_BatchesMissedRemindersOnFirstTick(t *testing.T) {
	h := newHarness(t, Config{CheckInterval: time.Hour})
	h.addDue(t, "six", noon.Add(-6*time.Minute))
	h.addDue(t, "seven", noon.Add(-7*time.Minute))
	h.addDue(t, "two", noon.Add(-2*time.Minute))

	require.NoError(t, h.engine.Start(context.Background()))
	h.engine.Stop()

	msgs := h.deliverer.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "⏰ You have 2 missed reminders:\n• task seven\n• task six", msgs[0])
	assert.Equal(t, "⏰ Reminder: task two", msgs[1])
	assert.Empty(t, h.store.GetPendingReminders("alice"))
	assert.False(t, h.engine.firstTick.Load(), "batching only applies to the first tick")
}

func TestStart_FailedBatchMarksNothing(t *testing.T) {
	h := newHarness(t, Config{CheckInterval: time.Hour})
	h.addDue(t, "six", noon.Add(-6*time.Minute))
	h.addDue(t, "seven", noon.Add(-7*time.Minute))
	h.deliverer.setFail(func(delivery) error { return errors.New("offline") })

	require.NoError(t, h.engine.Start(context.Background()))
	h.engine.Stop()

	assert.Len(t, h.store.GetPendingReminders("alice"), 2)

	// Later ticks deliver individually.
	h.deliverer.setFail(nil)
	h.engine.Tick(context.Background())
	assert.Equal(t, []string{
		"⏰ You have 2 missed reminders:\n• task seven\n• task six",
		"⏰ Reminder: task seven",
		"⏰ Reminder: task six",
	}, h.deliverer.messages())
}

func TestStart_SingleMissedReminderIsNotBatched(t *testing.T) {
	h := newHarness(t, Config{CheckInterval: time.Hour})
	h.addDue(t, "old", noon.Add(-30*time.Minute))
	h.addDue(t, "fresh", noon.Add(-time.Minute))

	require.NoError(t, h.engine.Start(context.Background()))
	h.engine.Stop()

	assert.Equal(t, []string{"⏰ Reminder: task old", "⏰ Reminder: task fresh"}, h.deliverer.messages())
}

func TestTick_NoBatchingOutsideStartup(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDue(t, "six", noon.Add(-6*time.Minute))
	h.addDue(t, "seven", noon.Add(-7*time.Minute))

	h.engine.Tick(context.Background())
	assert.Equal(t, 2, h.deliverer.count(reminder.KindUser))
}

func TestCalendarNudge_DeliveredOnceAcrossTicks(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.calendar.set(reminder.CalendarEvent{
		ID: "evt-1", Title: "Design review", Start: noon.Add(10 * time.Minute),
		Location: "Room 4", ConferenceURL: "https://meet.example.com/abc",
	})

	h.engine.Tick(context.Background())
	h.clock.Set(noon.Add(time.Minute))
	h.engine.Tick(context.Background())

	require.Equal(t, 1, h.deliverer.count(reminder.KindMeeting))
	assert.Equal(t, "📅 Design review starts in 10 minutes\n📍 Room 4\n🔗 https://meet.example.com/abc", h.deliverer.messages()[0])
}

func TestCalendarNudge_RespectsLeadTime(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	require.NoError(t, h.engine.SetMeetingReminderMinutes("alice", 5))
	h.calendar.set(
		reminder.CalendarEvent{ID: "far", Title: "Later", Start: noon.Add(10 * time.Minute)},
		reminder.CalendarEvent{ID: "started", Title: "Now", Start: noon},
	)

	h.engine.Tick(context.Background())
	assert.Zero(t, h.deliverer.count(reminder.KindMeeting))

	h.clock.Set(noon.Add(5 * time.Minute))
	h.engine.Tick(context.Background())
	assert.Equal(t, 1, h.deliverer.count(reminder.KindMeeting))
}

func TestCalendarNudge_IgnoresQuietHours(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	late := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	h.clock.Set(late)
	h.calendar.set(reminder.CalendarEvent{Title: "Incident bridge", Start: late.Add(3 * time.Minute)})

	h.engine.Tick(context.Background())
	assert.Equal(t, 1, h.deliverer.count(reminder.KindMeeting))
}

func TestCalendarNudge_RescheduledEventIsNudgedAgain(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.calendar.set(reminder.CalendarEvent{ID: "evt-1", Title: "1:1", Start: noon.Add(10 * time.Minute)})
	h.engine.Tick(context.Background())

	h.calendar.set(reminder.CalendarEvent{ID: "evt-1", Title: "1:1", Start: noon.Add(12 * time.Minute)})
	h.engine.Tick(context.Background())

	assert.Equal(t, 2, h.deliverer.count(reminder.KindMeeting))
}

func TestCalendarNudge_EvictsKeysForVanishedEvents(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.calendar.set(reminder.CalendarEvent{ID: "evt-1", Title: "Sync", Start: noon.Add(10 * time.Minute)})
	h.engine.Tick(context.Background())

	state := h.engine.nudgeStateFor("alice")
	require.NotNil(t, state)
	assert.Equal(t, 1, state.size())

	h.calendar.set()
	h.engine.Tick(context.Background())
	assert.Zero(t, state.size())
	assert.True(t, noon.Equal(state.lastCheck))
}

func TestCalendarNudge_QueryErrorKeepsState(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.calendar.set(reminder.CalendarEvent{ID: "evt-1", Title: "Sync", Start: noon.Add(10 * time.Minute)})
	h.engine.Tick(context.Background())

	h.calendar.mu.Lock()
	h.calendar.err = errors.New("calendar unavailable")
	h.calendar.mu.Unlock()
	h.engine.Tick(context.Background())

	assert.Equal(t, 1, h.engine.nudgeStateFor("alice").size())
}

// Meeting nudges are sent at most once: a failed send is logged and not
// retried, unlike user reminders.
func TestCalendarNudge_FailureIsNotRetried(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.calendar.set(reminder.CalendarEvent{ID: "evt-1", Title: "Sync", Start: noon.Add(10 * time.Minute)})
	h.deliverer.setFail(func(delivery) error { return errors.New("send failed") })

	h.engine.Tick(context.Background())
	h.deliverer.setFail(nil)
	h.engine.Tick(context.Background())

	assert.Equal(t, 1, h.deliverer.count(reminder.KindMeeting))
}

func TestCalendarNudge_RetryFailedNudgesOptIn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryFailedNudges = true
	h := newHarness(t, cfg)
	h.calendar.set(reminder.CalendarEvent{ID: "evt-1", Title: "Sync", Start: noon.Add(10 * time.Minute)})
	h.deliverer.setFail(func(delivery) error { return errors.New("send failed") })

	h.engine.Tick(context.Background())
	h.deliverer.setFail(nil)
	h.engine.Tick(context.Background())
	h.engine.Tick(context.Background())

	assert.Equal(t, 2, h.deliverer.count(reminder.KindMeeting))
}

func TestCalendarNudge_RunsAfterUserReminders(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addDue(t, "rem-1", noon.Add(-time.Minute))
	h.calendar.set(reminder.CalendarEvent{Title: "Sync", Start: noon.Add(10 * time.Minute)})

	h.engine.Tick(context.Background())

	h.deliverer.mu.Lock()
	defer h.deliverer.mu.Unlock()
	require.Len(t, h.deliverer.attempts, 2)
	assert.Equal(t, reminder.KindUser, h.deliverer.attempts[0].Kind)
	assert.Equal(t, reminder.KindMeeting, h.deliverer.attempts[1].Kind)
}

func TestEngine_StartStopLifecycle(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.engine.Start(ctx))
	assert.ErrorIs(t, h.engine.Start(ctx), ErrAlreadyStarted)

	cancel()
	select {
	case <-h.engine.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after context cancellation")
	}
	h.engine.Stop()
	assert.ErrorIs(t, h.engine.Start(context.Background()), ErrStopped)
}

func TestEngine_ConcurrentStartStop(t *testing.T) {
	for i := 0; i < 25; i++ {
		h := newHarness(t, DefaultConfig())

		var wg sync.WaitGroup
		var startErr error
		begin := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-begin
			startErr = h.engine.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			<-begin
			h.engine.Stop()
		}()
		close(begin)
		wg.Wait()

		if startErr != nil {
			require.ErrorIs(t, startErr, ErrStopped)
		}
		select {
		case <-h.engine.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("engine did not stop")
		}
		assert.False(t, h.engine.ticking.Load(), "no tick may outlive Stop")
		assert.ErrorIs(t, h.engine.Start(context.Background()), ErrStopped)
	}
}

func TestEngine_Registration(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	require.NoError(t, h.engine.RegisterUser("bob"))
	require.NoError(t, h.engine.RegisterUser("bob"))
	assert.Error(t, h.engine.RegisterUser(""))

	assert.Equal(t, []string{"alice", "bob"}, h.engine.RegisteredUsers())
	h.engine.UnregisterUser("alice")
	assert.False(t, h.engine.IsRegistered("alice"))
	assert.Nil(t, h.engine.nudgeStateFor("alice"))
}

package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudge/internal/domain/reminder"
)

// Tuesday 2026-03-10 14:00 UTC.
var afternoon = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

type parseCase struct {
	input      string
	now        time.Time
	want       time.Time
	confidence reminder.Confidence
}

func runCases(t *testing.T, cases []parseCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got := Parse(tc.input, "UTC", tc.now)
			assert.True(t, tc.want.Equal(got.Date), "date: want %s, got %s", tc.want, got.Date)
			assert.Equal(t, tc.confidence, got.Confidence)
			assert.NotEmpty(t, got.Interpretation)
		})
	}
}

func TestParse_Relative(t *testing.T) {
	runCases(t, []parseCase{
		{"in 30 minutes", afternoon, afternoon.Add(30 * time.Minute), reminder.ConfidenceHigh},
		{"In 1 minute", afternoon, afternoon.Add(time.Minute), reminder.ConfidenceHigh},
		{"in 5 mins", afternoon, afternoon.Add(5 * time.Minute), reminder.ConfidenceHigh},
		{"in 2 hours", afternoon, afternoon.Add(2 * time.Hour), reminder.ConfidenceHigh},
		{"in an hour", afternoon, afternoon.Add(time.Hour), reminder.ConfidenceHigh},
		{"in 3 days", afternoon, afternoon.Add(72 * time.Hour), reminder.ConfidenceHigh},
		{"remind me in 10m please", afternoon, afternoon.Add(10 * time.Minute), reminder.ConfidenceHigh},
	})

	got := Parse("in 30 minutes", "UTC", afternoon)
	assert.Equal(t, "in 30 minutes (Tue Mar 10 at 2:30 PM)", got.Interpretation)
}

func TestParse_RelativeOutOfRangeFallsThrough(t *testing.T) {
	runCases(t, []parseCase{
		{"in 200000 days", afternoon, afternoon.Add(time.Hour), reminder.ConfidenceLow},
		{"in 99999999999999999999 minutes", afternoon, afternoon.Add(time.Hour), reminder.ConfidenceLow},
		{"in 3650 days", afternoon, afternoon.Add(3650 * 24 * time.Hour), reminder.ConfidenceHigh},
	})
}

func TestParse_Tomorrow(t *testing.T) {
	runCases(t, []parseCase{
		{"tomorrow", afternoon, at(11, 9, 0), reminder.ConfidenceMedium},
		{"tomorrow morning", afternoon, at(11, 9, 0), reminder.ConfidenceHigh},
		{"tomorrow afternoon", afternoon, at(11, 14, 0), reminder.ConfidenceHigh},
		{"tomorrow evening", afternoon, at(11, 18, 0), reminder.ConfidenceHigh},
		{"tomorrow night", afternoon, at(11, 20, 0), reminder.ConfidenceHigh},
		{"tomorrow at 7:30pm", afternoon, at(11, 19, 30), reminder.ConfidenceHigh},
		{"tomorrow at 3", afternoon, at(11, 15, 0), reminder.ConfidenceHigh},
		{"tomorrow morning at 7", afternoon, at(11, 7, 0), reminder.ConfidenceHigh},
	})

	got := Parse("tomorrow morning", "UTC", afternoon)
	assert.Equal(t, "tomorrow morning at 9:00 AM", got.Interpretation)
}

func TestParse_SameDay(t *testing.T) {
	runCases(t, []parseCase{
		{"tonight", afternoon, at(10, 20, 0), reminder.ConfidenceMedium},
		{"today at 5pm", afternoon, at(10, 17, 0), reminder.ConfidenceHigh},
		{"today evening", afternoon, at(10, 18, 0), reminder.ConfidenceHigh},
		// Elapsed same-day times roll forward and keep their confidence.
		{"today at 9am", afternoon, at(11, 9, 0), reminder.ConfidenceHigh},
		{"today morning", afternoon, at(11, 9, 0), reminder.ConfidenceHigh},
		{"tonight", at(10, 21, 0), at(11, 20, 0), reminder.ConfidenceMedium},
	})

	rolled := Parse("today at 9am", "UTC", afternoon)
	assert.Contains(t, rolled.Interpretation, "already passed, moved to tomorrow Wed Mar 11")
}

func TestParse_BareToday_FallsThroughToDefault(t *testing.T) {
	got := Parse("today", "UTC", afternoon)
	assert.Equal(t, reminder.ConfidenceLow, got.Confidence)
	assert.True(t, afternoon.Add(time.Hour).Equal(got.Date))
}

func TestParse_AtClause(t *testing.T) {
	runCases(t, []parseCase{
		{"at 4", afternoon, at(10, 16, 0), reminder.ConfidenceHigh},
		{"at 16:45", afternoon, at(10, 16, 45), reminder.ConfidenceHigh},
		{"at 10", afternoon, at(11, 10, 0), reminder.ConfidenceHigh},
		{"call mom at 6:15 pm", afternoon, at(10, 18, 15), reminder.ConfidenceHigh},
	})
}

func TestParse_TimeOnly(t *testing.T) {
	runCases(t, []parseCase{
		{"5pm", afternoon, at(10, 17, 0), reminder.ConfidenceMedium},
		{"5pm", at(10, 18, 0), at(11, 17, 0), reminder.ConfidenceMedium},
		{"15:00", afternoon, at(10, 15, 0), reminder.ConfidenceMedium},
		{"9:30 am", afternoon, at(11, 9, 30), reminder.ConfidenceMedium},
		{"12am", afternoon, at(11, 0, 0), reminder.ConfidenceMedium},
	})
}

func TestParse_ISO(t *testing.T) {
	runCases(t, []parseCase{
		{"2026-03-12T08:15:00Z", afternoon, at(12, 8, 15), reminder.ConfidenceHigh},
		{"2026-03-12T10:15:00+02:00", afternoon, at(12, 8, 15), reminder.ConfidenceHigh},
		{"2026-03-12 08:15", afternoon, at(12, 8, 15), reminder.ConfidenceHigh},
		{"on 2026-03-20", afternoon, at(20, 0, 0), reminder.ConfidenceHigh},
	})
}

func TestParse_NativeLayouts(t *testing.T) {
	runCases(t, []parseCase{
		{"March 20, 2026", afternoon, at(20, 0, 0), reminder.ConfidenceLow},
		{"Mar 20, 2026 3:30 PM", afternoon, at(20, 15, 30), reminder.ConfidenceLow},
		{"03/21/2026", afternoon, at(21, 0, 0), reminder.ConfidenceLow},
	})
}

func TestParse_Default(t *testing.T) {
	got := Parse("gibberish", "UTC", afternoon)
	assert.True(t, afternoon.Add(time.Hour).Equal(got.Date))
	assert.Equal(t, reminder.ConfidenceLow, got.Confidence)
	assert.Contains(t, got.Interpretation, `could not understand "gibberish"`)

	empty := Parse("   ", "UTC", afternoon)
	assert.Equal(t, reminder.ConfidenceLow, empty.Confidence)

	invalidClock := Parse("at 27:99", "UTC", afternoon)
	assert.Equal(t, reminder.ConfidenceLow, invalidClock.Confidence)
}

func TestParse_UsesTimezone(t *testing.T) {
	if !IsKnownTimezone("America/New_York") {
		t.Skip("tzdata not available")
	}
	ny := Location("America/New_York")

	// 14:00 UTC is 10:00 in New York (EDT starts 2026-03-08).
	got := Parse("tomorrow morning", "America/New_York", afternoon)
	require.Equal(t, ny, got.Date.Location())
	assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, ny), got.Date)

	local := Parse("5pm", "America/New_York", afternoon)
	assert.Equal(t, time.Date(2026, 3, 10, 17, 0, 0, 0, ny), local.Date)
}

func TestLocation_FallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Location(""))
	assert.Equal(t, time.UTC, Location("utc"))
	assert.Equal(t, time.UTC, Location("Mars/Olympus_Mons"))
	assert.False(t, IsKnownTimezone("Mars/Olympus_Mons"))

	_, cached := locationCache.Load("Mars/Olympus_Mons")
	assert.False(t, cached)
}

// The suffix-less hour heuristic is a known ambiguity ("at 5" means 17:00,
// "at 8" means 08:00). These cases pin it so a change is a deliberate product
// decision rather than an accident.
func TestResolveHour_KnownAmbiguity(t *testing.T) {
	tests := []struct {
		hour   int
		suffix string
		want   int
		ok     bool
	}{
		{1, "", 13, true},
		{6, "", 18, true},
		{7, "", 7, true},
		{11, "", 11, true},
		{12, "", 12, true},
		{0, "", 0, true},
		{13, "", 13, true},
		{23, "", 23, true},
		{12, "pm", 12, true},
		{12, "am", 0, true},
		{5, "am", 5, true},
		{5, "pm", 17, true},
		{24, "", 0, false},
		{13, "pm", 0, false},
		{14, "am", 0, false},
	}
	for _, tt := range tests {
		got, ok := ResolveHour(tt.hour, tt.suffix)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ResolveHour(%d, %q) = %d, %v; want %d, %v", tt.hour, tt.suffix, got, ok, tt.want, tt.ok)
		}
	}
}

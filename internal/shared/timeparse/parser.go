// Package timeparse turns natural-language time expressions ("in 30 minutes",
// "tomorrow at 5pm", "15:00") into absolute timestamps.
//
// Parsing never fails. Rules are tried in a fixed order and the first match
// wins; when nothing matches the result is one hour from now with low
// confidence.
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"nudge/internal/domain/reminder"
)

// rule inspects the expression and reports whether it produced a result.
type rule func(expr expression) (reminder.ParsedTime, bool)

// rules is the evaluation order. Relative durations come first so "in 2 hours"
// is never mistaken for a clock time; ISO and layout parsing come last because
// they are the least forgiving.
var rules = []rule{
	parseRelative,
	parseTomorrow,
	parseSameDay,
	parseAtClause,
	parseTimeOnly,
	parseISO,
	parseNative,
}

type expression struct {
	raw  string    // trimmed original input
	text string    // lower-cased with collapsed whitespace
	now  time.Time // current time in loc
	loc  *time.Location
}

// Parse resolves input relative to now in the given IANA timezone. Empty or
// unknown zones are treated as UTC.
func Parse(input, timezone string, now time.Time) reminder.ParsedTime {
	loc := Location(timezone)
	raw := strings.TrimSpace(input)
	expr := expression{
		raw:  raw,
		text: strings.Join(strings.Fields(strings.ToLower(raw)), " "),
		now:  now.In(loc),
		loc:  loc,
	}
	for _, r := range rules {
		if parsed, ok := r(expr); ok {
			return parsed
		}
	}
	return fallback(expr)
}

var relativeRe = regexp.MustCompile(`\bin\s+(\d+|an?|one)\s*(minutes?|mins?|m|hours?|hrs?|h|days?|d)\b`)

// maxRelativeOffset bounds relative durations; larger amounts are left to the
// default rule.
const maxRelativeOffset = 10 * 365 * 24 * time.Hour

func parseRelative(expr expression) (reminder.ParsedTime, bool) {
	m := relativeRe.FindStringSubmatch(expr.text)
	if m == nil {
		return reminder.ParsedTime{}, false
	}
	amount := int64(1) // "a", "an", "one"
	if m[1][0] >= '0' && m[1][0] <= '9' {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return reminder.ParsedTime{}, false
		}
		amount = n
	}

	var unit time.Duration
	var unitName string
	switch m[2][0] {
	case 'm':
		unit, unitName = time.Minute, "minute"
	case 'h':
		unit, unitName = time.Hour, "hour"
	default:
		unit, unitName = 24*time.Hour, "day"
	}
	if amount > int64(maxRelativeOffset/unit) {
		return reminder.ParsedTime{}, false
	}
	if amount != 1 {
		unitName += "s"
	}

	date := expr.now.Add(time.Duration(amount) * unit)
	return reminder.ParsedTime{
		Date:           date,
		Confidence:     reminder.ConfidenceHigh,
		Interpretation: fmt.Sprintf("in %d %s (%s)", amount, unitName, formatDateTime(date)),
	}, true
}

var (
	tomorrowRe  = regexp.MustCompile(`\btomorrow\b`)
	sameDayRe   = regexp.MustCompile(`\b(today|tonight)\b`)
	qualifierRe = regexp.MustCompile(`\b(morning|afternoon|evening|night)\b`)
	atClauseRe  = regexp.MustCompile(`\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	timeOnlyRe  = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
)

// qualifierHours are the fixed clock times behind day-part words.
var qualifierHours = map[string]int{
	"morning":   9,
	"afternoon": 14,
	"evening":   18,
	"night":     20,
}

// dayTime is a clock time pulled out of an expression.
type dayTime struct {
	hour, minute int
	label        string // day-part word; empty for an explicit "at" clause
}

// extractDayTime looks for an "at H[:MM][am|pm]" clause first, then a day-part
// word.
func extractDayTime(text string) (dayTime, bool) {
	if m := atClauseRe.FindStringSubmatch(text); m != nil {
		if hour, minute, ok := clockFromMatch(m[1], m[2], m[3]); ok {
			return dayTime{hour: hour, minute: minute}, true
		}
	}
	if m := qualifierRe.FindStringSubmatch(text); m != nil {
		return dayTime{hour: qualifierHours[m[1]], label: m[1]}, true
	}
	return dayTime{}, false
}

func parseTomorrow(expr expression) (reminder.ParsedTime, bool) {
	if !tomorrowRe.MatchString(expr.text) {
		return reminder.ParsedTime{}, false
	}

	dt, qualified := extractDayTime(expr.text)
	confidence := reminder.ConfidenceHigh
	if !qualified {
		dt = dayTime{hour: 9}
		confidence = reminder.ConfidenceMedium
	}

	date := atClock(expr.now.AddDate(0, 0, 1), dt.hour, dt.minute)
	interpretation := "tomorrow at " + formatClock(date)
	if dt.label != "" {
		interpretation = fmt.Sprintf("tomorrow %s at %s", dt.label, formatClock(date))
	}
	return reminder.ParsedTime{Date: date, Confidence: confidence, Interpretation: interpretation}, true
}

func parseSameDay(expr expression) (reminder.ParsedTime, bool) {
	m := sameDayRe.FindStringSubmatch(expr.text)
	if m == nil {
		return reminder.ParsedTime{}, false
	}
	anchor := m[1]

	dt, qualified := extractDayTime(expr.text)
	confidence := reminder.ConfidenceHigh
	if !qualified {
		if anchor != "tonight" {
			return reminder.ParsedTime{}, false
		}
		dt = dayTime{hour: 20}
		confidence = reminder.ConfidenceMedium
	}

	date := atClock(expr.now, dt.hour, dt.minute)
	interpretation := fmt.Sprintf("%s at %s", anchor, formatClock(date))
	if dt.label != "" {
		interpretation = fmt.Sprintf("%s %s at %s", anchor, dt.label, formatClock(date))
	}
	date, interpretation = rollIfElapsed(expr.now, date, interpretation)
	return reminder.ParsedTime{Date: date, Confidence: confidence, Interpretation: interpretation}, true
}

func parseAtClause(expr expression) (reminder.ParsedTime, bool) {
	m := atClauseRe.FindStringSubmatch(expr.text)
	if m == nil {
		return reminder.ParsedTime{}, false
	}
	hour, minute, ok := clockFromMatch(m[1], m[2], m[3])
	if !ok {
		return reminder.ParsedTime{}, false
	}
	return resolveToday(expr, hour, minute, reminder.ConfidenceHigh), true
}

func parseTimeOnly(expr expression) (reminder.ParsedTime, bool) {
	m := timeOnlyRe.FindStringSubmatch(expr.text)
	if m == nil || (m[2] == "" && m[3] == "") {
		return reminder.ParsedTime{}, false
	}
	hour, minute, ok := clockFromMatch(m[1], m[2], m[3])
	if !ok {
		return reminder.ParsedTime{}, false
	}
	return resolveToday(expr, hour, minute, reminder.ConfidenceMedium), true
}

// resolveToday places hour:minute on today's date, rolling to tomorrow when
// that moment has already passed.
func resolveToday(expr expression, hour, minute int, confidence reminder.Confidence) reminder.ParsedTime {
	date := atClock(expr.now, hour, minute)
	date, interpretation := rollIfElapsed(expr.now, date, "today at "+formatClock(date))
	return reminder.ParsedTime{Date: date, Confidence: confidence, Interpretation: interpretation}
}

func rollIfElapsed(now, date time.Time, interpretation string) (time.Time, string) {
	if date.After(now) {
		return date, interpretation
	}
	rolled := date.AddDate(0, 0, 1)
	return rolled, fmt.Sprintf("%s (already passed, moved to tomorrow %s)", interpretation, formatDate(rolled))
}

func fallback(expr expression) reminder.ParsedTime {
	date := expr.now.Add(time.Hour)
	return reminder.ParsedTime{
		Date:       date,
		Confidence: reminder.ConfidenceLow,
		Interpretation: fmt.Sprintf("could not understand %q, defaulting to 1 hour from now (%s)",
			expr.raw, formatDateTime(date)),
	}
}

func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func formatClock(t time.Time) string {
	return t.Format("3:04 PM")
}

func formatDate(t time.Time) string {
	return t.Format("Mon Jan 2")
}

func formatDateTime(t time.Time) string {
	return t.Format("Mon Jan 2 at 3:04 PM")
}

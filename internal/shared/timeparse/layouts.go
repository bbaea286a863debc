package timeparse

import (
	"regexp"
	"strings"
	"time"

	"nudge/internal/domain/reminder"
)

// isoRe extracts an ISO 8601 date or date-time from anywhere in the input.
var isoRe = regexp.MustCompile(`(?i)\d{4}-\d{2}-\d{2}(?:[t ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:z|[+-]\d{2}:?\d{2})?)?`)

// isoZonedLayouts carry their own offset and are parsed as absolute instants.
var isoZonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z0700",
}

// isoLocalLayouts have no offset and are read in the user's timezone.
var isoLocalLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseISO(expr expression) (reminder.ParsedTime, bool) {
	candidate := isoRe.FindString(expr.raw)
	if candidate == "" {
		return reminder.ParsedTime{}, false
	}
	candidate = strings.Replace(strings.ToUpper(candidate), " ", "T", 1)

	for _, layout := range isoZonedLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return isoResult(t.In(expr.loc)), true
		}
	}
	for _, layout := range isoLocalLayouts {
		if t, err := time.ParseInLocation(layout, candidate, expr.loc); err == nil {
			return isoResult(t), true
		}
	}
	return reminder.ParsedTime{}, false
}

func isoResult(t time.Time) reminder.ParsedTime {
	return reminder.ParsedTime{
		Date:           t,
		Confidence:     reminder.ConfidenceHigh,
		Interpretation: formatDateTime(t),
	}
}

// nativeLayouts are the human date formats accepted as a last resort.
var nativeLayouts = []string{
	"January 2, 2006 3:04 PM",
	"January 2, 2006 3:04pm",
	"January 2, 2006 15:04",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04pm",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006 15:04",
	"2 January 2006",
	"2 Jan 2006 15:04",
	"2 Jan 2006",
	"01/02/2006 15:04",
	"01/02/2006 3:04 PM",
	"01/02/2006",
	"2006/01/02 15:04",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
}

func parseNative(expr expression) (reminder.ParsedTime, bool) {
	if expr.raw == "" {
		return reminder.ParsedTime{}, false
	}
	for _, layout := range nativeLayouts {
		t, err := time.ParseInLocation(layout, expr.raw, expr.loc)
		if err != nil {
			continue
		}
		return reminder.ParsedTime{
			Date:           t,
			Confidence:     reminder.ConfidenceLow,
			Interpretation: formatDateTime(t),
		}, true
	}
	return reminder.ParsedTime{}, false
}

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"nudge/internal/domain/reminder"
)

var (
	errorStyle = color.New(color.FgRed).SprintFunc()
	okStyle    = color.New(color.FgGreen).SprintFunc()
	dimStyle   = color.New(color.FgHiBlack).SprintFunc()
	boldStyle  = color.New(color.Bold).SprintFunc()
	warnStyle  = color.New(color.FgYellow).SprintFunc()
)

func confidenceStyle(c reminder.Confidence) string {
	switch c {
	case reminder.ConfidenceHigh:
		return okStyle(string(c))
	case reminder.ConfidenceMedium:
		return warnStyle(string(c))
	default:
		return errorStyle(string(c))
	}
}

func printParsed(w io.Writer, parsed reminder.ParsedTime, loc *time.Location) {
	fmt.Fprintf(w, "%s %s\n", boldStyle("When:"), parsed.Date.In(loc).Format("Mon Jan 2 2006 15:04 MST"))
	fmt.Fprintf(w, "%s %s\n", boldStyle("Confidence:"), confidenceStyle(parsed.Confidence))
	fmt.Fprintf(w, "%s %s\n", boldStyle("Interpretation:"), parsed.Interpretation)
}

func printReminders(w io.Writer, reminders []reminder.Reminder, loc *time.Location, now time.Time) {
	if len(reminders) == 0 {
		fmt.Fprintln(w, dimStyle("No pending reminders."))
		return
	}
	for _, r := range reminders {
		due := r.DueAt.In(loc).Format("2006-01-02 15:04")
		if !r.DueAt.After(now) {
			due = warnStyle(due + " (overdue)")
		}
		fmt.Fprintf(w, "%s  %s  %s\n", dimStyle(r.ID), due, r.Content)
	}
}

func printSettings(w io.Writer, userID string, s reminder.Settings) {
	fmt.Fprintf(w, "%s %s\n", boldStyle("User:"), userID)
	enabled := okStyle("on")
	if !s.Enabled {
		enabled = errorStyle("off")
	}
	fmt.Fprintf(w, "%s %s\n", boldStyle("Reminders:"), enabled)
	fmt.Fprintf(w, "%s %d minutes\n", boldStyle("Meeting lead:"), s.MeetingReminderMinutes)
	if s.QuietHours != nil {
		fmt.Fprintf(w, "%s %02d:00-%02d:00\n", boldStyle("Quiet hours:"), s.QuietHours.Start, s.QuietHours.End)
	} else {
		fmt.Fprintf(w, "%s %s\n", boldStyle("Quiet hours:"), dimStyle("service default"))
	}
}

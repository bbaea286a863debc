package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nudge/internal/domain/reminder"
)

func newSettingsCommand(load configLoader) *cobra.Command {
	var (
		userID     string
		lead       int
		enabled    bool
		quiet      string
		clearQuiet bool
	)
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change a user's reminder settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var patch reminder.SettingsPatch
			flags := cmd.Flags()
			if flags.Changed("meeting-lead") {
				patch.MeetingReminderMinutes = &lead
			}
			if flags.Changed("enabled") {
				patch.Enabled = &enabled
			}
			if flags.Changed("quiet-hours") {
				window, err := parseQuietHours(quiet)
				if err != nil {
					return err
				}
				patch.QuietHours = &window
			}
			patch.ClearQuietHours = clearQuiet

			rt, err := offlineRuntime(load, patch != (reminder.SettingsPatch{}))
			if err != nil {
				return err
			}
			defer rt.close()

			settings, err := rt.engine.GetSettings(userID)
			if err != nil {
				return err
			}
			if patch != (reminder.SettingsPatch{}) {
				if settings, err = rt.engine.UpdateSettings(userID, patch); err != nil {
					return err
				}
			}
			printSettings(cmd.OutOrStdout(), userID, settings)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (required)")
	cmd.Flags().IntVar(&lead, "meeting-lead", 0, "minutes before a meeting to nudge")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "master switch for reminders and nudges")
	cmd.Flags().StringVar(&quiet, "quiet-hours", "", "personal quiet window as START-END hours, e.g. 23-7")
	cmd.Flags().BoolVar(&clearQuiet, "clear-quiet-hours", false, "fall back to the service quiet window")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// parseQuietHours reads "START-END" with hours in 0-23.
func parseQuietHours(value string) (reminder.QuietHours, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(value), "-")
	if !ok {
		return reminder.QuietHours{}, fmt.Errorf("quiet hours must look like 23-7, got %q", value)
	}
	s, err := strconv.Atoi(strings.TrimSpace(start))
	if err != nil {
		return reminder.QuietHours{}, fmt.Errorf("quiet hours start: %w", err)
	}
	e, err := strconv.Atoi(strings.TrimSpace(end))
	if err != nil {
		return reminder.QuietHours{}, fmt.Errorf("quiet hours end: %w", err)
	}
	window := reminder.QuietHours{Start: s, End: e}
	if err := window.Validate(); err != nil {
		return reminder.QuietHours{}, fmt.Errorf("quiet hours %q: %w", value, err)
	}
	return window, nil
}

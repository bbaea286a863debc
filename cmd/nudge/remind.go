package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nudge/internal/domain/reminder"
	"nudge/internal/infra/filestore"
	"nudge/internal/infra/reminderstore"
	"nudge/internal/shared/config"
	"nudge/internal/shared/timeparse"
)

func newRemindCommand(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Manage reminders in the local store",
	}
	cmd.AddCommand(
		newRemindAddCommand(load),
		newRemindListCommand(load),
		newRemindCancelCommand(load),
	)
	return cmd
}

func newRemindAddCommand(load configLoader) *cobra.Command {
	var userID, when, agentID string
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Create a reminder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := offlineRuntime(load, true)
			if err != nil {
				return err
			}
			defer rt.close()

			res, err := rt.engine.CreateReminder(cmd.Context(), userID, strings.Join(args, " "), when, agentID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", okStyle("Created"), res.Reminder.ID)
			printParsed(out, reminder.ParsedTime{
				Date:           res.Reminder.DueAt,
				Confidence:     res.Confidence,
				Interpretation: res.Interpretation,
			}, timeparse.Location(rt.engine.Timezone()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (required)")
	cmd.Flags().StringVar(&when, "at", "in 1 hour", "when to fire, e.g. \"tomorrow morning\"")
	cmd.Flags().StringVar(&agentID, "agent", "cli", "creator recorded on the reminder")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRemindListCommand(load configLoader) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := offlineRuntime(load, false)
			if err != nil {
				return err
			}
			defer rt.close()

			pending, err := rt.engine.GetReminders(userID)
			if err != nil {
				return err
			}
			printReminders(cmd.OutOrStdout(), pending, timeparse.Location(rt.engine.Timezone()), time.Now())
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRemindCancelCommand(load configLoader) *cobra.Command {
	var userID, match string
	cmd := &cobra.Command{
		Use:   "cancel [reminder-id]",
		Short: "Cancel a reminder by id or by matching its content",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && strings.TrimSpace(match) == "" {
				return errors.New("give a reminder id or --match")
			}
			rt, err := offlineRuntime(load, true)
			if err != nil {
				return err
			}
			defer rt.close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				if err := rt.engine.CancelReminder(userID, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s\n", okStyle("Cancelled"), args[0])
				return nil
			}
			cancelled, err := rt.engine.CancelReminderByContent(userID, match)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s %s\n", okStyle("Cancelled"), cancelled.ID, dimStyle(cancelled.Content))
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (required)")
	cmd.Flags().StringVar(&match, "match", "", "cancel the first pending reminder containing this text")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// offlineRuntime opens the store without channels. Writers are refused while
// a running server owns the store directory, since its cache would overwrite
// their changes.
func offlineRuntime(load configLoader, write bool) (*runtime, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if write {
		dir := filestore.ResolvePath(cfg.Storage.Path, config.DefaultStoragePath)
		if err := reminderstore.CheckLock(dir); err != nil {
			return nil, fmt.Errorf("%w: stop it or use its HTTP API", err)
		}
	}
	return newRuntime(cfg, false)
}

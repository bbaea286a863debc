package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nudge/internal/shared/timeparse"
)

func newParseCommand(load configLoader) *cobra.Command {
	var tz string
	cmd := &cobra.Command{
		Use:   "parse <expression>",
		Short: "Show how a time expression would be scheduled",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if strings.TrimSpace(tz) == "" {
				tz = cfg.Timezone
			}
			parsed := timeparse.Parse(strings.Join(args, " "), tz, time.Now())
			printParsed(cmd.OutOrStdout(), parsed, timeparse.Location(tz))
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone (defaults to the configured one)")
	return cmd
}

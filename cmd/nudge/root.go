package main

import (
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"nudge/internal/shared/config"
)

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("nudge")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "nudge",
		Short:         "Reminder and meeting-nudge scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor || !isTTY(cmd.OutOrStdout()) {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().String("config", "", "path to config.yaml (default $NUDGE_CONFIG or ~/.nudge/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().Bool("no-color", false, "disable colored output")
	for _, name := range []string{"config", "log-level"} {
		if err := v.BindPFlag(name, root.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	load := func() (config.Config, error) {
		cfg, _, err := config.Load(
			config.WithConfigPath(v.GetString("config")),
			config.WithOverride(func(c *config.Config) {
				if level := strings.TrimSpace(v.GetString("log-level")); level != "" {
					c.Log.Level = level
				}
			}),
		)
		return cfg, err
	}

	root.AddCommand(
		newServeCommand(load),
		newParseCommand(load),
		newRemindCommand(load),
		newSettingsCommand(load),
	)
	return root
}

type configLoader func() (config.Config, error)

// isTTY reports whether w is an interactive terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"uninotifier/internal/config"
)

// Version is set via ldflags at build time.
var Version = "dev"

const (
	exitFailure       = 1
	exitInvalidConfig = 2
)

type rootOptions struct {
	cfgPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "uninotifier",
		Short: "Fan one notification out to voice, chat and push channels",
		Long: `uninotifier resolves destination aliases to delivery channels, applies
time-of-day greetings, volume and quiet hours, and sends the message to every
channel concurrently through Home Assistant or the Telegram Bot API.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", "./config.yaml", "config file (YAML or JSON)")

	root.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newSendCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "uninotifier %s\n", Version)
			},
		},
	)
	return root
}

func exitCode(err error) int {
	if errors.Is(err, config.ErrInvalidConfig) {
		return exitInvalidConfig
	}
	return exitFailure
}

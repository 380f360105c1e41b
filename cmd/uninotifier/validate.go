package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"uninotifier/internal/config"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgm := config.NewConfigManager(opts.cfgPath)
			cfg, err := cfgm.Load(cmd.Context())
			if err != nil {
				return err
			}
			rt, err := config.Compile(cfg)
			if err != nil {
				return err
			}
			loc, _ := cfg.Notifier.Location()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d channels, %d schedules, timezone %s)\n",
				opts.cfgPath, rt.Registry.Len(), len(cfg.Schedules), loc)
			return nil
		},
	}
}

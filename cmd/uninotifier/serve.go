package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"uninotifier/internal/app"
	"uninotifier/pkg/systemd"
)

const stopTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduler and config watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts.cfgPath)
		},
	}
}

func serve(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a.OnReload = func(sections []string) {
		_, _ = systemd.Status(fmt.Sprintf("%d channels (reloaded %s)", a.ChannelCount(), strings.Join(sections, ",")))
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	go func() { _ = systemd.Watchdog(ctx) }()
	_, _ = systemd.Ready()
	_, _ = systemd.Status(fmt.Sprintf("%d channels", a.ChannelCount()))

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	case <-ctx.Done():
	}

	_, _ = systemd.Stopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	stopErr := a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil {
		return err
	}
	return stopErr
}

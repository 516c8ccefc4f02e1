package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"castbot/internal/app"
)

var stopTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot until SIGINT or SIGTERM (SIGHUP rereads the config)",
	RunE: func(cmd *cobra.Command, args []string) error {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigs)
		hups := make(chan os.Signal, 1)
		signal.Notify(hups, syscall.SIGHUP)
		defer signal.Stop(hups)

		a, err := app.New(cfgPath)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		// Not running under systemd is fine.
		_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

		reason := app.StopUnknown
	wait:
		for {
			select {
			case <-hups:
				// Rejections are logged by the config manager.
				_ = a.ReloadConfig()
			case s := <-sigs:
				reason = app.StopSIGINT
				if s == syscall.SIGTERM {
					reason = app.StopSIGTERM
				}
				break wait
			case <-a.Done():
				reason = app.StopFatalError
				break wait
			case <-ctx.Done():
				reason = app.StopAppStop
				break wait
			}
		}
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
		defer scancel()
		if err := a.Stop(sctx, reason); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
		if reason == app.StopFatalError {
			return a.Err()
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 20*time.Second, "graceful shutdown budget")
}

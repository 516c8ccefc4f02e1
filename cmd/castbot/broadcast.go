package main

import (
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"castbot/internal/app"
)

var broadcastText string

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Send one message to every subscriber and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(broadcastText) == "" {
			return errors.New("--text is required")
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return app.RunBroadcast(ctx, cfgPath, broadcastText, cmd.OutOrStdout())
	},
}

func init() {
	broadcastCmd.Flags().StringVar(&broadcastText, "text", "", "message text (HTML)")
}

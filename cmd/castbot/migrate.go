package main

import (
	"github.com/spf13/cobra"

	"castbot/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the subscriber schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Migrate(cmd.Context(), cfgPath, cmd.OutOrStdout())
	},
}

package main

import (
	"fmt"

	"github.com/quailyquaily/chipdesk/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := dbConfigFromViper()
			cfg.AutoMigrate = false
			gdb, err := db.Open(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(gdb) }()
			if err := db.AutoMigrate(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Driver)
			return nil
		},
	}
}

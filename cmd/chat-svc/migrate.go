package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"blogchat/internal/config"
	"blogchat/internal/dbmysql"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the users, conversations and messages tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.LoadConfig()
		cfg.Database.AutoMigrate = false

		log, closeLog := config.SetupLogger(cfg.Logging)
		defer closeLog()

		db, cleanup, err := dbmysql.NewMySQL(cfg, log)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := dbmysql.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("database migration completed", "tables", len(dbmysql.Models()))
		return nil
	},
}

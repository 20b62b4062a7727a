package main

import (
	"errors"
	"fmt"

	"looneca-storefront/internal/client"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the orders, subscriptions and webhook_events tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			db, err := client.InitDBClient(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if err := client.Migrate(db); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
			return nil
		},
	}
}

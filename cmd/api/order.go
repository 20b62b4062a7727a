package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"looneca-storefront/internal/client"
	"looneca-storefront/internal/repository"
	"looneca-storefront/internal/service"

	"github.com/spf13/cobra"
)

func orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order [numero]",
		Short: "Print the stored snapshot of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			numero, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || numero <= 0 {
				return fmt.Errorf("invalid order number %q", args[0])
			}

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

			orderService := service.NewOrderService(repository.NewOrderRepository(db))
			snapshot, err := orderService.GetByNumber(cmd.Context(), numero)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		},
	}
}

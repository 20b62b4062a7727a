package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"looneca-storefront/internal/client"
	"looneca-storefront/internal/logger"

	"github.com/spf13/cobra"
)

func plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List the subscription plans of the Pagar.me account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Pagarme.Configured() {
				return errors.New("PAGARME_SECRET_KEY is required")
			}

			log := logger.New(os.Stderr, cfg.Log)
			pagarmeClient := client.NewPagarmeClient(&cfg.Pagarme, log)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Pagarme.Timeout)
			defer cancel()

			plans, err := pagarmeClient.ListPlans(ctx)
			if err != nil {
				return fmt.Errorf("list plans: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tINTERVAL\tTRIAL DAYS\tCONFIGURED")
			for _, p := range plans {
				configured := ""
				if p.ID == cfg.Subscription.PlanID {
					configured = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d %s\t%d\t%s\n",
					p.ID, p.Name, p.Status, p.IntervalCount, p.Interval, p.TrialPeriodDays, configured)
			}
			return w.Flush()
		},
	}
}

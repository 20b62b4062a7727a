package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"looneca-storefront/internal/client"
	"looneca-storefront/internal/logger"
	"looneca-storefront/internal/pricing"
	"looneca-storefront/internal/repository"
	"looneca-storefront/internal/server"
	"looneca-storefront/internal/service"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.New(os.Stdout, cfg.Log).With("env", cfg.Environment.Name)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return err
	}

	rates, err := pricing.NewRateTable(cfg.Pricing)
	if err != nil {
		return fmt.Errorf("pricing: %w", err)
	}
	policy, err := service.StartPolicyFromConfig(cfg.Subscription)
	if err != nil {
		return fmt.Errorf("subscription: %w", err)
	}

	db, err := client.InitDBClient(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := client.Migrate(db); err != nil {
		return err
	}

	pagarmeClient := client.NewPagarmeClient(&cfg.Pagarme, log)
	log.Info("pagarme client ready",
		"base_url", cfg.Pagarme.BaseApiURL,
		"secret", logger.MaskSecret(cfg.Pagarme.SecretKey),
		"webhook_signature", cfg.Pagarme.WebhookSecret != "")

	var shopifyClient client.ShopifyClient
	if cfg.Shopify.Enabled() {
		shopifyClient = client.NewShopifyClient(&cfg.Shopify, log)
	}

	orderRepo := repository.NewOrderRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	subscriptionService := service.NewSubscriptionService(pagarmeClient, subscriptionRepo, cfg.Subscription, policy, log)

	checkCtx, cancel := context.WithTimeout(context.Background(), cfg.Pagarme.Timeout)
	plan, err := subscriptionService.CheckPlan(checkCtx)
	cancel()
	switch {
	case errors.Is(err, service.ErrConfiguration):
		log.Error("subscription plan check failed", "plan_id", cfg.Subscription.PlanID, "error", err)
		return err
	case err != nil:
		log.Warn("subscription plan not verified", "plan_id", cfg.Subscription.PlanID, "error", err)
	default:
		log.Info("subscription plan verified",
			"plan_id", plan.ID,
			"trial_period_days", plan.TrialPeriodDays,
			"start_policy", policy.String())
	}

	exportService := service.NewExportService(shopifyClient, orderRepo, log)
	paymentService := service.NewPaymentService(cfg.Pagarme, rates, pagarmeClient, orderRepo, subscriptionService, exportService, log)
	webhookService := service.NewWebhookService(cfg.Pagarme, pagarmeClient, orderRepo, webhookEventRepo, subscriptionRepo, subscriptionService, log)
	orderService := service.NewOrderService(orderRepo)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	srv := server.NewServer(cfg, paymentService, webhookService, orderService, log)

	log.Info("starting HTTP server", "addr", serverAddr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		log.Error("HTTP server error", "error", err)
		return err
	case sig := <-sigChan:
		log.Info("signal received, starting graceful shutdown", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
		return err
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	DatabaseURL string `env:"DATABASE_URL"`

	Pagarme      Pagarme      `envPrefix:"PAGARME_"`
	Subscription Subscription `envPrefix:"SUBSCRIPTION_"`
	Pricing      Pricing      `envPrefix:"PRICING_"`
	Shopify      Shopify      `envPrefix:"SHOPIFY_"`
	Auth         Auth         `envPrefix:"AUTH_"`
}

type Pagarme struct {
	BaseApiURL              string        `env:"BASE_API_URL" envDefault:"https://api.pagar.me/core/v5"`
	SecretKey               string        `env:"SECRET_KEY"`
	AccountID               string        `env:"ACCOUNT_ID"`
	WebhookSecret           string        `env:"WEBHOOK_SECRET"`
	WebhookRequireSignature bool          `env:"WEBHOOK_REQUIRE_SIGNATURE" envDefault:"false"`
	Timeout                 time.Duration `env:"TIMEOUT" envDefault:"30s"`
	PixExpiresIn            int           `env:"PIX_EXPIRES_IN" envDefault:"3600"`
	StatementDescriptor     string        `env:"STATEMENT_DESCRIPTOR" envDefault:"LOONECA"`
}

// Configured reports whether the keys needed to charge a customer are present.
func (p Pagarme) Configured() bool {
	return p.SecretKey != "" && p.BaseApiURL != ""
}

type Subscription struct {
	PlanID          string `env:"PLAN_ID"`
	StartMode       string `env:"START_MODE" envDefault:"plan_trial"` // plan_trial | explicit
	StartOffsetDays int    `env:"START_OFFSET_DAYS"`
	ClaimTTLSeconds int    `env:"CLAIM_TTL_SECONDS" envDefault:"600"`
}

type Pricing struct {
	Profile          string   `env:"PROFILE"` // zero_single | flat_fee
	InstallmentRates []string `env:"INSTALLMENT_RATES" envSeparator:","`
	PixRate          string   `env:"PIX_RATE"`
}

type Shopify struct {
	StoreURL    string `env:"STORE_URL"`
	AccessToken string `env:"ACCESS_TOKEN"`
	APIVersion  string `env:"API_VERSION" envDefault:"2024-01"`
}

func (s Shopify) Enabled() bool {
	return s.StoreURL != "" && s.AccessToken != ""
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host            string  `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port            string  `env:"HTTP_PORT" envDefault:"8080"`
	CheckoutRateRPS float64 `env:"RATE_LIMIT_CHECKOUT_RPS" envDefault:"5"`
}

const (
	StartModePlanTrial = "plan_trial"
	StartModeExplicit  = "explicit"
)

// Validate checks the settings the server cannot run without. Messages name the
// variable and are meant for the operator log only.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Pagarme.SecretKey == "" {
		errs = append(errs, errors.New("PAGARME_SECRET_KEY is required"))
	}
	if c.Pagarme.PixExpiresIn <= 0 {
		errs = append(errs, errors.New("PAGARME_PIX_EXPIRES_IN must be positive"))
	}
	if c.Pricing.Profile == "" {
		errs = append(errs, errors.New("PRICING_PROFILE is required: choose zero_single or flat_fee"))
	}
	if c.Subscription.PlanID == "" {
		errs = append(errs, errors.New("SUBSCRIPTION_PLAN_ID is required"))
	}

	switch c.Subscription.StartMode {
	case StartModePlanTrial:
		if c.Subscription.StartOffsetDays != 0 {
			errs = append(errs, errors.New(
				"SUBSCRIPTION_START_OFFSET_DAYS must be unset with SUBSCRIPTION_START_MODE=plan_trial: the plan trial already delays the first charge"))
		}
	case StartModeExplicit:
		if c.Subscription.StartOffsetDays < 0 {
			errs = append(errs, errors.New("SUBSCRIPTION_START_OFFSET_DAYS must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("SUBSCRIPTION_START_MODE %q is invalid", c.Subscription.StartMode))
	}

	if (c.Shopify.StoreURL == "") != (c.Shopify.AccessToken == "") {
		errs = append(errs, errors.New("SHOPIFY_STORE_URL and SHOPIFY_ACCESS_TOKEN must be set together"))
	}

	return errors.Join(errs...)
}

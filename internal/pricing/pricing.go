// Package pricing owns every money computation of the checkout: conversion of
// whole-currency amounts to cents, the installment interest table and the PIX
// surcharge. All rounding goes through roundHalfEven.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"looneca-storefront/internal/config"
	"looneca-storefront/internal/model"

	"github.com/shopspring/decimal"
)

const MaxInstallments = 12

const (
	// MaxAmountCents bounds every amount a checkout may carry (R$ 10.000.000,00).
	MaxAmountCents int64 = 1_000_000_000
	MaxQuantity    int64 = 1000
)

const (
	ProfileZeroSingle = "zero_single"
	ProfileFlatFee    = "flat_fee"
)

var (
	ErrUnknownProfile      = errors.New("unknown pricing profile")
	ErrInvalidInstallments = errors.New("installments must be between 1 and 12")
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrNegativeAmount      = errors.New("amount must not be negative")
	ErrAmountTooLarge      = errors.New("amount exceeds the checkout limit")
	ErrQuantityTooLarge    = errors.New("quantity exceeds the checkout limit")
)

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.NewFromInt(MaxAmountCents)
)

// installment tiers 2..12, in percent, shared by both profiles.
var sharedTiers = [MaxInstallments - 1]string{
	"7.29", "8.19", "9.09", "9.99", "10.89", "11.79",
	"12.69", "13.59", "14.49", "15.39", "16.29",
}

// RateTable holds markups as fractions (0.0559 for 5.59%).
type RateTable struct {
	Installments [MaxInstallments]decimal.Decimal
	Pix          decimal.Decimal
}

// Preset returns one of the two rate tables found in production. They disagree on
// the single-installment rate and on the PIX surcharge, so the profile has to be
// chosen explicitly.
func Preset(profile string) (RateTable, error) {
	var single, pix string
	switch profile {
	case ProfileZeroSingle:
		single, pix = "0", "0"
	case ProfileFlatFee:
		single, pix = "5.59", "1.19"
	default:
		return RateTable{}, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}

	var t RateTable
	t.Installments[0] = percent(single)
	for i, p := range sharedTiers {
		t.Installments[i+1] = percent(p)
	}
	t.Pix = percent(pix)
	return t, nil
}

// NewRateTable resolves the configured preset and applies overrides.
func NewRateTable(cfg config.Pricing) (RateTable, error) {
	t, err := Preset(cfg.Profile)
	if err != nil {
		return RateTable{}, err
	}

	if len(cfg.InstallmentRates) > 0 {
		if len(cfg.InstallmentRates) != MaxInstallments {
			return RateTable{}, fmt.Errorf("PRICING_INSTALLMENT_RATES needs %d values, got %d", MaxInstallments, len(cfg.InstallmentRates))
		}
		for i, raw := range cfg.InstallmentRates {
			d, err := parsePercent(raw)
			if err != nil {
				return RateTable{}, fmt.Errorf("installment rate %d: %w", i+1, err)
			}
			t.Installments[i] = d
		}
	}

	if cfg.PixRate != "" {
		d, err := parsePercent(cfg.PixRate)
		if err != nil {
			return RateTable{}, fmt.Errorf("pix rate: %w", err)
		}
		t.Pix = d
	}

	return t, nil
}

// Rate is a pure function of payment method and installment count.
func (t RateTable) Rate(method model.PaymentMethod, installments int) (decimal.Decimal, error) {
	switch method {
	case model.PaymentMethodPix:
		return t.Pix, nil
	case model.PaymentMethodCreditCard:
		if installments < 1 || installments > MaxInstallments {
			return decimal.Zero, ErrInvalidInstallments
		}
		return t.Installments[installments-1], nil
	default:
		return decimal.Zero, ErrInvalidMethod
	}
}

// ToCents converts a whole-currency amount (49.90) to integer cents (4990).
func ToCents(amount decimal.Decimal) int64 {
	return roundHalfEven(amount.Mul(hundred))
}

// CheckedCents is ToCents for untrusted input: amounts above MaxAmountCents
// are rejected before the int64 conversion.
func CheckedCents(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	cents := amount.Mul(hundred).RoundBank(0)
	if cents.GreaterThan(maxAmount) {
		return 0, ErrAmountTooLarge
	}
	return cents.IntPart(), nil
}

// FromCents is the inverse of ToCents for display purposes.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ApplyRate returns round(base * (1 + rate)).
func ApplyRate(baseCents int64, rate decimal.Decimal) int64 {
	return roundHalfEven(applyRate(baseCents, rate))
}

func applyRate(baseCents int64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(baseCents).Mul(decimal.NewFromInt(1).Add(rate))
}

func roundHalfEven(d decimal.Decimal) int64 {
	return d.RoundBank(0).IntPart()
}

type Line struct {
	UnitCents int64
	Quantity  int64
}

type Quote struct {
	ItemsCents       int64
	ShippingCents    int64
	BaseCents        int64
	SurchargeCents   int64
	FinalCents       int64
	Installments     int
	InstallmentCents int64
	Rate             decimal.Decimal
}

// Quote prices a cart. BaseCents is exactly sum(unit*qty) + shipping and
// FinalCents - BaseCents is the markup sent as its own line item. Every partial
// sum stays within MaxAmountCents, so none of the int64 arithmetic can wrap.
func (t RateTable) Quote(lines []Line, shippingCents int64, method model.PaymentMethod, installments int) (Quote, error) {
	if shippingCents < 0 {
		return Quote{}, ErrNegativeAmount
	}
	if shippingCents > MaxAmountCents {
		return Quote{}, ErrAmountTooLarge
	}
	if method == model.PaymentMethodPix {
		installments = 1
	}

	rate, err := t.Rate(method, installments)
	if err != nil {
		return Quote{}, err
	}

	var items int64
	for _, l := range lines {
		if l.UnitCents < 0 || l.Quantity < 0 {
			return Quote{}, ErrNegativeAmount
		}
		if l.Quantity > MaxQuantity {
			return Quote{}, ErrQuantityTooLarge
		}
		if l.UnitCents > MaxAmountCents {
			return Quote{}, ErrAmountTooLarge
		}
		items += l.UnitCents * l.Quantity
		if items > MaxAmountCents {
			return Quote{}, ErrAmountTooLarge
		}
	}

	base := items + shippingCents
	if base > MaxAmountCents {
		return Quote{}, ErrAmountTooLarge
	}
	finalDec := applyRate(base, rate).RoundBank(0)
	if finalDec.GreaterThan(maxAmount) {
		return Quote{}, ErrAmountTooLarge
	}
	final := finalDec.IntPart()

	return Quote{
		ItemsCents:       items,
		ShippingCents:    shippingCents,
		BaseCents:        base,
		SurchargeCents:   final - base,
		FinalCents:       final,
		Installments:     installments,
		InstallmentCents: roundHalfEven(decimal.NewFromInt(final).Div(decimal.NewFromInt(int64(installments)))),
		Rate:             rate,
	}, nil
}

func percent(p string) decimal.Decimal {
	return decimal.RequireFromString(p).Div(hundred)
}

func parsePercent(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%")))
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d.Div(hundred), nil
}

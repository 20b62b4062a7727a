package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnexpectedShape is returned when a gateway response parses as JSON but is
// missing fields the caller depends on.
var ErrUnexpectedShape = errors.New("unexpected gateway response shape")

type PagarmePhone struct {
	CountryCode string `json:"country_code"`
	AreaCode    string `json:"area_code"`
	Number      string `json:"number"`
}

type PagarmePhones struct {
	MobilePhone *PagarmePhone `json:"mobile_phone,omitempty"`
}

type PagarmeAddress struct {
	Line1   string `json:"line_1"`
	Line2   string `json:"line_2,omitempty"`
	ZipCode string `json:"zip_code"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type PagarmeCustomer struct {
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Document     string          `json:"document,omitempty"`
	DocumentType string          `json:"document_type,omitempty"`
	Type         string          `json:"type,omitempty"`
	Phones       *PagarmePhones  `json:"phones,omitempty"`
	Address      *PagarmeAddress `json:"address,omitempty"`
}

func (c *PagarmeCustomer) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: customer without id", ErrUnexpectedShape)
	}
	return nil
}

type CreateCardRequest struct {
	Number         string          `json:"number"`
	HolderName     string          `json:"holder_name"`
	HolderDocument string          `json:"holder_document,omitempty"`
	ExpMonth       int             `json:"exp_month"`
	ExpYear        int             `json:"exp_year"`
	CVV            string          `json:"cvv"`
	BillingAddress *PagarmeAddress `json:"billing_address,omitempty"`
}

type PagarmeCard struct {
	ID             string `json:"id"`
	FirstSixDigits string `json:"first_six_digits,omitempty"`
	LastFourDigits string `json:"last_four_digits,omitempty"`
	Brand          string `json:"brand,omitempty"`
	Status         string `json:"status,omitempty"`
}

func (c *PagarmeCard) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: card without id", ErrUnexpectedShape)
	}
	return nil
}

type PagarmeOrderItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Quantity    int64  `json:"quantity"`
}

type PagarmeShipping struct {
	Amount         int64          `json:"amount"`
	Description    string         `json:"description"`
	RecipientName  string         `json:"recipient_name,omitempty"`
	RecipientPhone string         `json:"recipient_phone,omitempty"`
	Address        PagarmeAddress `json:"address"`
}

type PagarmeCreditCardPayment struct {
	CardID              string `json:"card_id"`
	Installments        int    `json:"installments"`
	StatementDescriptor string `json:"statement_descriptor,omitempty"`
	Operation           string `json:"operation_type,omitempty"`
}

type PagarmePixPayment struct {
	ExpiresIn int `json:"expires_in"`
}

type PagarmePayment struct {
	PaymentMethod PaymentMethod             `json:"payment_method"`
	CreditCard    *PagarmeCreditCardPayment `json:"credit_card,omitempty"`
	Pix           *PagarmePixPayment        `json:"pix,omitempty"`
}

type CreateOrderRequest struct {
	Code       string             `json:"code,omitempty"`
	Items      []PagarmeOrderItem `json:"items"`
	Customer   *PagarmeCustomer   `json:"customer,omitempty"`
	CustomerID string             `json:"customer_id,omitempty"`
	Shipping   *PagarmeShipping   `json:"shipping,omitempty"`
	Payments   []PagarmePayment   `json:"payments"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
}

// Total is what the gateway will charge: item lines plus shipping.
func (r *CreateOrderRequest) Total() int64 {
	var total int64
	for _, it := range r.Items {
		total += it.Amount * it.Quantity
	}
	if r.Shipping != nil {
		total += r.Shipping.Amount
	}
	return total
}

type PagarmeTransaction struct {
	ID              string       `json:"id"`
	Status          string       `json:"status"`
	TransactionType string       `json:"transaction_type"`
	Success         *bool        `json:"success,omitempty"`
	QrCode          string       `json:"qr_code,omitempty"`
	QrCodeURL       string       `json:"qr_code_url,omitempty"`
	ExpiresAt       *time.Time   `json:"expires_at,omitempty"`
	Card            *PagarmeCard `json:"card,omitempty"`
	AcquirerMessage string       `json:"acquirer_message,omitempty"`
}

type PagarmeCharge struct {
	ID              string              `json:"id"`
	Code            string              `json:"code,omitempty"`
	Status          string              `json:"status"`
	Amount          int64               `json:"amount"`
	PaymentMethod   PaymentMethod       `json:"payment_method"`
	LastTransaction *PagarmeTransaction `json:"last_transaction,omitempty"`
	Order           *PagarmeOrderRef    `json:"order,omitempty"`
}

type PagarmeOrderRef struct {
	ID   string `json:"id"`
	Code string `json:"code,omitempty"`
}

type PagarmeOrder struct {
	ID       string           `json:"id"`
	Code     string           `json:"code,omitempty"`
	Status   string           `json:"status"`
	Amount   int64            `json:"amount"`
	Customer *PagarmeCustomer `json:"customer,omitempty"`
	Charges  []PagarmeCharge  `json:"charges"`
	Metadata Metadata         `json:"metadata,omitempty"`
}

func (o *PagarmeOrder) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: order without id", ErrUnexpectedShape)
	}
	if o.Status == "" {
		return fmt.Errorf("%w: order %s without status", ErrUnexpectedShape, o.ID)
	}
	for i, ch := range o.Charges {
		if ch.ID == "" || ch.Status == "" {
			return fmt.Errorf("%w: order %s charge %d without id or status", ErrUnexpectedShape, o.ID, i)
		}
	}
	return nil
}

func (o *PagarmeOrder) FirstCharge() *PagarmeCharge {
	if len(o.Charges) == 0 {
		return nil
	}
	return &o.Charges[0]
}

func (o *PagarmeOrder) CustomerID() string {
	if o.Customer == nil {
		return ""
	}
	return o.Customer.ID
}

// CardID is read from the first charge's last transaction.
func (o *PagarmeOrder) CardID() string {
	ch := o.FirstCharge()
	if ch == nil || ch.LastTransaction == nil || ch.LastTransaction.Card == nil {
		return ""
	}
	return ch.LastTransaction.Card.ID
}

// ValidatePix checks that the first charge carries the QR payload the buyer
// pays with.
func (o *PagarmeOrder) ValidatePix() error {
	ch := o.FirstCharge()
	if ch == nil || ch.LastTransaction == nil {
		return fmt.Errorf("%w: pix order %s without transaction", ErrUnexpectedShape, o.ID)
	}
	if ch.LastTransaction.QrCode == "" || ch.LastTransaction.QrCodeURL == "" {
		return fmt.Errorf("%w: pix order %s without qr code", ErrUnexpectedShape, o.ID)
	}
	return nil
}

// ChargeStatus prefers the first charge status; the order status is the fallback.
func (o *PagarmeOrder) ChargeStatus() string {
	if ch := o.FirstCharge(); ch != nil {
		return ch.Status
	}
	return o.Status
}

// Metadata tolerates both string and native JSON values.
type Metadata map[string]any

func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func (m Metadata) Flag(key string) bool {
	return strings.EqualFold(m.String(key), "true")
}

type PagarmePlanRef struct {
	ID string `json:"id"`
}

type CreateSubscriptionRequest struct {
	PlanID        string            `json:"plan_id"`
	CustomerID    string            `json:"customer_id"`
	CardID        string            `json:"card_id"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	StartAt       *time.Time        `json:"start_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type PagarmeSubscription struct {
	ID       string           `json:"id"`
	Status   string           `json:"status"`
	StartAt  *time.Time       `json:"start_at,omitempty"`
	Plan     *PagarmePlanRef  `json:"plan,omitempty"`
	Customer *PagarmeCustomer `json:"customer,omitempty"`
	Card     *PagarmeCard     `json:"card,omitempty"`
}

func (s *PagarmeSubscription) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: subscription without id", ErrUnexpectedShape)
	}
	return nil
}

type PagarmePlan struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	Interval        string `json:"interval"`
	IntervalCount   int    `json:"interval_count"`
	TrialPeriodDays int    `json:"trial_period_days"`
}

func (p *PagarmePlan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: plan without id", ErrUnexpectedShape)
	}
	return nil
}

type PagarmeList[T any] struct {
	Data []T `json:"data"`
}

// PagarmeWebhook is the envelope of every callback.
type PagarmeWebhook struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt string          `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// PagarmeWebhookData covers the fields read from order, charge and
// subscription events.
type PagarmeWebhookData struct {
	ID       string           `json:"id"`
	Code     string           `json:"code,omitempty"`
	Status   string           `json:"status"`
	Customer *PagarmeCustomer `json:"customer,omitempty"`
	Charges  []PagarmeCharge  `json:"charges,omitempty"`
	Metadata Metadata         `json:"metadata,omitempty"`
	Order    *PagarmeOrderRef `json:"order,omitempty"`
}

package dto

import (
	"time"

	"looneca-storefront/internal/model"

	"github.com/shopspring/decimal"
)

// Amounts at this boundary are whole reais; pricing converts them to cents.

type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document"` // CPF, punctuation allowed
	Phone    string `json:"phone"`
}

type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zipCode"`
}

type Shipping struct {
	Address
	Value  decimal.Decimal `json:"value"`
	Method string          `json:"method,omitempty"`
}

type Pet struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type Item struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Pet      *Pet            `json:"pet,omitempty"`
}

type Card struct {
	Number         string   `json:"number"`
	HolderName     string   `json:"holderName"`
	HolderDocument string   `json:"holderDocument,omitempty"`
	ExpMonth       int      `json:"expMonth"`
	ExpYear        int      `json:"expYear"`
	CVV            string   `json:"cvv"`
	BillingAddress *Address `json:"billingAddress,omitempty"`
}

type PaymentRequest struct {
	Amount            decimal.Decimal     `json:"amount"`
	PaymentMethod     model.PaymentMethod `json:"paymentMethod"`
	Installments      int                 `json:"installments,omitempty"`
	Customer          Customer            `json:"customer"`
	Shipping          Shipping            `json:"shipping"`
	Items             []Item              `json:"items"`
	Card              *Card               `json:"card,omitempty"`
	RecurringProducts map[string]bool     `json:"recurringProducts,omitempty"`

	// IdempotencyKey comes from the Idempotency-Key request header.
	IdempotencyKey string `json:"-"`
}

// AnyRecurring reports whether the customer opted into at least one recurring product.
func (r *PaymentRequest) AnyRecurring() bool {
	for _, v := range r.RecurringProducts {
		if v {
			return true
		}
	}
	return false
}

type PaymentResponse struct {
	Success           bool             `json:"success"`
	OrderID           string           `json:"orderId"`
	OrderNumber       int64            `json:"orderNumber"`
	Status            string           `json:"status"`
	FinalAmount       decimal.Decimal  `json:"finalAmount"`
	PixCode           string           `json:"pixCode,omitempty"`
	PixQrCodeURL      string           `json:"pixQrCodeUrl,omitempty"`
	PixExpiresAt      *time.Time       `json:"pixExpiresAt,omitempty"`
	Installments      int              `json:"installments,omitempty"`
	InstallmentAmount *decimal.Decimal `json:"installmentAmount,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type OrderItem struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int64           `json:"quantity"`
	Pet       *Pet            `json:"pet,omitempty"`
}

type OrderSnapshot struct {
	PedidoNumero     int64               `json:"pedidoNumero"`
	StatusPagamento  string              `json:"statusPagamento"`
	PaymentMethod    model.PaymentMethod `json:"paymentMethod"`
	Installments     int                 `json:"installments"`
	Customer         Customer            `json:"customer"`
	ShippingAddress  Address             `json:"shippingAddress"`
	Items            []OrderItem         `json:"items"`
	Subtotal         decimal.Decimal     `json:"subtotal"`
	ShippingValue    decimal.Decimal     `json:"shippingValue"`
	ShippingInferred bool                `json:"shippingInferred"`
	TotalPaid        decimal.Decimal     `json:"totalPaid"`
	PagarmeOrderID   string              `json:"pagarmeOrderId"`
	SubscriptionID   string              `json:"subscriptionId,omitempty"`
	ShopifyOrderID   string              `json:"shopifyOrderId,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}

package model

import (
	"time"

	"gorm.io/datatypes"
)

// Order is the persisted checkout snapshot. PedidoNumero is the number shown to
// the customer; PagarmeOrderID links it to the gateway.
type Order struct {
	ID           uint  `gorm:"primaryKey"`
	PedidoNumero int64 `gorm:"column:pedido_numero;uniqueIndex;not null"`

	CustomerName     string `gorm:"size:128;not null"`
	CustomerEmail    string `gorm:"size:255;index;not null"`
	CustomerDocument string `gorm:"size:14"`
	CustomerPhone    string `gorm:"size:20"`

	ShippingStreet       string `gorm:"size:255"`
	ShippingNumber       string `gorm:"size:32"`
	ShippingComplement   string `gorm:"size:128"`
	ShippingNeighborhood string `gorm:"size:128"`
	ShippingCity         string `gorm:"size:128"`
	ShippingState        string `gorm:"size:2"`
	ShippingZipCode      string `gorm:"size:9"`
	ShippingValue        *int64 // cents; nil on rows written before it was stored

	Items                datatypes.JSONType[[]OrderItem]
	RecurringProducts    datatypes.JSONType[map[string]bool]
	RequiresSubscription bool `gorm:"not null;default:false"`

	PaymentMethod PaymentMethod `gorm:"size:16;not null"`
	Installments  int           `gorm:"not null;default:1"`
	TotalPaid     int64         `gorm:"not null"` // cents, markup included

	PagarmeCustomerID string  `gorm:"size:64;index"`
	PagarmeCardID     string  `gorm:"size:64"`
	PagarmeOrderID    string  `gorm:"size:64;uniqueIndex;not null"`
	PagarmeChargeID   string  `gorm:"size:64"`
	SubscriptionID    *string `gorm:"size:64"`

	StatusPagamento string `gorm:"column:status_pagamento;size:32;index;not null"`
	ShopifyOrderID  string `gorm:"size:64"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	UnitPrice int64       `json:"unit_price"` // cents
	Quantity  int64       `json:"quantity"`
	Pet       *PetDetails `json:"pet,omitempty"`
}

// PetDetails personalizes a mug.
type PetDetails struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

const (
	SubscriptionStatusCreating = "creating"
	SubscriptionStatusFailed   = "failed"
)

const (
	SourceCheckout = "checkout"
	SourceWebhook  = "webhook"
)

// Subscription is the transactions log of recurring charges. The unique index
// on OrderID is what guarantees at most one subscription per gateway order.
type Subscription struct {
	ID             uint    `gorm:"primaryKey"`
	OrderID        string  `gorm:"size:64;uniqueIndex;not null"`
	SubscriptionID *string `gorm:"size:64;uniqueIndex"`
	PlanID         string  `gorm:"size:64"`
	CustomerID     string  `gorm:"size:64;index"`
	CardID         string  `gorm:"size:64"`
	Status         string  `gorm:"size:32;index;not null"`
	Source         string  `gorm:"size:16"`
	LastError      string  `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebhookEvent is an append-only log of every verified callback.
type WebhookEvent struct {
	ID              uint   `gorm:"primaryKey"`
	EventID         string `gorm:"size:128;index"`
	EventType       string `gorm:"size:64;index"`
	ObjectID        string `gorm:"size:64;index"`
	Payload         string `gorm:"type:text;not null"`
	Signature       string `gorm:"size:256"`
	Processed       bool   `gorm:"index;not null;default:false"`
	ProcessingError string `gorm:"type:text"`
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"looneca-storefront/internal/client"
	"looneca-storefront/internal/model"
	"looneca-storefront/internal/pricing"
	"looneca-storefront/internal/repository"
)

// ExportService pushes persisted orders to the commerce platform.
type ExportService interface {
	ExportOrder(ctx context.Context, order *model.Order) error
}

type exportServiceImpl struct {
	shopify   client.ShopifyClient
	orderRepo repository.OrderRepository
	log       *slog.Logger
}

// NewExportService returns a no-op exporter when shopify is nil.
func NewExportService(shopify client.ShopifyClient, orderRepo repository.OrderRepository, log *slog.Logger) ExportService {
	return &exportServiceImpl{
		shopify:   shopify,
		orderRepo: orderRepo,
		log:       log.With("component", "export_service"),
	}
}

func (s *exportServiceImpl) ExportOrder(ctx context.Context, order *model.Order) error {
	if s.shopify == nil {
		return nil
	}
	if order.ShopifyOrderID != "" {
		return nil
	}

	customer, err := s.shopify.FindCustomerByEmail(ctx, order.CustomerEmail)
	if err != nil {
		return err
	}
	if customer == nil {
		first, last := splitName(order.CustomerName)
		customer, err = s.shopify.CreateCustomer(ctx, &client.ShopifyCustomer{
			FirstName: first,
			LastName:  last,
			Email:     order.CustomerEmail,
			Phone:     e164(order.CustomerPhone),
			Addresses: []client.ShopifyAddress{shopifyAddress(order)},
		})
		if err != nil {
			return err
		}
	}

	shopifyOrder, err := s.shopify.CreateOrder(ctx, buildShopifyOrder(order, customer.ID))
	if err != nil {
		return err
	}

	shopifyID := strconv.FormatInt(shopifyOrder.ID, 10)
	if err := s.orderRepo.SetShopifyOrderID(ctx, order.ID, shopifyID); err != nil {
		return fmt.Errorf("store shopify order id: %w", err)
	}
	order.ShopifyOrderID = shopifyID

	s.log.InfoContext(ctx, "order exported",
		"pedido_numero", order.PedidoNumero,
		"shopify_order_id", shopifyID)
	return nil
}

func buildShopifyOrder(order *model.Order, customerID int64) *client.ShopifyOrder {
	items := order.Items.Data()
	lines := make([]client.ShopifyLineItem, 0, len(items)+1)
	var itemsCents int64
	var notes []string
	for _, it := range items {
		itemsCents += it.UnitPrice * it.Quantity
		lines = append(lines, client.ShopifyLineItem{
			Title:    it.Name,
			SKU:      it.Code,
			Price:    money(it.UnitPrice),
			Quantity: it.Quantity,
		})
		if it.Pet != nil && it.Pet.Name != "" {
			notes = append(notes, fmt.Sprintf("%s: %s", it.Name, it.Pet.Name))
		}
	}

	var shippingCents int64
	if order.ShippingValue != nil {
		shippingCents = *order.ShippingValue
	}
	if surcharge := order.TotalPaid - itemsCents - shippingCents; surcharge > 0 {
		lines = append(lines, client.ShopifyLineItem{
			Title:    surchargeTitle(order.PaymentMethod, order.Installments),
			Price:    money(surcharge),
			Quantity: 1,
		})
	}

	addr := shopifyAddress(order)
	out := &client.ShopifyOrder{
		Email:           order.CustomerEmail,
		Customer:        &client.ShopifyCustomerRef{ID: customerID},
		LineItems:       lines,
		ShippingAddress: &addr,
		FinancialStatus: financialStatus(order.StatusPagamento),
		Currency:        "BRL",
		Tags:            fmt.Sprintf("looneca, pedido-%d, %s", order.PedidoNumero, order.PaymentMethod),
		Note:            strings.Join(notes, "\n"),
	}
	if shippingCents > 0 {
		out.ShippingLines = []client.ShopifyShippingLine{{Title: "Frete", Price: money(shippingCents)}}
	}
	return out
}

func shopifyAddress(order *model.Order) client.ShopifyAddress {
	line1 := order.ShippingStreet
	if order.ShippingNumber != "" {
		line1 += ", " + order.ShippingNumber
	}
	line2 := strings.TrimSpace(strings.Join([]string{order.ShippingComplement, order.ShippingNeighborhood}, " "))

	return client.ShopifyAddress{
		Address1: line1,
		Address2: line2,
		City:     order.ShippingCity,
		Province: order.ShippingState,
		Zip:      order.ShippingZipCode,
		Country:  "BR",
		Name:     order.CustomerName,
		Phone:    e164(order.CustomerPhone),
	}
}

func financialStatus(status string) string {
	switch status {
	case model.StatusPaid:
		return "paid"
	case model.StatusAuthorized:
		return "authorized"
	default:
		return "pending"
	}
}

func money(cents int64) string {
	return pricing.FromCents(cents).StringFixed(2)
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func e164(phone string) string {
	digits := onlyDigits(phone)
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, "55") || len(digits) <= 11 {
		digits = "55" + digits
	}
	return "+" + digits
}

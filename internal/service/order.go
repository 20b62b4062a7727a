package service

import (
	"context"
	"errors"

	"looneca-storefront/internal/dto"
	"looneca-storefront/internal/model"
	"looneca-storefront/internal/pricing"
	"looneca-storefront/internal/repository"
)

type OrderService interface {
	GetByNumber(ctx context.Context, numero int64) (*dto.OrderSnapshot, error)
}

type orderServiceImpl struct {
	orderRepo repository.OrderRepository
}

func NewOrderService(orderRepo repository.OrderRepository) OrderService {
	return &orderServiceImpl{orderRepo: orderRepo}
}

func (s *orderServiceImpl) GetByNumber(ctx context.Context, numero int64) (*dto.OrderSnapshot, error) {
	order, err := s.orderRepo.FindByNumber(ctx, numero)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrNotFound, "order not found", err)
	}
	if err != nil {
		return nil, newError(ErrPersistence, "could not load order", err)
	}

	return Snapshot(order), nil
}

// Snapshot derives subtotal from the stored items. Rows without a stored
// shipping value get total - subtotal clamped at zero, which also absorbs any
// installment interest and is flagged as inferred.
func Snapshot(order *model.Order) *dto.OrderSnapshot {
	items := order.Items.Data()
	out := &dto.OrderSnapshot{
		PedidoNumero:    order.PedidoNumero,
		StatusPagamento: order.StatusPagamento,
		PaymentMethod:   order.PaymentMethod,
		Installments:    order.Installments,
		Customer: dto.Customer{
			Name:     order.CustomerName,
			Email:    order.CustomerEmail,
			Document: order.CustomerDocument,
			Phone:    order.CustomerPhone,
		},
		ShippingAddress: dto.Address{
			Street:       order.ShippingStreet,
			Number:       order.ShippingNumber,
			Complement:   order.ShippingComplement,
			Neighborhood: order.ShippingNeighborhood,
			City:         order.ShippingCity,
			State:        order.ShippingState,
			ZipCode:      order.ShippingZipCode,
		},
		Items:          make([]dto.OrderItem, len(items)),
		TotalPaid:      pricing.FromCents(order.TotalPaid),
		PagarmeOrderID: order.PagarmeOrderID,
		ShopifyOrderID: order.ShopifyOrderID,
		CreatedAt:      order.CreatedAt,
	}
	if order.SubscriptionID != nil {
		out.SubscriptionID = *order.SubscriptionID
	}

	var subtotal int64
	for i, it := range items {
		subtotal += it.UnitPrice * it.Quantity
		out.Items[i] = dto.OrderItem{
			Code:      it.Code,
			Name:      it.Name,
			UnitPrice: pricing.FromCents(it.UnitPrice),
			Quantity:  it.Quantity,
		}
		if it.Pet != nil {
			out.Items[i].Pet = &dto.Pet{
				Name:     it.Pet.Name,
				Type:     it.Pet.Type,
				PhotoURL: it.Pet.PhotoURL,
				Notes:    it.Pet.Notes,
			}
		}
	}
	out.Subtotal = pricing.FromCents(subtotal)

	if order.ShippingValue != nil {
		out.ShippingValue = pricing.FromCents(*order.ShippingValue)
	} else {
		out.ShippingValue = pricing.FromCents(max(order.TotalPaid-subtotal, 0))
		out.ShippingInferred = true
	}

	return out
}

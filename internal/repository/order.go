package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"looneca-storefront/internal/model"

	"gorm.io/gorm"
)

const (
	// FirstOrderNumber is assigned when the orders table is empty.
	FirstOrderNumber int64 = 1001

	maxCreateAttempts = 5
)

var ErrOrderNumberExhausted = errors.New("could not allocate order number")

type OrderRepository interface {
	NextOrderNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, order *model.Order) error
	FindByNumber(ctx context.Context, numero int64) (*model.Order, error)
	FindByPagarmeOrderID(ctx context.Context, pagarmeOrderID string) (*model.Order, error)
	UpdateStatusByPagarmeOrderID(ctx context.Context, pagarmeOrderID, status string) error
	SetShopifyOrderID(ctx context.Context, id uint, shopifyOrderID string) error
	AdoptSubscriptionID(ctx context.Context, order *model.Order) error
}

type orderRepoImpl struct {
	db *gorm.DB
	// allocate proposes the pedido_numero for the next insert attempt.
	allocate func(ctx context.Context) (int64, error)
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	r := &orderRepoImpl{
		db: db,
	}
	r.allocate = r.NextOrderNumber
	return r
}

func (r *orderRepoImpl) NextOrderNumber(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("MAX(pedido_numero)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}

	if !max.Valid || max.Int64 < FirstOrderNumber {
		return FirstOrderNumber, nil
	}
	return max.Int64 + 1, nil
}

// Create assigns the next pedido_numero and inserts the row. Two concurrent
// checkouts may read the same max; the unique index rejects the loser, which
// then retries with a fresh number. A second insert for a gateway order that is
// already stored loads the existing row into order instead of failing.
func (r *orderRepoImpl) Create(ctx context.Context, order *model.Order) error {
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		numero, err := r.allocate(ctx)
		if err != nil {
			return fmt.Errorf("next order number: %w", err)
		}
		order.ID = 0
		order.PedidoNumero = numero

		err = r.db.WithContext(ctx).Create(order).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}

		existing, findErr := r.FindByPagarmeOrderID(ctx, order.PagarmeOrderID)
		if findErr == nil {
			*order = *existing
			return nil
		}
		if !errors.Is(findErr, ErrNotFound) {
			return findErr
		}
	}

	return ErrOrderNumberExhausted
}

func (r *orderRepoImpl) FindByNumber(ctx context.Context, numero int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("pedido_numero = ?", numero).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByPagarmeOrderID(ctx context.Context, pagarmeOrderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("pagarme_order_id = ?", pagarmeOrderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) UpdateStatusByPagarmeOrderID(ctx context.Context, pagarmeOrderID, status string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("pagarme_order_id = ?", pagarmeOrderID).
		Update("status_pagamento", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *orderRepoImpl) SetShopifyOrderID(ctx context.Context, id uint, shopifyOrderID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Update("shopify_order_id", shopifyOrderID).Error
}

// AdoptSubscriptionID copies a subscription id recorded for the gateway order
// before this row existed. Complete mirrors onto orders only when the row is
// already there.
func (r *orderRepoImpl) AdoptSubscriptionID(ctx context.Context, order *model.Order) error {
	if order.SubscriptionID != nil || order.PagarmeOrderID == "" {
		return nil
	}

	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND subscription_id IS NOT NULL", order.PagarmeOrderID).
		Limit(1).
		Find(&subs).Error
	if err != nil {
		return fmt.Errorf("find subscription: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	subID := subs[0].SubscriptionID
	err = r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND subscription_id IS NULL", order.ID).
		Update("subscription_id", subID).Error
	if err != nil {
		return fmt.Errorf("mirror subscription id: %w", err)
	}
	order.SubscriptionID = subID
	return nil
}

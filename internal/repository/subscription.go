package repository

import (
	"context"
	"errors"
	"time"

	"looneca-storefront/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClaimOutcome int

const (
	// ClaimAcquired means the caller owns the order and must call the gateway.
	ClaimAcquired ClaimOutcome = iota
	// ClaimAlreadyExists means a subscription id is already recorded.
	ClaimAlreadyExists
	// ClaimInProgress means another caller holds a live claim.
	ClaimInProgress
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimAcquired:
		return "acquired"
	case ClaimAlreadyExists:
		return "already_exists"
	case ClaimInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

type SubscriptionRepository interface {
	Claim(ctx context.Context, claim *model.Subscription, ttl time.Duration) (ClaimOutcome, *model.Subscription, error)
	Complete(ctx context.Context, orderID string, sub *model.Subscription) error
	Fail(ctx context.Context, orderID string, cause string) error
	UpdateStatusBySubscriptionID(ctx context.Context, subscriptionID, status string) error
	GetByOrderID(ctx context.Context, orderID string) (*model.Subscription, error)
}

type subscriptionRepoImpl struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepoImpl{
		db:  db,
		now: time.Now,
	}
}

// Claim reserves the right to create the subscription of one gateway order.
// The insert relies on the unique order_id index; a failed row or a creating
// row older than ttl is taken over with a conditional update.
func (r *subscriptionRepoImpl) Claim(ctx context.Context, claim *model.Subscription, ttl time.Duration) (ClaimOutcome, *model.Subscription, error) {
	now := r.now()
	claim.Status = model.SubscriptionStatusCreating
	claim.SubscriptionID = nil
	claim.CreatedAt = now
	claim.UpdatedAt = now

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).
		Create(claim)
	if res.Error != nil {
		return 0, nil, res.Error
	}
	if res.RowsAffected == 1 {
		return ClaimAcquired, claim, nil
	}

	existing, err := r.GetByOrderID(ctx, claim.OrderID)
	if err != nil {
		return 0, nil, err
	}
	if existing.SubscriptionID != nil {
		return ClaimAlreadyExists, existing, nil
	}

	res = r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("order_id = ? AND subscription_id IS NULL", claim.OrderID).
		Where("status = ? OR (status = ? AND updated_at < ?)",
			model.SubscriptionStatusFailed,
			model.SubscriptionStatusCreating,
			now.Add(-ttl),
		).
		Updates(map[string]interface{}{
			"status":      model.SubscriptionStatusCreating,
			"plan_id":     claim.PlanID,
			"customer_id": claim.CustomerID,
			"card_id":     claim.CardID,
			"source":      claim.Source,
			"last_error":  "",
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return ClaimInProgress, existing, nil
	}

	taken, err := r.GetByOrderID(ctx, claim.OrderID)
	if err != nil {
		return 0, nil, err
	}
	return ClaimAcquired, taken, nil
}

// Complete records the gateway subscription on the claim row and mirrors its id
// onto the order.
func (r *subscriptionRepoImpl) Complete(ctx context.Context, orderID string, sub *model.Subscription) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Subscription{}).
			Where("order_id = ?", orderID).
			Updates(map[string]interface{}{
				"subscription_id": sub.SubscriptionID,
				"plan_id":         sub.PlanID,
				"customer_id":     sub.CustomerID,
				"card_id":         sub.CardID,
				"status":          sub.Status,
				"last_error":      "",
				"updated_at":      r.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		// The order row may not exist yet when the checkout is still persisting.
		return tx.Model(&model.Order{}).
			Where("pagarme_order_id = ?", orderID).
			Update("subscription_id", sub.SubscriptionID).Error
	})
}

func (r *subscriptionRepoImpl) Fail(ctx context.Context, orderID string, cause string) error {
	return r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("order_id = ? AND subscription_id IS NULL", orderID).
		Updates(map[string]interface{}{
			"status":     model.SubscriptionStatusFailed,
			"last_error": cause,
			"updated_at": r.now(),
		}).Error
}

func (r *subscriptionRepoImpl) UpdateStatusBySubscriptionID(ctx context.Context, subscriptionID, status string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *subscriptionRepoImpl) GetByOrderID(ctx context.Context, orderID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

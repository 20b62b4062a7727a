package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"looneca-storefront/internal/client"
	"looneca-storefront/internal/config"
	"looneca-storefront/internal/model"
	"looneca-storefront/internal/repository"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

const (
	EventOrderPaid             = "order.paid"
	EventOrderPaymentFailed    = "order.payment_failed"
	EventOrderCanceled         = "order.canceled"
	EventChargePaid            = "charge.paid"
	EventChargePaymentFailed   = "charge.payment_failed"
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionCanceled  = "subscription.canceled"
	EventSubscriptionSuspended = "subscription.suspended"
)

// WebhookResult describes what happened to one delivery. Processing errors are
// recorded here and on the event row; they never fail the delivery.
type WebhookResult struct {
	EventRowID    uint
	EventType     string
	ObjectID      string
	// Deliveries counts the stored rows sharing this event id, this one included.
	Deliveries    int64
	ProcessingErr error
}

type WebhookService interface {
	Handle(ctx context.Context, signature string, body []byte) (*WebhookResult, error)
}

type webhookServiceImpl struct {
	cfg           config.Pagarme
	gateway       client.PagarmeClient
	orderRepo     repository.OrderRepository
	eventRepo     repository.WebhookEventRepository
	subRepo       repository.SubscriptionRepository
	subscriptions SubscriptionService
	log           *slog.Logger
}

func NewWebhookService(
	cfg config.Pagarme,
	gateway client.PagarmeClient,
	orderRepo repository.OrderRepository,
	eventRepo repository.WebhookEventRepository,
	subRepo repository.SubscriptionRepository,
	subscriptions SubscriptionService,
	log *slog.Logger,
) WebhookService {
	return &webhookServiceImpl{
		cfg:           cfg,
		gateway:       gateway,
		orderRepo:     orderRepo,
		eventRepo:     eventRepo,
		subRepo:       subRepo,
		subscriptions: subscriptions,
		log:           log.With("component", "webhook_service"),
	}
}

// Handle verifies body exactly as received, records it, then dispatches. Only
// ErrInvalidSignature is returned as an error.
func (s *webhookServiceImpl) Handle(ctx context.Context, signature string, body []byte) (*WebhookResult, error) {
	if err := s.verify(ctx, signature, body); err != nil {
		return nil, err
	}

	var event model.PagarmeWebhook
	var data model.PagarmeWebhookData
	parseErr := json.Unmarshal(body, &event)
	if parseErr == nil && len(event.Data) > 0 {
		parseErr = json.Unmarshal(event.Data, &data)
	}

	row := &model.WebhookEvent{
		EventID:    event.ID,
		EventType:  event.Type,
		ObjectID:   data.ID,
		Payload:    string(body),
		Signature:  signature,
		ReceivedAt: time.Now(),
	}
	if err := s.eventRepo.Create(ctx, row); err != nil {
		s.log.ErrorContext(ctx, "persist webhook event", "event_type", event.Type, "error", err)
		row.ID = 0
	}

	result := &WebhookResult{EventRowID: row.ID, EventType: event.Type, ObjectID: data.ID}
	log := s.log.With("event_row_id", row.ID, "event_id", event.ID, "event_type", event.Type, "object_id", data.ID)

	if event.ID != "" && row.ID != 0 {
		n, err := s.eventRepo.CountByEventID(ctx, event.ID)
		if err != nil {
			log.WarnContext(ctx, "count webhook deliveries", "error", err)
		}
		result.Deliveries = n
		if n > 1 {
			log.InfoContext(ctx, "duplicate webhook delivery, reprocessing", "deliveries", n)
		}
	}

	if parseErr != nil {
		result.ProcessingErr = fmt.Errorf("decode webhook payload: %w", parseErr)
	} else {
		result.ProcessingErr = s.dispatch(ctx, event.Type, &data, log)
	}

	if result.ProcessingErr != nil {
		log.ErrorContext(ctx, "webhook processing failed", "error", result.ProcessingErr)
	} else {
		log.InfoContext(ctx, "webhook processed")
	}

	if row.ID != 0 {
		if err := s.eventRepo.MarkProcessed(ctx, row.ID, result.ProcessingErr); err != nil {
			log.ErrorContext(ctx, "mark webhook event processed", "error", err)
		}
	}

	return result, nil
}

func (s *webhookServiceImpl) verify(ctx context.Context, signature string, body []byte) error {
	switch {
	case s.cfg.WebhookSecret == "":
		s.log.WarnContext(ctx, "webhook signature verification disabled: PAGARME_WEBHOOK_SECRET not set")
		return nil
	case signature == "":
		if s.cfg.WebhookRequireSignature {
			s.log.WarnContext(ctx, "webhook rejected: signature header missing")
			return ErrInvalidSignature
		}
		s.log.WarnContext(ctx, "webhook accepted without signature header")
		return nil
	case !client.VerifySignature(s.cfg.WebhookSecret, body, signature):
		s.log.WarnContext(ctx, "webhook rejected: signature mismatch", "bytes", len(body))
		return ErrInvalidSignature
	default:
		return nil
	}
}

func (s *webhookServiceImpl) dispatch(ctx context.Context, eventType string, data *model.PagarmeWebhookData, log *slog.Logger) error {
	switch eventType {
	case EventOrderPaid, EventOrderPaymentFailed, EventOrderCanceled:
		return s.orderStatusChanged(ctx, data.ID, eventStatus(eventType, data.Status), log)

	case EventChargePaid, EventChargePaymentFailed:
		if data.Order == nil || data.Order.ID == "" {
			return errors.New("charge event without order id")
		}
		return s.orderStatusChanged(ctx, data.Order.ID, eventStatus(eventType, data.Status), log)

	case EventSubscriptionCreated, EventSubscriptionCanceled, EventSubscriptionSuspended:
		if data.ID == "" {
			return errors.New("subscription event without id")
		}
		err := s.subRepo.UpdateStatusBySubscriptionID(ctx, data.ID, eventStatus(eventType, data.Status))
		if errors.Is(err, repository.ErrNotFound) {
			log.InfoContext(ctx, "subscription not tracked locally")
			return nil
		}
		return err

	default:
		log.DebugContext(ctx, "webhook event ignored")
		return nil
	}
}

func (s *webhookServiceImpl) orderStatusChanged(ctx context.Context, orderID, status string, log *slog.Logger) error {
	if orderID == "" {
		return errors.New("order event without id")
	}

	var errs []error
	err := s.orderRepo.UpdateStatusByPagarmeOrderID(ctx, orderID, status)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// The checkout may still be persisting; the status is reapplied by
		// the gateway's next delivery.
		errs = append(errs, fmt.Errorf("order %s not persisted yet", orderID))
	case err != nil:
		errs = append(errs, fmt.Errorf("update order status: %w", err))
	}

	if status == model.StatusPaid || status == model.StatusAuthorized {
		if err := s.catchUpSubscription(ctx, orderID, log); err != nil {
			errs = append(errs, fmt.Errorf("catch-up subscription: %w", err))
		}
	}

	return errors.Join(errs...)
}

// catchUpSubscription creates the subscription the checkout could not. The
// webhook payload may be partial, so the full order is fetched first.
func (s *webhookServiceImpl) catchUpSubscription(ctx context.Context, orderID string, log *slog.Logger) error {
	order, err := s.gateway.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if !order.Metadata.Flag("requiresSubscription") && !order.Metadata.Flag("isRecurring") {
		return nil
	}

	customerID := order.CustomerID()
	cardID := order.CardID()
	if customerID == "" || cardID == "" {
		if local, err := s.orderRepo.FindByPagarmeOrderID(ctx, orderID); err == nil {
			if customerID == "" {
				customerID = local.PagarmeCustomerID
			}
			if cardID == "" {
				cardID = local.PagarmeCardID
			}
		}
	}
	if customerID == "" || cardID == "" {
		log.WarnContext(ctx, "recurring order without customer or card id, subscription skipped",
			"has_customer", customerID != "",
			"has_card", cardID != "")
		return nil
	}

	res, err := s.subscriptions.CreateForOrder(ctx, SubscriptionInput{
		OrderID:    orderID,
		CustomerID: customerID,
		CardID:     cardID,
		Source:     model.SourceWebhook,
	})
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "catch-up subscription", "outcome", res.Outcome, "subscription_id", res.SubscriptionID)
	return nil
}

// eventStatus prefers the status carried by the payload and falls back to the
// one implied by the event type.
func eventStatus(eventType, status string) string {
	if status != "" {
		return status
	}

	_, action, _ := strings.Cut(eventType, ".")
	switch action {
	case "paid":
		return model.StatusPaid
	case "payment_failed":
		return model.StatusFailed
	case "canceled":
		return model.StatusCanceled
	case "created":
		return "active"
	default:
		return action
	}
}

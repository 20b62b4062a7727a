package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"looneca-storefront/internal/client"
	"looneca-storefront/internal/config"
	"looneca-storefront/internal/model"
	"looneca-storefront/internal/repository"
)

const DefaultStartOffsetDays = 30

// StartPolicy decides when the first recurring charge happens. The plan's own
// trial period and an explicit start date both postpone that charge, so only
// one of them may be in effect: the zero value and PlanTrialStart send no
// start_at, ExplicitStart sends one.
type StartPolicy struct {
	explicit bool
	offset   time.Duration
}

func PlanTrialStart() StartPolicy {
	return StartPolicy{}
}

// ExplicitStart schedules the first charge offsetDays from now; zero means the
// 30 day default.
func ExplicitStart(offsetDays int) StartPolicy {
	if offsetDays <= 0 {
		offsetDays = DefaultStartOffsetDays
	}
	return StartPolicy{explicit: true, offset: time.Duration(offsetDays) * 24 * time.Hour}
}

func (p StartPolicy) Explicit() bool {
	return p.explicit
}

// StartAt returns nil when the plan trial governs the first charge.
func (p StartPolicy) StartAt(now time.Time) *time.Time {
	if !p.explicit {
		return nil
	}
	t := now.Add(p.offset).UTC()
	return &t
}

func (p StartPolicy) String() string {
	if !p.explicit {
		return config.StartModePlanTrial
	}
	return fmt.Sprintf("%s(+%dd)", config.StartModeExplicit, int(p.offset.Hours()/24))
}

func StartPolicyFromConfig(cfg config.Subscription) (StartPolicy, error) {
	switch cfg.StartMode {
	case config.StartModePlanTrial:
		if cfg.StartOffsetDays != 0 {
			return StartPolicy{}, newError(ErrConfiguration, msgConfiguration,
				errors.New("plan_trial start mode cannot be combined with a start offset"))
		}
		return PlanTrialStart(), nil
	case config.StartModeExplicit:
		return ExplicitStart(cfg.StartOffsetDays), nil
	default:
		return StartPolicy{}, newError(ErrConfiguration, msgConfiguration,
			fmt.Errorf("unknown subscription start mode %q", cfg.StartMode))
	}
}

type SubscriptionOutcome string

const (
	SubscriptionCreated       SubscriptionOutcome = "created"
	SubscriptionAlreadyExists SubscriptionOutcome = "already_exists"
	SubscriptionInProgress    SubscriptionOutcome = "in_progress"
)

type SubscriptionInput struct {
	OrderID    string
	CustomerID string
	CardID     string
	Source     string
}

type SubscriptionResult struct {
	Outcome        SubscriptionOutcome
	SubscriptionID string
	Status         string
}

type SubscriptionService interface {
	CreateForOrder(ctx context.Context, in SubscriptionInput) (*SubscriptionResult, error)
	CheckPlan(ctx context.Context) (*model.PagarmePlan, error)
}

type subscriptionServiceImpl struct {
	gateway  client.PagarmeClient
	subRepo  repository.SubscriptionRepository
	planID   string
	policy   StartPolicy
	claimTTL time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewSubscriptionService(
	gateway client.PagarmeClient,
	subRepo repository.SubscriptionRepository,
	cfg config.Subscription,
	policy StartPolicy,
	log *slog.Logger,
) SubscriptionService {
	ttl := time.Duration(cfg.ClaimTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &subscriptionServiceImpl{
		gateway:  gateway,
		subRepo:  subRepo,
		planID:   cfg.PlanID,
		policy:   policy,
		claimTTL: ttl,
		now:      time.Now,
		log:      log.With("component", "subscription_service"),
	}
}

// CreateForOrder creates at most one gateway subscription per gateway order,
// whichever of checkout and webhook gets there first.
func (s *subscriptionServiceImpl) CreateForOrder(ctx context.Context, in SubscriptionInput) (*SubscriptionResult, error) {
	if in.OrderID == "" || in.CustomerID == "" || in.CardID == "" {
		return nil, validationError("subscription needs order, customer and card ids")
	}
	if s.planID == "" {
		return nil, newError(ErrConfiguration, msgConfiguration, errors.New("subscription plan id not configured"))
	}

	log := s.log.With("order_id", in.OrderID, "source", in.Source)

	outcome, claim, err := s.subRepo.Claim(ctx, &model.Subscription{
		OrderID:    in.OrderID,
		PlanID:     s.planID,
		CustomerID: in.CustomerID,
		CardID:     in.CardID,
		Source:     in.Source,
	}, s.claimTTL)
	if err != nil {
		return nil, newError(ErrPersistence, "could not reserve subscription", err)
	}

	switch outcome {
	case repository.ClaimAlreadyExists:
		log.InfoContext(ctx, "subscription already exists", "subscription_id", *claim.SubscriptionID)
		return &SubscriptionResult{
			Outcome:        SubscriptionAlreadyExists,
			SubscriptionID: *claim.SubscriptionID,
			Status:         claim.Status,
		}, nil
	case repository.ClaimInProgress:
		log.InfoContext(ctx, "subscription creation in progress elsewhere")
		return &SubscriptionResult{Outcome: SubscriptionInProgress, Status: claim.Status}, nil
	}

	req := &model.CreateSubscriptionRequest{
		PlanID:        s.planID,
		CustomerID:    in.CustomerID,
		CardID:        in.CardID,
		PaymentMethod: model.PaymentMethodCreditCard,
		StartAt:       s.policy.StartAt(s.now()),
		Metadata: map[string]string{
			"order_id": in.OrderID,
			"source":   in.Source,
		},
	}

	// One key per claim: a retry after a failed claim must not replay the
	// gateway's cached failure.
	key := fmt.Sprintf("subscription-%s-%d", in.OrderID, claim.UpdatedAt.UnixNano())
	sub, err := s.gateway.CreateSubscription(client.WithIdempotencyKey(ctx, key), req)
	if err != nil {
		if failErr := s.subRepo.Fail(ctx, in.OrderID, err.Error()); failErr != nil {
			log.ErrorContext(ctx, "mark subscription claim failed", "error", failErr)
		}
		log.ErrorContext(ctx, "create subscription failed", "error", err)
		return nil, gatewayError(err)
	}

	subID := sub.ID
	status := sub.Status
	if status == "" {
		status = "active"
	}
	if err := s.subRepo.Complete(ctx, in.OrderID, &model.Subscription{
		SubscriptionID: &subID,
		PlanID:         s.planID,
		CustomerID:     in.CustomerID,
		CardID:         in.CardID,
		Status:         status,
	}); err != nil {
		log.ErrorContext(ctx, "subscription created but not recorded",
			"subscription_id", subID,
			"error", err)
		return nil, newError(ErrPersistence, "subscription created but not recorded", err)
	}

	log.InfoContext(ctx, "subscription created",
		"subscription_id", subID,
		"plan_id", s.planID,
		"start", s.policy.String())

	return &SubscriptionResult{
		Outcome:        SubscriptionCreated,
		SubscriptionID: subID,
		Status:         status,
	}, nil
}

// CheckPlan fetches the configured plan and refuses an explicit start date on a
// plan that already has a trial period.
func (s *subscriptionServiceImpl) CheckPlan(ctx context.Context) (*model.PagarmePlan, error) {
	if s.planID == "" {
		return nil, newError(ErrConfiguration, msgConfiguration, errors.New("subscription plan id not configured"))
	}

	plan, err := s.gateway.GetPlan(ctx, s.planID)
	if err != nil {
		return nil, gatewayError(err)
	}

	if s.policy.Explicit() && plan.TrialPeriodDays > 0 {
		return plan, newError(ErrConfiguration, msgConfiguration, fmt.Errorf(
			"plan %s has a %d day trial and start mode is %s: the first charge would be postponed twice",
			plan.ID, plan.TrialPeriodDays, s.policy))
	}

	return plan, nil
}

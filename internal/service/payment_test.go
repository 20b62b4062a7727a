package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"looneca-storefront/internal/client"
	"looneca-storefront/internal/config"
	"looneca-storefront/internal/dto"
	"looneca-storefront/internal/logger"
	"looneca-storefront/internal/model"
	"looneca-storefront/internal/pricing"
	"looneca-storefront/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckout_CardWithoutRecurring(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.expectCardSetup()

	var sent *model.CreateOrderRequest
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.CreateOrderRequest) }).
		Return(paidCardOrder("or_a", 4990), nil).Once()

	resp, err := f.payments.Checkout(context.Background(), cardRequest())
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "or_a", resp.OrderID)
	assert.Equal(t, model.StatusPaid, resp.Status)
	assert.Equal(t, int64(1001), resp.OrderNumber)
	assert.True(t, resp.FinalAmount.Equal(decimal.RequireFromString("49.90")))
	assert.Equal(t, 1, resp.Installments)

	require.NotNil(t, sent)
	assert.Equal(t, int64(4990), sent.Total())
	assert.Len(t, sent.Items, 1, "no surcharge line at 0%")
	assert.Equal(t, "cus_1", sent.CustomerID)
	assert.Nil(t, sent.Customer)
	assert.Equal(t, "card_1", sent.Payments[0].CreditCard.CardID)
	assert.Equal(t, "false", sent.Metadata["isRecurring"])
	assert.Equal(t, "Thor", sent.Metadata["petNames"])

	f.gw.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)

	row, err := f.orders.FindByPagarmeOrderID(context.Background(), "or_a")
	require.NoError(t, err)
	assert.Equal(t, int64(4990), row.TotalPaid)
	assert.Equal(t, "12345678909", row.CustomerDocument)
	assert.Equal(t, "ch_1", row.PagarmeChargeID)
	assert.Nil(t, row.SubscriptionID)
}

func TestCheckout_FlatFeeAddsSurchargeLine(t *testing.T) {
	f := newFixture(t, fixtureOpts{profile: pricing.ProfileFlatFee})
	f.expectCardSetup()

	var sent *model.CreateOrderRequest
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.CreateOrderRequest) }).
		Return(paidCardOrder("or_fee", 5269), nil).Once()

	resp, err := f.payments.Checkout(context.Background(), cardRequest())
	require.NoError(t, err)

	assert.True(t, resp.FinalAmount.Equal(decimal.RequireFromString("52.69")))
	require.Len(t, sent.Items, 2)
	assert.Equal(t, surchargeCode, sent.Items[1].Code)
	assert.Equal(t, int64(279), sent.Items[1].Amount)
	assert.Equal(t, int64(5269), sent.Total())
}

func TestCheckout_InstallmentsAndShipping(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.expectCardSetup()

	req := cardRequest()
	req.Installments = 3
	req.Items[0].Quantity = 2
	req.Shipping.Value = decimal.RequireFromString("15.00")
	req.Amount = decimal.RequireFromString("114.80")

	var sent *model.CreateOrderRequest
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.CreateOrderRequest) }).
		Return(paidCardOrder("or_3x", 12420), nil).Once()

	resp, err := f.payments.Checkout(context.Background(), req)
	require.NoError(t, err)

	// 11480 * 1.0819 = 12420.212
	assert.Equal(t, int64(12420), sent.Total())
	assert.Equal(t, int64(1500), sent.Shipping.Amount)
	assert.Equal(t, 3, sent.Payments[0].CreditCard.Installments)
	assert.True(t, resp.InstallmentAmount.Equal(decimal.RequireFromString("41.40")))

	row, err := f.orders.FindByPagarmeOrderID(context.Background(), "or_3x")
	require.NoError(t, err)
	require.NotNil(t, row.ShippingValue)
	assert.Equal(t, int64(1500), *row.ShippingValue)
}

func TestCheckout_RecurringCreatesSubscription(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.expectCardSetup()
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).Return(paidCardOrder("or_b", 4990), nil).Once()

	var subReq *model.CreateSubscriptionRequest
	f.gw.On("CreateSubscription", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { subReq = args.Get(1).(*model.CreateSubscriptionRequest) }).
		Return(&model.PagarmeSubscription{ID: "sub_b", Status: "active"}, nil).Once()

	req := cardRequest()
	req.RecurringProducts = map[string]bool{"appPetloo": true, "clubeLooneca": false}

	resp, err := f.payments.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	require.NotNil(t, subReq)
	assert.Equal(t, "cus_1", subReq.CustomerID)
	assert.Equal(t, "card_1", subReq.CardID)
	assert.Equal(t, "plan_clube", subReq.PlanID)
	assert.Nil(t, subReq.StartAt, "plan trial governs the first charge")

	row, err := f.orders.FindByPagarmeOrderID(context.Background(), "or_b")
	require.NoError(t, err)
	require.NotNil(t, row.SubscriptionID)
	assert.Equal(t, "sub_b", *row.SubscriptionID)
	assert.True(t, row.RequiresSubscription)
	assert.True(t, row.RecurringProducts.Data()["appPetloo"])
}

func TestCheckout_SubscriptionFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.expectCardSetup()
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).Return(paidCardOrder("or_bf", 4990), nil).Once()
	f.gw.On("CreateSubscription", mock.Anything, mock.Anything).
		Return(nil, &client.GatewayError{Status: http.StatusBadGateway, Message: "Bad Gateway"}).Once()

	req := cardRequest()
	req.RecurringProducts = map[string]bool{"appPetloo": true}

	resp, err := f.payments.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	rows := f.subscriptionRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SubscriptionStatusFailed, rows[0].Status)
	assert.Contains(t, rows[0].LastError, "Bad Gateway")

	row, err := f.orders.FindByPagarmeOrderID(context.Background(), "or_bf")
	require.NoError(t, err)
	assert.Nil(t, row.SubscriptionID)
}

func TestCheckout_PixReturnsQrAndSkipsSubscription(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	var sent *model.CreateOrderRequest
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.CreateOrderRequest) }).
		Return(&model.PagarmeOrder{
			ID:       "or_c",
			Status:   model.StatusPending,
			Customer: &model.PagarmeCustomer{ID: "cus_pix"},
			Charges: []model.PagarmeCharge{{
				ID:            "ch_pix",
				Status:        model.StatusPending,
				PaymentMethod: model.PaymentMethodPix,
				LastTransaction: &model.PagarmeTransaction{
					ID:        "tran_pix",
					Status:    "waiting_payment",
					QrCode:    "00020101021226820014br.gov.bcb.pix",
					QrCodeURL: "https://api.pagar.me/core/v5/transactions/tran_pix/qrcode",
				},
			}},
		}, nil).Once()

	req := pixRequest()
	req.RecurringProducts = map[string]bool{"appPetloo": true}

	resp, err := f.payments.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, resp.Status)
	assert.NotEmpty(t, resp.PixCode)
	assert.NotEmpty(t, resp.PixQrCodeURL)
	assert.Nil(t, resp.InstallmentAmount)

	require.NotNil(t, sent.Customer)
	assert.Equal(t, "12345678909", sent.Customer.Document)
	assert.Equal(t, 3600, sent.Payments[0].Pix.ExpiresIn)
	assert.Equal(t, "true", sent.Metadata["isRecurring"])
	assert.Equal(t, "false", sent.Metadata["requiresSubscription"])

	f.gw.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	f.gw.AssertNotCalled(t, "CreateCard", mock.Anything, mock.Anything, mock.Anything)
	f.gw.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
	assert.Empty(t, f.subscriptionRows(t))
}

func TestCheckout_PixFeeUnderFlatFee(t *testing.T) {
	f := newFixture(t, fixtureOpts{profile: pricing.ProfileFlatFee})

	var sent *model.CreateOrderRequest
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*model.CreateOrderRequest) }).
		Return(pendingPixOrder("or_pf", 5049), nil).Once()

	resp, err := f.payments.Checkout(context.Background(), pixRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(5049), sent.Total())
	assert.True(t, resp.FinalAmount.Equal(decimal.RequireFromString("50.49")))
}

func TestCheckout_PixWithoutQrCodeIsNotRecorded(t *testing.T) {
	tests := map[string]func(o *model.PagarmeOrder){
		"no transaction": func(o *model.PagarmeOrder) { o.Charges[0].LastTransaction = nil },
		"no qr code":     func(o *model.PagarmeOrder) { o.Charges[0].LastTransaction.QrCode = "" },
		"no qr url":      func(o *model.PagarmeOrder) { o.Charges[0].LastTransaction.QrCodeURL = "" },
		"no charge":      func(o *model.PagarmeOrder) { o.Charges = nil },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, fixtureOpts{})
			order := pendingPixOrder("or_noqr", 4990)
			mutate(order)
			f.gw.On("CreateOrder", mock.Anything, mock.Anything).Return(order, nil).Once()

			resp, err := f.payments.Checkout(context.Background(), pixRequest())
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrGatewayUnavailable)

			_, findErr := f.orders.FindByPagarmeOrderID(context.Background(), "or_noqr")
			assert.ErrorIs(t, findErr, repository.ErrNotFound)
		})
	}
}

func TestCheckout_QuantityThatWouldOverflowIsRejected(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	req := pixRequest()
	// 4990 * 3696742299340592 wraps int64 to 2464
	req.Items[0].Quantity = 3696742299340592
	req.Amount = decimal.RequireFromString("24.64")

	_, err := f.payments.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, ErrValidation)
	f.gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)

	var count int64
	require.NoError(t, f.db.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCheckout_DeclinedCard(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.expectCardSetup()

	order := paidCardOrder("or_x", 4990)
	order.Status = model.StatusFailed
	order.Charges[0].Status = model.StatusFailed
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).Return(order, nil).Once()

	_, err := f.payments.Checkout(context.Background(), cardRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayRejected)

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Contains(t, svcErr.Message, "failed")

	_, findErr := f.orders.FindByPagarmeOrderID(context.Background(), "or_x")
	assert.Error(t, findErr)
}

func TestCheckout_PendingCardIsNotSuccess(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.expectCardSetup()

	order := paidCardOrder("or_p", 4990)
	order.Charges[0].Status = model.StatusPending
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).Return(order, nil).Once()

	_, err := f.payments.Checkout(context.Background(), cardRequest())
	assert.ErrorIs(t, err, ErrGatewayRejected)
}

func TestCheckout_ValidationHappensBeforeGateway(t *testing.T) {
	cases := map[string]func(r *dto.PaymentRequest){
		"amount mismatch":     func(r *dto.PaymentRequest) { r.Amount = decimal.RequireFromString("50.00") },
		"no items":            func(r *dto.PaymentRequest) { r.Items = nil },
		"zero quantity":       func(r *dto.PaymentRequest) { r.Items[0].Quantity = 0 },
		"bad cpf":             func(r *dto.PaymentRequest) { r.Customer.Document = "123" },
		"bad email":           func(r *dto.PaymentRequest) { r.Customer.Email = "ana" },
		"missing card":        func(r *dto.PaymentRequest) { r.Card = nil },
		"13 installments":     func(r *dto.PaymentRequest) { r.Installments = 13 },
		"unknown method":      func(r *dto.PaymentRequest) { r.PaymentMethod = "boleto" },
		"bad zip":             func(r *dto.PaymentRequest) { r.Shipping.ZipCode = "123" },
		"pix with parcelas":   func(r *dto.PaymentRequest) { r.PaymentMethod = model.PaymentMethodPix; r.Installments = 2 },
		"card bad cvv":        func(r *dto.PaymentRequest) { r.Card.CVV = "1" },
		"card bad exp month":  func(r *dto.PaymentRequest) { r.Card.ExpMonth = 13 },
		"negative shipping":   func(r *dto.PaymentRequest) { r.Shipping.Value = decimal.RequireFromString("-1") },
		"missing street":      func(r *dto.PaymentRequest) { r.Shipping.Street = "" },
		"missing holder name": func(r *dto.PaymentRequest) { r.Card.HolderName = " " },
		"huge quantity":       func(r *dto.PaymentRequest) { r.Items[0].Quantity = pricing.MaxQuantity + 1 },
		"huge price":          func(r *dto.PaymentRequest) { r.Items[0].Price = decimal.RequireFromString("1e20"); r.Amount = r.Items[0].Price },
		"huge shipping":       func(r *dto.PaymentRequest) { r.Shipping.Value = decimal.RequireFromString("1e20") },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, fixtureOpts{})
			req := cardRequest()
			mutate(req)

			_, err := f.payments.Checkout(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)
			f.gw.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
			f.gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestCheckout_MissingCredentials(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	rates, _ := pricing.Preset(pricing.ProfileZeroSingle)
	svc := NewPaymentService(config.Pagarme{BaseApiURL: "http://gateway.test"}, rates, f.gw, f.orders, f.subscriptions, NewExportService(nil, f.orders, logger.Discard()), logger.Discard())

	_, err := svc.Checkout(context.Background(), cardRequest())
	require.ErrorIs(t, err, ErrConfiguration)

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "payment configuration incomplete", svcErr.Message)
	assert.NotContains(t, svcErr.Message, "PAGARME")
}

func TestCheckout_GatewayOutage(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.gw.On("CreateCustomer", mock.Anything, mock.Anything).
		Return(nil, &client.GatewayError{Status: http.StatusOK, NonJSON: true, Message: "gateway returned non-JSON response"}).Once()

	_, err := f.payments.Checkout(context.Background(), cardRequest())
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	f.gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCheckout_CardTokenRejected(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.gw.On("CreateCustomer", mock.Anything, mock.Anything).Return(&model.PagarmeCustomer{ID: "cus_1"}, nil).Once()
	f.gw.On("CreateCard", mock.Anything, "cus_1", mock.Anything).
		Return(nil, &client.GatewayError{Status: http.StatusUnprocessableEntity, Message: "card number is invalid"}).Once()

	_, err := f.payments.Checkout(context.Background(), cardRequest())
	assert.ErrorIs(t, err, ErrGatewayRejected)

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "card number is invalid", svcErr.Message)
	f.gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

type failingOrderRepo struct {
	repository.OrderRepository
}

func (failingOrderRepo) Create(context.Context, *model.Order) error {
	return errors.New("connection reset")
}

// racingOrderRepo runs beforeCreate right before the insert, standing in for a
// webhook that finishes the subscription while the checkout is still saving.
type racingOrderRepo struct {
	repository.OrderRepository
	beforeCreate func()
}

func (r racingOrderRepo) Create(ctx context.Context, order *model.Order) error {
	r.beforeCreate()
	return r.OrderRepository.Create(ctx, order)
}

func TestCheckout_SubscriptionFinishedByWebhookBeforeInsert(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.expectCardSetup()
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).Return(paidCardOrder("or_b", 4990), nil).Once()

	// webhook catch-up holds a live claim
	require.NoError(t, f.db.Create(&model.Subscription{OrderID: "or_b", Status: model.SubscriptionStatusCreating}).Error)

	rates, _ := pricing.Preset(pricing.ProfileZeroSingle)
	repo := racingOrderRepo{
		OrderRepository: f.orders,
		beforeCreate: func() {
			subID := "sub_hook"
			require.NoError(t, f.subs.Complete(context.Background(), "or_b", &model.Subscription{
				SubscriptionID: &subID,
				PlanID:         "plan_clube",
				Status:         "active",
			}))
		},
	}
	svc := NewPaymentService(testPagarmeConfig(), rates, f.gw, repo, f.subscriptions, NewExportService(nil, repo, logger.Discard()), logger.Discard())

	req := cardRequest()
	req.RecurringProducts = map[string]bool{"appPetloo": true}

	resp, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	f.gw.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)

	row, err := f.orders.FindByPagarmeOrderID(context.Background(), "or_b")
	require.NoError(t, err)
	require.NotNil(t, row.SubscriptionID)
	assert.Equal(t, "sub_hook", *row.SubscriptionID)
}

func TestCheckout_PersistenceFailureAfterCharge(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.expectCardSetup()
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).Return(paidCardOrder("or_lost", 4990), nil).Once()

	rates, _ := pricing.Preset(pricing.ProfileZeroSingle)
	repo := failingOrderRepo{f.orders}
	svc := NewPaymentService(testPagarmeConfig(), rates, f.gw, repo, f.subscriptions, NewExportService(nil, repo, logger.Discard()), logger.Discard())

	_, err := svc.Checkout(context.Background(), cardRequest())
	require.ErrorIs(t, err, ErrPersistence)

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Contains(t, svcErr.Message, "or_lost")
}

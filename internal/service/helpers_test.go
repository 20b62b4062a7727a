package service

import (
	"context"
	"testing"

	"looneca-storefront/internal/client"
	"looneca-storefront/internal/config"
	"looneca-storefront/internal/dto"
	"looneca-storefront/internal/logger"
	"looneca-storefront/internal/model"
	"looneca-storefront/internal/pricing"
	"looneca-storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type gatewayMock struct {
	mock.Mock
}

var _ client.PagarmeClient = (*gatewayMock)(nil)

func (m *gatewayMock) Request(ctx context.Context, method, endpoint string, body any) (*client.Result, error) {
	args := m.Called(ctx, method, endpoint, body)
	r, _ := args.Get(0).(*client.Result)
	return r, args.Error(1)
}

func (m *gatewayMock) CreateCustomer(ctx context.Context, c *model.PagarmeCustomer) (*model.PagarmeCustomer, error) {
	args := m.Called(ctx, c)
	r, _ := args.Get(0).(*model.PagarmeCustomer)
	return r, args.Error(1)
}

func (m *gatewayMock) CreateCard(ctx context.Context, customerID string, card *model.CreateCardRequest) (*model.PagarmeCard, error) {
	args := m.Called(ctx, customerID, card)
	r, _ := args.Get(0).(*model.PagarmeCard)
	return r, args.Error(1)
}

func (m *gatewayMock) CreateOrder(ctx context.Context, order *model.CreateOrderRequest) (*model.PagarmeOrder, error) {
	args := m.Called(ctx, order)
	r, _ := args.Get(0).(*model.PagarmeOrder)
	return r, args.Error(1)
}

func (m *gatewayMock) GetOrder(ctx context.Context, orderID string) (*model.PagarmeOrder, error) {
	args := m.Called(ctx, orderID)
	r, _ := args.Get(0).(*model.PagarmeOrder)
	return r, args.Error(1)
}

func (m *gatewayMock) CreateSubscription(ctx context.Context, sub *model.CreateSubscriptionRequest) (*model.PagarmeSubscription, error) {
	args := m.Called(ctx, sub)
	r, _ := args.Get(0).(*model.PagarmeSubscription)
	return r, args.Error(1)
}

func (m *gatewayMock) ListPlans(ctx context.Context) ([]model.PagarmePlan, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).([]model.PagarmePlan)
	return r, args.Error(1)
}

func (m *gatewayMock) GetPlan(ctx context.Context, planID string) (*model.PagarmePlan, error) {
	args := m.Called(ctx, planID)
	r, _ := args.Get(0).(*model.PagarmePlan)
	return r, args.Error(1)
}

type fixture struct {
	db            *gorm.DB
	gw            *gatewayMock
	orders        repository.OrderRepository
	subs          repository.SubscriptionRepository
	events        repository.WebhookEventRepository
	subscriptions SubscriptionService
	payments      PaymentService
	webhooks      WebhookService
}

type fixtureOpts struct {
	profile       string
	webhookSecret string
	requireSig    bool
	policy        StartPolicy
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := client.InitDBClient("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, client.Migrate(db))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func testPagarmeConfig() config.Pagarme {
	return config.Pagarme{
		BaseApiURL:          "http://gateway.test/core/v5",
		SecretKey:           "sk_test_abcdef",
		PixExpiresIn:        3600,
		StatementDescriptor: "LOONECA",
	}
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	if opts.profile == "" {
		opts.profile = pricing.ProfileZeroSingle
	}
	rates, err := pricing.Preset(opts.profile)
	require.NoError(t, err)

	pg := testPagarmeConfig()
	pg.WebhookSecret = opts.webhookSecret
	pg.WebhookRequireSignature = opts.requireSig

	db := openTestDB(t)
	gw := &gatewayMock{}
	log := logger.Discard()

	f := &fixture{
		db:     db,
		gw:     gw,
		orders: repository.NewOrderRepository(db),
		subs:   repository.NewSubscriptionRepository(db),
		events: repository.NewWebhookEventRepository(db),
	}
	f.subscriptions = NewSubscriptionService(gw, f.subs, config.Subscription{
		PlanID:          "plan_clube",
		StartMode:       config.StartModePlanTrial,
		ClaimTTLSeconds: 600,
	}, opts.policy, log)
	f.payments = NewPaymentService(pg, rates, gw, f.orders, f.subscriptions, NewExportService(nil, f.orders, log), log)
	f.webhooks = NewWebhookService(pg, gw, f.orders, f.events, f.subs, f.subscriptions, log)
	return f
}

func cardRequest() *dto.PaymentRequest {
	return &dto.PaymentRequest{
		Amount:        decimal.RequireFromString("49.90"),
		PaymentMethod: model.PaymentMethodCreditCard,
		Installments:  1,
		Customer: dto.Customer{
			Name:     "Ana Souza",
			Email:    "ana@example.com",
			Document: "123.456.789-09",
			Phone:    "(11) 98765-4321",
		},
		Shipping: dto.Shipping{Address: dto.Address{
			Street:       "Rua das Flores",
			Number:       "100",
			Neighborhood: "Centro",
			City:         "São Paulo",
			State:        "SP",
			ZipCode:      "01001-000",
		}},
		Items: []dto.Item{{
			ID:       "caneca-pet",
			Name:     "Caneca Looneca",
			Price:    decimal.RequireFromString("49.90"),
			Quantity: 1,
			Pet:      &dto.Pet{Name: "Thor", Type: "dog"},
		}},
		Card: &dto.Card{
			Number:     "4111 1111 1111 1111",
			HolderName: "ANA SOUZA",
			ExpMonth:   12,
			ExpYear:    30,
			CVV:        "123",
		},
	}
}

func pixRequest() *dto.PaymentRequest {
	req := cardRequest()
	req.PaymentMethod = model.PaymentMethodPix
	req.Installments = 0
	req.Card = nil
	return req
}

func paidCardOrder(id string, amount int64) *model.PagarmeOrder {
	return &model.PagarmeOrder{
		ID:       id,
		Status:   model.StatusPaid,
		Amount:   amount,
		Customer: &model.PagarmeCustomer{ID: "cus_1"},
		Charges: []model.PagarmeCharge{{
			ID:            "ch_1",
			Status:        model.StatusPaid,
			Amount:        amount,
			PaymentMethod: model.PaymentMethodCreditCard,
			LastTransaction: &model.PagarmeTransaction{
				ID:     "tran_1",
				Status: "captured",
				Card:   &model.PagarmeCard{ID: "card_1", LastFourDigits: "1111"},
			},
		}},
	}
}

func pendingPixOrder(id string, amount int64) *model.PagarmeOrder {
	return &model.PagarmeOrder{
		ID:       id,
		Status:   model.StatusPending,
		Amount:   amount,
		Customer: &model.PagarmeCustomer{ID: "cus_pix"},
		Charges: []model.PagarmeCharge{{
			ID:            "ch_pix",
			Status:        model.StatusPending,
			Amount:        amount,
			PaymentMethod: model.PaymentMethodPix,
			LastTransaction: &model.PagarmeTransaction{
				ID:        "tran_pix",
				Status:    "waiting_payment",
				QrCode:    "00020101021226820014br.gov.bcb.pix",
				QrCodeURL: "https://api.pagar.me/core/v5/transactions/tran_pix/qrcode",
			},
		}},
	}
}

func (f *fixture) expectCardSetup() {
	f.gw.On("CreateCustomer", mock.Anything, mock.Anything).Return(&model.PagarmeCustomer{ID: "cus_1"}, nil).Once()
	f.gw.On("CreateCard", mock.Anything, "cus_1", mock.Anything).Return(&model.PagarmeCard{ID: "card_1"}, nil).Once()
}

func (f *fixture) subscriptionRows(t *testing.T) []model.Subscription {
	t.Helper()
	var rows []model.Subscription
	require.NoError(t, f.db.Find(&rows).Error)
	return rows
}

func mustPreset(t *testing.T) pricing.RateTable {
	t.Helper()
	rates, err := pricing.Preset(pricing.ProfileZeroSingle)
	require.NoError(t, err)
	return rates
}

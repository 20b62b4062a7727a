package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"looneca-storefront/internal/client"
	"looneca-storefront/internal/config"
	"looneca-storefront/internal/dto"
	"looneca-storefront/internal/logger"
	"looneca-storefront/internal/model"
	"looneca-storefront/internal/pricing"
	"looneca-storefront/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const surchargeCode = "surcharge"

var nonDigit = regexp.MustCompile(`[^\d]`)

type PaymentService interface {
	Checkout(ctx context.Context, req *dto.PaymentRequest) (*dto.PaymentResponse, error)
}

type paymentServiceImpl struct {
	cfg           config.Pagarme
	rates         pricing.RateTable
	gateway       client.PagarmeClient
	orderRepo     repository.OrderRepository
	subscriptions SubscriptionService
	exporter      ExportService
	now           func() time.Time
	log           *slog.Logger
}

func NewPaymentService(
	cfg config.Pagarme,
	rates pricing.RateTable,
	gateway client.PagarmeClient,
	orderRepo repository.OrderRepository,
	subscriptions SubscriptionService,
	exporter ExportService,
	log *slog.Logger,
) PaymentService {
	return &paymentServiceImpl{
		cfg:           cfg,
		rates:         rates,
		gateway:       gateway,
		orderRepo:     orderRepo,
		subscriptions: subscriptions,
		exporter:      exporter,
		now:           time.Now,
		log:           log.With("component", "payment_service"),
	}
}

// Checkout turns one checkout attempt into one gateway order and, for card
// payments with a recurring product, one subscription. Steps run strictly in
// sequence since each one needs the id produced by the previous one.
func (s *paymentServiceImpl) Checkout(ctx context.Context, req *dto.PaymentRequest) (*dto.PaymentResponse, error) {
	if !s.cfg.Configured() {
		s.log.ErrorContext(ctx, "pagarme credentials missing")
		return nil, newError(ErrConfiguration, msgConfiguration, errors.New("pagarme secret key not configured"))
	}

	if err := validatePayment(req); err != nil {
		return nil, err
	}

	quote, err := s.quote(req)
	if err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	log := s.log.With(
		"checkout", key,
		"method", req.PaymentMethod,
		"installments", quote.Installments,
		"final_cents", quote.FinalCents)

	var customer *model.PagarmeCustomer
	var card *model.PagarmeCard
	if req.PaymentMethod == model.PaymentMethodCreditCard {
		customer, err = s.gateway.CreateCustomer(ctx, s.customer(req))
		if err != nil {
			log.WarnContext(ctx, "create customer failed", "error", err)
			return nil, gatewayError(err)
		}

		card, err = s.gateway.CreateCard(ctx, customer.ID, s.card(req))
		if err != nil {
			log.WarnContext(ctx, "create card failed",
				"customer_id", customer.ID,
				"card_last_four", logger.LastFour(req.Card.Number),
				"error", err)
			return nil, gatewayError(err)
		}
		log = log.With("customer_id", customer.ID, "card_id", card.ID)
	}

	orderReq := s.orderRequest(req, quote, key, customer, card)
	if orderReq.Total() != quote.FinalCents {
		// Payload lines must add up to the charged amount.
		return nil, newError(ErrValidation, "order total mismatch",
			fmt.Errorf("payload total %d != quote %d", orderReq.Total(), quote.FinalCents))
	}

	order, err := s.gateway.CreateOrder(client.WithIdempotencyKey(ctx, key), orderReq)
	if err != nil {
		log.WarnContext(ctx, "create order failed", "error", err)
		return nil, gatewayError(err)
	}

	status := order.ChargeStatus()
	charge := order.FirstCharge()
	chargeID := ""
	if charge != nil {
		chargeID = charge.ID
	}
	log = log.With("pagarme_order_id", order.ID, "charge_id", chargeID, "status", status)

	if !model.IsAttemptSuccess(req.PaymentMethod, status) {
		log.WarnContext(ctx, "payment not approved")
		return nil, newError(ErrGatewayRejected, declinedMessage(status, charge),
			fmt.Errorf("order %s status %s", order.ID, status))
	}

	if req.PaymentMethod == model.PaymentMethodPix {
		if err := order.ValidatePix(); err != nil {
			log.ErrorContext(ctx, "pix order without qr code, not recorded", "error", err)
			return nil, newError(ErrGatewayUnavailable, msgUnavailable, err)
		}
	}

	customerID := order.CustomerID()
	cardID := order.CardID()
	if customerID == "" && customer != nil {
		customerID = customer.ID
	}
	if cardID == "" && card != nil {
		cardID = card.ID
	}

	var subscriptionID *string
	if req.PaymentMethod == model.PaymentMethodCreditCard && req.AnyRecurring() {
		if customerID == "" || cardID == "" {
			log.WarnContext(ctx, "subscription deferred: customer or card id missing from gateway response")
		} else {
			res, err := s.subscriptions.CreateForOrder(ctx, SubscriptionInput{
				OrderID:    order.ID,
				CustomerID: customerID,
				CardID:     cardID,
				Source:     model.SourceCheckout,
			})
			if err != nil {
				log.ErrorContext(ctx, "subscription creation failed, webhook will retry", "error", err)
			} else if res.SubscriptionID != "" {
				subscriptionID = &res.SubscriptionID
			}
		}
	}

	row := s.orderRow(req, quote, status, customerID, cardID, order.ID, chargeID, subscriptionID)
	if err := s.orderRepo.Create(ctx, row); err != nil {
		log.ErrorContext(ctx, "order charged but not persisted, reconcile manually",
			"customer_email", req.Customer.Email,
			"error", err)
		return nil, newError(ErrPersistence,
			fmt.Sprintf("your payment was processed but the order could not be recorded, please contact support with reference %s", order.ID),
			err)
	}
	log.InfoContext(ctx, "order created", "pedido_numero", row.PedidoNumero)

	if row.RequiresSubscription && row.SubscriptionID == nil {
		if err := s.orderRepo.AdoptSubscriptionID(ctx, row); err != nil {
			log.WarnContext(ctx, "subscription id not mirrored onto order", "pedido_numero", row.PedidoNumero, "error", err)
		}
	}

	if err := s.exporter.ExportOrder(ctx, row); err != nil {
		log.WarnContext(ctx, "order export failed", "pedido_numero", row.PedidoNumero, "error", err)
	}

	resp := &dto.PaymentResponse{
		Success:     true,
		OrderID:     order.ID,
		OrderNumber: row.PedidoNumero,
		Status:      status,
		FinalAmount: pricing.FromCents(quote.FinalCents),
	}
	switch req.PaymentMethod {
	case model.PaymentMethodPix:
		resp.PixCode = charge.LastTransaction.QrCode
		resp.PixQrCodeURL = charge.LastTransaction.QrCodeURL
		resp.PixExpiresAt = charge.LastTransaction.ExpiresAt
	case model.PaymentMethodCreditCard:
		amount := pricing.FromCents(quote.InstallmentCents)
		resp.Installments = quote.Installments
		resp.InstallmentAmount = &amount
	}

	return resp, nil
}

func (s *paymentServiceImpl) quote(req *dto.PaymentRequest) (pricing.Quote, error) {
	lines := make([]pricing.Line, len(req.Items))
	for i, it := range req.Items {
		unit, err := pricing.CheckedCents(it.Price)
		if err != nil {
			return pricing.Quote{}, validationError("items[%d].price: %v", i, err)
		}
		lines[i] = pricing.Line{UnitCents: unit, Quantity: it.Quantity}
	}

	shipping, err := pricing.CheckedCents(req.Shipping.Value)
	if err != nil {
		return pricing.Quote{}, validationError("shipping.value: %v", err)
	}

	installments := req.Installments
	if installments == 0 {
		installments = 1
	}

	quote, err := s.rates.Quote(lines, shipping, req.PaymentMethod, installments)
	if err != nil {
		return pricing.Quote{}, validationError("%v", err)
	}

	declared, err := pricing.CheckedCents(req.Amount)
	if err != nil {
		return pricing.Quote{}, validationError("amount: %v", err)
	}
	if declared != quote.BaseCents {
		return pricing.Quote{}, validationError("amount %s does not match items plus shipping %s",
			req.Amount.StringFixed(2), pricing.FromCents(quote.BaseCents).StringFixed(2))
	}

	return quote, nil
}

func (s *paymentServiceImpl) customer(req *dto.PaymentRequest) *model.PagarmeCustomer {
	return &model.PagarmeCustomer{
		Name:         strings.TrimSpace(req.Customer.Name),
		Email:        strings.TrimSpace(req.Customer.Email),
		Document:     onlyDigits(req.Customer.Document),
		DocumentType: "CPF",
		Type:         "individual",
		Phones:       &model.PagarmePhones{MobilePhone: phone(req.Customer.Phone)},
		Address:      gatewayAddress(req.Shipping.Address),
	}
}

func (s *paymentServiceImpl) card(req *dto.PaymentRequest) *model.CreateCardRequest {
	billing := req.Shipping.Address
	if req.Card.BillingAddress != nil {
		billing = *req.Card.BillingAddress
	}

	holderDoc := req.Card.HolderDocument
	if holderDoc == "" {
		holderDoc = req.Customer.Document
	}

	return &model.CreateCardRequest{
		Number:         onlyDigits(req.Card.Number),
		HolderName:     strings.TrimSpace(req.Card.HolderName),
		HolderDocument: onlyDigits(holderDoc),
		ExpMonth:       req.Card.ExpMonth,
		ExpYear:        fullYear(req.Card.ExpYear),
		CVV:            strings.TrimSpace(req.Card.CVV),
		BillingAddress: gatewayAddress(billing),
	}
}

func (s *paymentServiceImpl) orderRequest(
	req *dto.PaymentRequest,
	quote pricing.Quote,
	key string,
	customer *model.PagarmeCustomer,
	card *model.PagarmeCard,
) *model.CreateOrderRequest {
	items := make([]model.PagarmeOrderItem, 0, len(req.Items)+1)
	for i, it := range req.Items {
		code := it.ID
		if code == "" {
			code = fmt.Sprintf("item-%d", i+1)
		}
		desc := it.Name
		if it.Pet != nil && it.Pet.Name != "" {
			desc = fmt.Sprintf("%s - %s", it.Name, it.Pet.Name)
		}
		items = append(items, model.PagarmeOrderItem{
			Code:        code,
			Description: desc,
			Amount:      pricing.ToCents(it.Price),
			Quantity:    it.Quantity,
		})
	}
	if quote.SurchargeCents > 0 {
		items = append(items, model.PagarmeOrderItem{
			Code:        surchargeCode,
			Description: surchargeTitle(req.PaymentMethod, quote.Installments),
			Amount:      quote.SurchargeCents,
			Quantity:    1,
		})
	}

	out := &model.CreateOrderRequest{
		Code:  key,
		Items: items,
		Shipping: &model.PagarmeShipping{
			Amount:         quote.ShippingCents,
			Description:    shippingDescription(req.Shipping.Method),
			RecipientName:  strings.TrimSpace(req.Customer.Name),
			RecipientPhone: onlyDigits(req.Customer.Phone),
			Address:        *gatewayAddress(req.Shipping.Address),
		},
		Metadata: s.metadata(req, quote),
	}

	switch req.PaymentMethod {
	case model.PaymentMethodCreditCard:
		out.CustomerID = customer.ID
		out.Payments = []model.PagarmePayment{{
			PaymentMethod: model.PaymentMethodCreditCard,
			CreditCard: &model.PagarmeCreditCardPayment{
				CardID:              card.ID,
				Installments:        quote.Installments,
				StatementDescriptor: s.cfg.StatementDescriptor,
				Operation:           "auth_and_capture",
			},
		}}
	case model.PaymentMethodPix:
		out.Customer = s.customer(req)
		out.Payments = []model.PagarmePayment{{
			PaymentMethod: model.PaymentMethodPix,
			Pix:           &model.PagarmePixPayment{ExpiresIn: s.cfg.PixExpiresIn},
		}}
	}

	return out
}

// metadata is read back by the webhook path to decide whether a subscription
// is owed for the order.
func (s *paymentServiceImpl) metadata(req *dto.PaymentRequest, quote pricing.Quote) map[string]string {
	recurring := req.AnyRecurring()

	selected := make([]string, 0, len(req.RecurringProducts))
	for k, v := range req.RecurringProducts {
		if v {
			selected = append(selected, k)
		}
	}
	sort.Strings(selected)
	recurringJSON, _ := json.Marshal(req.RecurringProducts)

	var pets []string
	for _, it := range req.Items {
		if it.Pet != nil && it.Pet.Name != "" {
			pets = append(pets, it.Pet.Name)
		}
	}

	return map[string]string{
		"isRecurring":          strconv.FormatBool(recurring),
		"requiresSubscription": strconv.FormatBool(recurring && req.PaymentMethod == model.PaymentMethodCreditCard),
		"recurringProducts":    string(recurringJSON),
		"recurringSelected":    strings.Join(selected, ","),
		"petNames":             strings.Join(pets, ","),
		"paymentMethod":        string(req.PaymentMethod),
		"installments":         strconv.Itoa(quote.Installments),
	}
}

func (s *paymentServiceImpl) orderRow(
	req *dto.PaymentRequest,
	quote pricing.Quote,
	status, customerID, cardID, orderID, chargeID string,
	subscriptionID *string,
) *model.Order {
	items := make([]model.OrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = model.OrderItem{
			Code:      it.ID,
			Name:      it.Name,
			UnitPrice: pricing.ToCents(it.Price),
			Quantity:  it.Quantity,
		}
		if it.Pet != nil {
			items[i].Pet = &model.PetDetails{
				Name:     it.Pet.Name,
				Type:     it.Pet.Type,
				PhotoURL: it.Pet.PhotoURL,
				Notes:    it.Pet.Notes,
			}
		}
	}

	recurring := req.RecurringProducts
	if recurring == nil {
		recurring = map[string]bool{}
	}
	shipping := quote.ShippingCents

	return &model.Order{
		CustomerName:         strings.TrimSpace(req.Customer.Name),
		CustomerEmail:        strings.TrimSpace(req.Customer.Email),
		CustomerDocument:     onlyDigits(req.Customer.Document),
		CustomerPhone:        onlyDigits(req.Customer.Phone),
		ShippingStreet:       req.Shipping.Street,
		ShippingNumber:       req.Shipping.Number,
		ShippingComplement:   req.Shipping.Complement,
		ShippingNeighborhood: req.Shipping.Neighborhood,
		ShippingCity:         req.Shipping.City,
		ShippingState:        strings.ToUpper(req.Shipping.State),
		ShippingZipCode:      onlyDigits(req.Shipping.ZipCode),
		ShippingValue:        &shipping,
		Items:                datatypes.NewJSONType(items),
		RecurringProducts:    datatypes.NewJSONType(recurring),
		RequiresSubscription: req.AnyRecurring() && req.PaymentMethod == model.PaymentMethodCreditCard,
		PaymentMethod:        req.PaymentMethod,
		Installments:         quote.Installments,
		TotalPaid:            quote.FinalCents,
		PagarmeCustomerID:    customerID,
		PagarmeCardID:        cardID,
		PagarmeOrderID:       orderID,
		PagarmeChargeID:      chargeID,
		SubscriptionID:       subscriptionID,
		StatusPagamento:      status,
	}
}

func validatePayment(req *dto.PaymentRequest) error {
	c := req.Customer
	if strings.TrimSpace(c.Name) == "" {
		return validationError("customer.name is required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil || !strings.Contains(c.Email, "@") {
		return validationError("customer.email is invalid")
	}
	if len(onlyDigits(c.Document)) != 11 {
		return validationError("customer.document must be a CPF with 11 digits")
	}
	if n := len(onlyDigits(c.Phone)); n < 10 || n > 13 {
		return validationError("customer.phone is invalid")
	}

	if err := validateAddress("shipping", req.Shipping.Address); err != nil {
		return err
	}
	if req.Shipping.Value.IsNegative() {
		return validationError("shipping.value must not be negative")
	}

	if len(req.Items) == 0 {
		return validationError("items must not be empty")
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.Name) == "" {
			return validationError("items[%d].name is required", i)
		}
		if !it.Price.IsPositive() {
			return validationError("items[%d].price must be positive", i)
		}
		if it.Quantity <= 0 {
			return validationError("items[%d].quantity must be positive", i)
		}
		if it.Quantity > pricing.MaxQuantity {
			return validationError("items[%d].quantity must be at most %d", i, pricing.MaxQuantity)
		}
	}

	if !req.Amount.IsPositive() {
		return validationError("amount must be positive")
	}

	switch req.PaymentMethod {
	case model.PaymentMethodCreditCard:
		if req.Installments < 0 || req.Installments > pricing.MaxInstallments {
			return validationError("installments must be between 1 and %d", pricing.MaxInstallments)
		}
		return validateCard(req.Card)
	case model.PaymentMethodPix:
		if req.Installments > 1 {
			return validationError("installments are only available for credit card")
		}
		return nil
	default:
		return validationError("paymentMethod must be credit_card or pix")
	}
}

func validateCard(card *dto.Card) error {
	if card == nil {
		return validationError("card is required for credit_card payments")
	}
	if n := len(onlyDigits(card.Number)); n < 13 || n > 19 {
		return validationError("card.number is invalid")
	}
	if strings.TrimSpace(card.HolderName) == "" {
		return validationError("card.holderName is required")
	}
	if card.ExpMonth < 1 || card.ExpMonth > 12 {
		return validationError("card.expMonth is invalid")
	}
	if y := fullYear(card.ExpYear); y < 2000 || y > 2100 {
		return validationError("card.expYear is invalid")
	}
	if n := len(onlyDigits(card.CVV)); n < 3 || n > 4 {
		return validationError("card.cvv is invalid")
	}
	if card.BillingAddress != nil {
		return validateAddress("card.billingAddress", *card.BillingAddress)
	}
	return nil
}

func validateAddress(field string, a dto.Address) error {
	switch {
	case strings.TrimSpace(a.Street) == "":
		return validationError("%s.street is required", field)
	case strings.TrimSpace(a.Number) == "":
		return validationError("%s.number is required", field)
	case strings.TrimSpace(a.City) == "":
		return validationError("%s.city is required", field)
	case len(strings.TrimSpace(a.State)) != 2:
		return validationError("%s.state must be a 2 letter code", field)
	case len(onlyDigits(a.ZipCode)) != 8:
		return validationError("%s.zipCode must have 8 digits", field)
	}
	return nil
}

func gatewayAddress(a dto.Address) *model.PagarmeAddress {
	line1 := strings.Join(nonEmpty(a.Number, a.Street, a.Neighborhood), ", ")
	return &model.PagarmeAddress{
		Line1:   line1,
		Line2:   a.Complement,
		ZipCode: onlyDigits(a.ZipCode),
		City:    a.City,
		State:   strings.ToUpper(a.State),
		Country: "BR",
	}
}

// phone splits a Brazilian number into area code and subscriber number.
func phone(raw string) *model.PagarmePhone {
	digits := onlyDigits(raw)
	if len(digits) > 11 && strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	if len(digits) < 10 {
		return nil
	}
	return &model.PagarmePhone{
		CountryCode: "55",
		AreaCode:    digits[:2],
		Number:      digits[2:],
	}
}

func declinedMessage(status string, charge *model.PagarmeCharge) string {
	if charge != nil && charge.LastTransaction != nil && charge.LastTransaction.AcquirerMessage != "" {
		return fmt.Sprintf("payment not approved (status: %s): %s", status, charge.LastTransaction.AcquirerMessage)
	}
	return fmt.Sprintf("payment not approved (status: %s), please review your details and try again", status)
}

func surchargeTitle(method model.PaymentMethod, installments int) string {
	if method == model.PaymentMethodPix {
		return "Taxa PIX"
	}
	return fmt.Sprintf("Juros de parcelamento (%dx)", installments)
}

func shippingDescription(method string) string {
	if method == "" {
		return "Frete"
	}
	return "Frete " + method
}

func onlyDigits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

func fullYear(y int) int {
	if y > 0 && y < 100 {
		return 2000 + y
	}
	return y
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

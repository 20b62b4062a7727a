package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"looneca-storefront/internal/config"
	"looneca-storefront/internal/logger"
	"looneca-storefront/internal/model"

	"github.com/google/uuid"
)

const accountHeader = "X-PagarMe-Account-Id"

// ErrTransport wraps failures where no HTTP response was received.
var ErrTransport = errors.New("pagarme transport error")

// Result is the outcome of one gateway call. HTTP-level failures are reported
// here with Success=false; only transport failures come back as a Go error.
type Result struct {
	Success bool
	Status  int
	Data    json.RawMessage
	Error   string
	NonJSON bool
}

// GatewayError is a non-2xx (or non-JSON) gateway answer surfaced by the typed
// operations.
type GatewayError struct {
	Status  int
	Message string
	NonJSON bool
	Data    json.RawMessage
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("pagarme error %d: %s", e.Status, e.Message)
}

// Retryable reports whether resubmitting the same request may succeed.
func (e *GatewayError) Retryable() bool {
	return e.NonJSON || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type PagarmeClient interface {
	Request(ctx context.Context, method, endpoint string, body any) (*Result, error)

	CreateCustomer(ctx context.Context, customer *model.PagarmeCustomer) (*model.PagarmeCustomer, error)
	CreateCard(ctx context.Context, customerID string, card *model.CreateCardRequest) (*model.PagarmeCard, error)
	CreateOrder(ctx context.Context, order *model.CreateOrderRequest) (*model.PagarmeOrder, error)
	GetOrder(ctx context.Context, orderID string) (*model.PagarmeOrder, error)
	CreateSubscription(ctx context.Context, sub *model.CreateSubscriptionRequest) (*model.PagarmeSubscription, error)
	ListPlans(ctx context.Context) ([]model.PagarmePlan, error)
	GetPlan(ctx context.Context, planID string) (*model.PagarmePlan, error)
}

type pagarmeClientImpl struct {
	httpClient *http.Client
	baseApiURL string
	secretKey  string
	accountID  string
	log        *slog.Logger
}

func NewPagarmeClient(cfg *config.Pagarme, log *slog.Logger) PagarmeClient {
	return &pagarmeClientImpl{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseApiURL: strings.TrimRight(cfg.BaseApiURL, "/"),
		secretKey:  cfg.SecretKey,
		accountID:  cfg.AccountID,
		log:        log.With("component", "pagarme_client"),
	}
}

type idempotencyKey struct{}

// WithIdempotencyKey pins the Idempotency-Key sent with requests made under ctx,
// so that a resubmitted checkout attempt reuses the gateway resource.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

func (c *pagarmeClientImpl) Request(ctx context.Context, method, endpoint string, body any) (*Result, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal req payload: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	reqURL := c.baseApiURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.secretKey + ":"))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accountID != "" {
		req.Header.Set(accountHeader, c.accountID)
	}
	key, _ := ctx.Value(idempotencyKey{}).(string)
	if key == "" {
		key = uuid.NewString()
	}
	req.Header.Set("Idempotency-Key", key)

	c.log.DebugContext(ctx, "pagarme request",
		"method", method,
		"url", reqURL,
		"key", logger.MaskSecret(c.secretKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.ErrorContext(ctx, "pagarme request failed", "method", method, "url", reqURL, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	result := &Result{
		Status:  resp.StatusCode,
		Success: resp.StatusCode >= 200 && resp.StatusCode < 300,
	}

	if !isJSON(resp.Header.Get("Content-Type")) || !json.Valid(raw) {
		result.Success = false
		result.NonJSON = true
		result.Error = fmt.Sprintf("gateway returned non-JSON response (content-type %q)", resp.Header.Get("Content-Type"))
		c.log.WarnContext(ctx, "pagarme non-JSON response",
			"method", method,
			"url", reqURL,
			"status", resp.StatusCode,
			"content_type", resp.Header.Get("Content-Type"),
			"bytes", len(raw))
		return result, nil
	}

	result.Data = raw
	if !result.Success {
		result.Error = errorMessage(raw, resp.StatusCode)
	}

	c.log.InfoContext(ctx, "pagarme response",
		"method", method,
		"url", reqURL,
		"status", resp.StatusCode,
		"shape", shape(raw))

	return result, nil
}

func (c *pagarmeClientImpl) CreateCustomer(ctx context.Context, customer *model.PagarmeCustomer) (*model.PagarmeCustomer, error) {
	var out model.PagarmeCustomer
	if err := c.call(ctx, http.MethodPost, "/customers", customer, &out); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *pagarmeClientImpl) CreateCard(ctx context.Context, customerID string, card *model.CreateCardRequest) (*model.PagarmeCard, error) {
	var out model.PagarmeCard
	endpoint := fmt.Sprintf("/customers/%s/cards", url.PathEscape(customerID))
	if err := c.call(ctx, http.MethodPost, endpoint, card, &out); err != nil {
		return nil, fmt.Errorf("create card (last four %s): %w", logger.LastFour(card.Number), err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *pagarmeClientImpl) CreateOrder(ctx context.Context, order *model.CreateOrderRequest) (*model.PagarmeOrder, error) {
	var out model.PagarmeOrder
	if err := c.call(ctx, http.MethodPost, "/orders", order, &out); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *pagarmeClientImpl) GetOrder(ctx context.Context, orderID string) (*model.PagarmeOrder, error) {
	var out model.PagarmeOrder
	if err := c.call(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *pagarmeClientImpl) CreateSubscription(ctx context.Context, sub *model.CreateSubscriptionRequest) (*model.PagarmeSubscription, error) {
	var out model.PagarmeSubscription
	if err := c.call(ctx, http.MethodPost, "/subscriptions", sub, &out); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *pagarmeClientImpl) ListPlans(ctx context.Context) ([]model.PagarmePlan, error) {
	var out model.PagarmeList[model.PagarmePlan]
	if err := c.call(ctx, http.MethodGet, "/plans", nil, &out); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	for i := range out.Data {
		if err := out.Data[i].Validate(); err != nil {
			return nil, err
		}
	}
	return out.Data, nil
}

func (c *pagarmeClientImpl) GetPlan(ctx context.Context, planID string) (*model.PagarmePlan, error) {
	var out model.PagarmePlan
	if err := c.call(ctx, http.MethodGet, "/plans/"+url.PathEscape(planID), nil, &out); err != nil {
		return nil, fmt.Errorf("get plan %s: %w", planID, err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *pagarmeClientImpl) call(ctx context.Context, method, endpoint string, body, out any) error {
	res, err := c.Request(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if !res.Success {
		return &GatewayError{
			Status:  res.Status,
			Message: res.Error,
			NonJSON: res.NonJSON,
			Data:    res.Data,
		}
	}
	if err := json.Unmarshal(res.Data, out); err != nil {
		return fmt.Errorf("%w: %v", model.ErrUnexpectedShape, err)
	}
	return nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func errorMessage(raw []byte, status int) string {
	var body struct {
		Message string                     `json:"message"`
		Errors  map[string]json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		if len(body.Errors) > 0 {
			fields := make([]string, 0, len(body.Errors))
			for k := range body.Errors {
				fields = append(fields, k)
			}
			sort.Strings(fields)
			return body.Message + " (" + strings.Join(fields, ", ") + ")"
		}
		return body.Message
	}
	return http.StatusText(status)
}

// shape lists the top-level keys of a JSON object for diagnostics.
func shape(raw []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "non-object"
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

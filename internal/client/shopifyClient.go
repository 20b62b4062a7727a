package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"looneca-storefront/internal/config"
)

var ErrShopify = errors.New("shopify error")

type ShopifyAddress struct {
	Address1 string `json:"address1"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city"`
	Province string `json:"province_code"`
	Zip      string `json:"zip"`
	Country  string `json:"country_code"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type ShopifyCustomer struct {
	ID        int64            `json:"id,omitempty"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone,omitempty"`
	Addresses []ShopifyAddress `json:"addresses,omitempty"`
}

type ShopifyLineItem struct {
	Title    string `json:"title"`
	SKU      string `json:"sku,omitempty"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

type ShopifyShippingLine struct {
	Title string `json:"title"`
	Price string `json:"price"`
	Code  string `json:"code,omitempty"`
}

type ShopifyCustomerRef struct {
	ID int64 `json:"id"`
}

type ShopifyOrder struct {
	ID              int64                 `json:"id,omitempty"`
	Name            string                `json:"name,omitempty"`
	Email           string                `json:"email,omitempty"`
	Customer        *ShopifyCustomerRef   `json:"customer,omitempty"`
	LineItems       []ShopifyLineItem     `json:"line_items"`
	ShippingLines   []ShopifyShippingLine `json:"shipping_lines,omitempty"`
	ShippingAddress *ShopifyAddress       `json:"shipping_address,omitempty"`
	FinancialStatus string                `json:"financial_status,omitempty"`
	Currency        string                `json:"currency,omitempty"`
	Tags            string                `json:"tags,omitempty"`
	Note            string                `json:"note,omitempty"`
}

// ShopifyClient exports paid checkouts to the Shopify Admin REST API.
type ShopifyClient interface {
	FindCustomerByEmail(ctx context.Context, email string) (*ShopifyCustomer, error)
	CreateCustomer(ctx context.Context, customer *ShopifyCustomer) (*ShopifyCustomer, error)
	CreateOrder(ctx context.Context, order *ShopifyOrder) (*ShopifyOrder, error)
}

type shopifyClientImpl struct {
	httpClient  *http.Client
	baseApiURL  string
	accessToken string
	log         *slog.Logger
}

func NewShopifyClient(cfg *config.Shopify, log *slog.Logger) ShopifyClient {
	store := strings.TrimRight(cfg.StoreURL, "/")
	if !strings.HasPrefix(store, "http://") && !strings.HasPrefix(store, "https://") {
		store = "https://" + store
	}

	return &shopifyClientImpl{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseApiURL:  fmt.Sprintf("%s/admin/api/%s", store, cfg.APIVersion),
		accessToken: cfg.AccessToken,
		log:         log.With("component", "shopify_client"),
	}
}

func (c *shopifyClientImpl) FindCustomerByEmail(ctx context.Context, email string) (*ShopifyCustomer, error) {
	var out struct {
		Customers []ShopifyCustomer `json:"customers"`
	}
	endpoint := "/customers/search.json?query=" + url.QueryEscape("email:"+email)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("search customer: %w", err)
	}
	for i := range out.Customers {
		if strings.EqualFold(out.Customers[i].Email, email) {
			return &out.Customers[i], nil
		}
	}
	return nil, nil
}

func (c *shopifyClientImpl) CreateCustomer(ctx context.Context, customer *ShopifyCustomer) (*ShopifyCustomer, error) {
	var out struct {
		Customer ShopifyCustomer `json:"customer"`
	}
	in := map[string]*ShopifyCustomer{"customer": customer}
	if err := c.do(ctx, http.MethodPost, "/customers.json", in, &out); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	if out.Customer.ID == 0 {
		return nil, fmt.Errorf("%w: customer without id", ErrShopify)
	}
	return &out.Customer, nil
}

func (c *shopifyClientImpl) CreateOrder(ctx context.Context, order *ShopifyOrder) (*ShopifyOrder, error) {
	var out struct {
		Order ShopifyOrder `json:"order"`
	}
	in := map[string]*ShopifyOrder{"order": order}
	if err := c.do(ctx, http.MethodPost, "/orders.json", in, &out); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if out.Order.ID == 0 {
		return nil, fmt.Errorf("%w: order without id", ErrShopify)
	}
	return &out.Order, nil
}

func (c *shopifyClientImpl) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal req payload: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseApiURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	c.log.DebugContext(ctx, "shopify response", "method", method, "endpoint", endpoint, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrShopify, resp.StatusCode, truncate(raw, 512))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrShopify, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Package gateway opens deposit orders with the Razorpay orders API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
)

const (
	DefaultBaseURL = "https://api.razorpay.com/v1"
	ordersPath     = "/orders"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4096
)

var (
	ErrMissingCredentials = errors.New("gateway.missing_credentials")
	ErrOrderRejected      = errors.New("gateway.order_rejected")
)

// Client implements ledger.OrderGateway over HTTP basic auth.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, such as a test server.
func WithBaseURL(baseURL string) Option {
	return func(client *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			client.baseURL = trimmed
		}
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// NewClient builds a Client for the given key pair.
func NewClient(keyID string, keySecret string, options ...Option) (*Client, error) {
	keyID = strings.TrimSpace(keyID)
	keySecret = strings.TrimSpace(keySecret)
	if keyID == "" || keySecret == "" {
		return nil, ErrMissingCredentials
	}
	client := &Client{
		baseURL:    DefaultBaseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client, nil
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateOrder implements ledger.OrderGateway.
func (client *Client) CreateOrder(ctx context.Context, request ledger.GatewayOrderRequest) (ledger.GatewayOrder, error) {
	payload, err := json.Marshal(orderRequest{
		Amount:   request.Amount.Int64(),
		Currency: string(request.Currency),
		Receipt:  request.Receipt,
		Notes:    map[string]string{"owner_id": request.OwnerID.String()},
	})
	if err != nil {
		return ledger.GatewayOrder{}, fmt.Errorf("encode order: %w", err)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+ordersPath, bytes.NewReader(payload))
	if err != nil {
		return ledger.GatewayOrder{}, fmt.Errorf("build order request: %w", err)
	}
	httpRequest.SetBasicAuth(client.keyID, client.keySecret)
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return ledger.GatewayOrder{}, fmt.Errorf("create order: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return ledger.GatewayOrder{}, fmt.Errorf("%w: status %d: %s", ErrOrderRejected, response.StatusCode, strings.TrimSpace(string(body)))
	}
	var decoded orderResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return ledger.GatewayOrder{}, fmt.Errorf("decode order: %w", err)
	}
	orderID, err := ledger.NewPaymentOrderID(decoded.ID)
	if err != nil {
		return ledger.GatewayOrder{}, fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}
	amount := request.Amount
	if decoded.Amount > 0 {
		amount = ledger.PositiveAmountCents(decoded.Amount)
	}
	currency := request.Currency
	if decoded.Currency != "" {
		if parsed, parseErr := ledger.NewCurrency(decoded.Currency); parseErr == nil {
			currency = parsed
		}
	}
	return ledger.GatewayOrder{OrderID: orderID, Amount: amount, Currency: currency}, nil
}

var _ ledger.OrderGateway = (*Client)(nil)

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ticketera/backend/internal/helpers"
)

type PaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Method      string
	Reference   string
	PayerID     string
	PayerEmail  string
	Description string
}

type PaymentResult struct {
	ProviderPaymentID string
	Status            string
	StatusDetail      string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// Provider is the outbound contract with the payment gateway. The call is
// an external, at-least-once side effect keyed by Reference; internal state
// never waits on it inside a database transaction.
type Provider interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error)
	RefundPayment(ctx context.Context, providerPaymentID string, amount decimal.Decimal) (RefundResult, error)
}

// HTTPProvider talks to the provider's REST API with HMAC-signed headers.
type HTTPProvider struct {
	BaseURL   string
	ClientID  string
	SecretKey string
	Client    *http.Client
}

func NewHTTPProvider(baseURL, clientID, secretKey string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL:   baseURL,
		ClientID:  clientID,
		SecretKey: secretKey,
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *HTTPProvider) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	body := map[string]interface{}{
		"amount":             req.Amount,
		"currency":           req.Currency,
		"payment_method":     req.Method,
		"external_reference": req.Reference,
		"description":        req.Description,
		"payer": map[string]interface{}{
			"id":    req.PayerID,
			"email": req.PayerEmail,
		},
	}

	var out struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		StatusDetail string `json:"status_detail"`
	}
	if err := p.post(ctx, "/v1/payments", body, &out); err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{ProviderPaymentID: out.ID, Status: out.Status, StatusDetail: out.StatusDetail}, nil
}

func (p *HTTPProvider) RefundPayment(ctx context.Context, providerPaymentID string, amount decimal.Decimal) (RefundResult, error) {
	path := fmt.Sprintf("/v1/payments/%s/refunds", providerPaymentID)
	body := map[string]interface{}{"amount": amount}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := p.post(ctx, path, body, &out); err != nil {
		return RefundResult{}, err
	}
	return RefundResult{RefundID: out.ID, Status: out.Status}, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal provider request: %w", err)
	}

	headerGenerator := helpers.NewProviderHeaderGenerator(p.ClientID, p.SecretKey, path)
	headers := headerGenerator.GetHeaders(string(jsonBody))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: provider returned %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse provider response: %w", err)
	}
	return nil
}

package athm

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

	"github.com/borikenlabs/athmovil/internal/pkg/env"
	"github.com/shopspring/decimal"
)

const defaultGatewayBaseURL = "https://www.athmovil.com/api/business-transaction/v1"

// GatewayConfig carries the credentials and endpoint for the ATH Móvil
// Business API. Built from env at construction and passed in explicitly.
type GatewayConfig struct {
	PublicToken  string
	PrivateToken string
	BaseURL      string
}

// GatewayConfigFromEnv reads ATHM_PUBLIC_TOKEN, ATHM_PRIVATE_TOKEN and
// ATHM_API_BASE_URL.
func GatewayConfigFromEnv() GatewayConfig {
	return GatewayConfig{
		PublicToken:  strings.TrimSpace(env.GetEnv("ATHM_PUBLIC_TOKEN", "")),
		PrivateToken: strings.TrimSpace(env.GetEnv("ATHM_PRIVATE_TOKEN", "")),
		BaseURL:      strings.TrimRight(env.GetEnv("ATHM_API_BASE_URL", defaultGatewayBaseURL), "/"),
	}
}

// RefundConfirmation is the gateway's echoed confirmation for an approved
// refund.
type RefundConfirmation struct {
	ReferenceNumber    string          `json:"referenceNumber"`
	DailyTransactionID string          `json:"dailyTransactionId"`
	Amount             decimal.Decimal `json:"refundedAmount"`
	Name               string          `json:"name"`
	PhoneNumber        string          `json:"phoneNumber"`
	Email              string          `json:"email"`
	Date               string          `json:"date"`
}

// StatusFetcher looks up the remote status of an ecommerce payment.
type StatusFetcher interface {
	PaymentStatus(ctx context.Context, ecommerceID string) (string, error)
}

// RefundSender executes a refund against the gateway.
type RefundSender interface {
	Refund(ctx context.Context, referenceNumber string, amount decimal.Decimal, message string) (*RefundConfirmation, error)
}

// GatewayClient is the outbound ATH Móvil Business API client.
type GatewayClient struct {
	cfg        GatewayConfig
	httpClient *http.Client
}

func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGatewayBaseURL
	}
	return &GatewayClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PaymentStatus fetches the gateway's current status string for the payment.
func (c *GatewayClient) PaymentStatus(ctx context.Context, ecommerceID string) (string, error) {
	if strings.TrimSpace(ecommerceID) == "" {
		return "", errors.New("ecommerce id is required")
	}

	body := map[string]string{
		"publicToken": c.cfg.PublicToken,
		"ecommerceId": ecommerceID,
	}
	var out struct {
		Status string `json:"status"`
		Data   struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/consultTransaction", body, &out); err != nil {
		return "", err
	}
	if out.Data.Status != "" {
		return out.Data.Status, nil
	}
	return out.Status, nil
}

// Refund sends a refund request. The message must already be truncated to the
// gateway's accepted length by the caller.
func (c *GatewayClient) Refund(ctx context.Context, referenceNumber string, amount decimal.Decimal, message string) (*RefundConfirmation, error) {
	if strings.TrimSpace(referenceNumber) == "" {
		return nil, errors.New("reference number is required")
	}

	body := map[string]string{
		"publicToken":     c.cfg.PublicToken,
		"privateToken":    c.cfg.PrivateToken,
		"referenceNumber": referenceNumber,
		"amount":          amount.StringFixed(2),
		"message":         message,
	}
	var out struct {
		Data RefundConfirmation `json:"data"`
	}
	if err := c.post(ctx, "/refund", body, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *GatewayClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("athm %s failed: status=%d body=%s", path, resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

// Package payment is the outbound client for the external payment
// subsystem. The engine only ever asks it to refund an exact amount tied to
// one payment or installment, or to read a payment's status.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/viper"
)

type Gateway interface {
	Refund(ctx context.Context, paymentOrInstallmentID string, amountCents int64) (receiptURL string, err error)
	GetStatus(ctx context.Context, paymentID string) (string, error)
}

// RefundError carries the gateway's stated reason so the UI can show it,
// falling back to a generic message when empty.
type RefundError struct {
	Reason string
}

func (e *RefundError) Error() string {
	if e.Reason == "" {
		return "refund rejected by gateway"
	}
	return "refund rejected by gateway: " + e.Reason
}

type HttpGateway struct {
	Cfg *viper.Viper

	client  *http.Client
	baseURL string
}

func (g *HttpGateway) Init() {
	g.baseURL = g.Cfg.GetString("payment.base_url")
	g.client = &http.Client{
		Timeout: g.Cfg.GetDuration("payment.timeout"),
	}
}

func (g *HttpGateway) Refund(ctx context.Context, paymentOrInstallmentID string, amountCents int64) (string, error) {
	body, err := json.Marshal(map[string]any{
		"payment_id":   paymentOrInstallmentID,
		"amount_cents": amountCents,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/refunds", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return "", &RefundError{Reason: payload.Error}
	}

	var payload struct {
		ReceiptURL string `json:"receipt_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}

	return payload.ReceiptURL, nil
}

func (g *HttpGateway) GetStatus(ctx context.Context, paymentID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/payments/%s", g.baseURL, paymentID), nil)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment status lookup failed: %d", resp.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}

	return payload.Status, nil
}

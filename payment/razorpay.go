// Package payment wraps the Razorpay payment gateway: creating payment
// intents for a computed order total and verifying callback signatures.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"shop-api/circuitbreaker"

	"go.uber.org/zap"
)

// Gateway creates payment intents with the external processor.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string, notes map[string]string) (string, error)
}

type razorpayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
	breaker   *circuitbreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewRazorpayClient reads RAZORPAY_KEY_ID / RAZORPAY_KEY_SECRET from the
// environment. Gateway calls are guarded by a circuit breaker.
func NewRazorpayClient(logger *zap.Logger) Gateway {
	return &razorpayClient{
		baseURL:   getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
		keyID:     os.Getenv("RAZORPAY_KEY_ID"),
		keySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		http:      &http.Client{Timeout: 15 * time.Second},
		breaker:   circuitbreaker.New(5, 30*time.Second),
		logger:    logger,
	}
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

func (r *razorpayClient) CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string, notes map[string]string) (string, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amountMinorUnits,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal order request: %w", err)
	}

	var gatewayOrderID string
	err = r.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/orders", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.SetBasicAuth(r.keyID, r.keySecret)
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, payload)
		}

		var out createOrderResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
		gatewayOrderID = out.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	r.logger.Info("Gateway order created",
		zap.String("gateway_order_id", gatewayOrderID),
		zap.Int64("amount_minor_units", amountMinorUnits),
	)
	return gatewayOrderID, nil
}

// VerifySignature recomputes HMAC-SHA256 over "orderID|paymentID" with the
// shared secret and compares it to the supplied hex signature in constant
// time.
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func KeyID() string {
	return os.Getenv("RAZORPAY_KEY_ID")
}

func KeySecret() string {
	return os.Getenv("RAZORPAY_KEY_SECRET")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

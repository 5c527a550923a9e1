// Package payment creates hosted-checkout sessions with an external payment
// gateway. Orders are reserved before the gateway is called and confirmed or
// compensated afterwards.
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
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/safar/renew-path-trade/internal/config"
)

type CheckoutRequest struct {
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Receipt     string            `json:"receipt"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// GatewayOrder is the gateway's record of a checkout. Amount is in minor
// currency units.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, req CheckoutRequest) (GatewayOrder, error)
}

// Razorpay talks to the Razorpay orders API with basic auth.
type Razorpay struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
	tracer    trace.Tracer
}

func NewRazorpay(cfg config.GatewayConfig) *Razorpay {
	return &Razorpay{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		client:    &http.Client{Timeout: cfg.Timeout},
		tracer:    otel.Tracer("renew-path-trade/payment"),
	}
}

func (r *Razorpay) CreateOrder(ctx context.Context, req CheckoutRequest) (_ GatewayOrder, err error) {
	ctx, span := r.tracer.Start(ctx, "razorpay.CreateOrder",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("payment.receipt", req.Receipt),
			attribute.Int64("payment.amount_minor", req.AmountMinor),
			attribute.String("payment.currency", req.Currency),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "gateway request failed")
		}
		span.End()
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("encode gateway order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.SetBasicAuth(r.keyID, r.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return GatewayOrder{}, fmt.Errorf("gateway answered %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var order GatewayOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return GatewayOrder{}, fmt.Errorf("decode gateway order: %w", err)
	}
	if order.ID == "" {
		return GatewayOrder{}, fmt.Errorf("gateway order has no id")
	}

	return order, nil
}

// Sign computes the checkout signature the gateway hands to the browser after
// a successful payment: hex HMAC-SHA256 of "<order id>|<payment id>".
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	want := Sign(secret, gatewayOrderID, paymentID)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(signature)))
}

// Package paymenttest provides an in-memory payment gateway for tests.
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/safar/renew-path-trade/internal/payment"
)

type Gateway struct {
	mu    sync.Mutex
	calls []payment.CheckoutRequest
	Err   error
}

func (g *Gateway) CreateOrder(_ context.Context, req payment.CheckoutRequest) (payment.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, req)
	if g.Err != nil {
		return payment.GatewayOrder{}, g.Err
	}
	return payment.GatewayOrder{
		ID:       fmt.Sprintf("order_gw_%d", len(g.calls)),
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Status:   "created",
	}, nil
}

func (g *Gateway) Calls() []payment.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payment.CheckoutRequest(nil), g.calls...)
}

// Package market implements the marketplace workflows: profile resolution,
// the product catalog, orders and recycling requests. Callers obtain an actor
// (Buyer, Seller, Recycler) for the signed-in profile and invoke workflow
// methods on it; role checks happen once, when the actor is built.
package market

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/metrics"
	"github.com/safar/renew-path-trade/internal/payment"
	"github.com/safar/renew-path-trade/internal/realtime"
)

type Service struct {
	db       *sqlx.DB
	payments *payment.Adapter
	changes  realtime.Publisher
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewService wires the workflows. changes receives one Change per successful
// write; pass realtime.Discard when the database emits notifications itself.
func NewService(db *sqlx.DB, payments *payment.Adapter, changes realtime.Publisher, log *zap.Logger, m *metrics.Metrics) *Service {
	if changes == nil {
		changes = realtime.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:       db,
		payments: payments,
		changes:  changes,
		log:      log.With(zap.String("component", "market")),
		metrics:  m,
	}
}

func (s *Service) publish(ctx context.Context, c realtime.Change) {
	s.changes.Publish(ctx, c)
}

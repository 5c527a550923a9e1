package market

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/logging"
	"github.com/safar/renew-path-trade/internal/models"
	"github.com/safar/renew-path-trade/internal/payment"
	"github.com/safar/renew-path-trade/internal/realtime"
	"github.com/safar/renew-path-trade/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PlaceOrder starts a hosted checkout for quantity units of productID. The
// order row exists, as pending_payment, before the gateway is contacted.
func (b *Buyer) PlaceOrder(ctx context.Context, productID string, quantity int, email string) (*payment.Session, error) {
	return b.svc.payments.CreateSession(ctx, payment.CheckoutInput{
		ProductID: productID,
		Quantity:  quantity,
		BuyerID:   b.ID(),
		Email:     email,
		Name:      b.profile.Name,
	})
}

func (b *Buyer) ConfirmPayment(ctx context.Context, orderID, gatewayOrderID, paymentID, signature string) (*models.OrderView, error) {
	return b.svc.payments.ConfirmPayment(ctx, payment.ConfirmInput{
		OrderID:        orderID,
		BuyerID:        b.ID(),
		GatewayOrderID: gatewayOrderID,
		PaymentID:      paymentID,
		Signature:      signature,
	})
}

// Orders pages through the buyer's orders, newest first.
func (b *Buyer) Orders(ctx context.Context, cursor string, limit int) (*store.OrderPage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return store.ListBuyerOrdersCursor(ctx, b.svc.db, b.ID(), cursor, limit)
}

// Sales lists orders placed against the seller's products.
func (sl *Seller) Sales(ctx context.Context) ([]models.OrderView, error) {
	return store.ListSellerOrders(ctx, sl.svc.db, sl.ID())
}

func (sl *Seller) MarkInProgress(ctx context.Context, orderID string) error {
	return sl.advanceOrder(ctx, orderID, "start", []string{models.OrderStatusPlaced}, models.OrderStatusInProgress)
}

// MarkDelivered accepts orders that are placed or in progress. Delivered and
// failed orders stay as they are.
func (sl *Seller) MarkDelivered(ctx context.Context, orderID string) error {
	return sl.advanceOrder(ctx, orderID, "deliver",
		[]string{models.OrderStatusPlaced, models.OrderStatusInProgress}, models.OrderStatusDelivered)
}

func (sl *Seller) advanceOrder(ctx context.Context, orderID, transition string, from []string, to string) error {
	s := sl.svc
	log := logging.FromContext(ctx, s.log).With(
		zap.String("order_id", orderID),
		zap.String("seller_id", sl.ID()),
	)

	err := store.Advance(ctx, s.db, store.Transition{
		Table: store.TableOrders,
		ID:    orderID,
		From:  from,
		To:    to,
		Where: []store.Cond{
			store.C("product_id IN (SELECT id FROM products WHERE seller_id = ?)", sl.ID()),
		},
	})
	if errors.Is(err, database.ErrStaleState) {
		if _, getErr := store.GetOrder(ctx, s.db, orderID); errors.Is(getErr, database.ErrOrderNotFound) {
			err = getErr
		}
	}
	s.metrics.Transition("order", transition, err)
	if err != nil {
		log.Warn("order_transition_rejected", zap.String("to", to), zap.Error(err))
		return err
	}

	s.publish(ctx, realtime.Change{Table: store.TableOrders, Op: "UPDATE", ID: orderID})
	log.Info("order_advanced", zap.String("to", to))

	return nil
}

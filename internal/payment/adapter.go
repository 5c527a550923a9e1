package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/config"
	"github.com/safar/renew-path-trade/internal/logging"
	"github.com/safar/renew-path-trade/internal/metrics"
	"github.com/safar/renew-path-trade/internal/models"
	"github.com/safar/renew-path-trade/internal/realtime"
	"github.com/safar/renew-path-trade/internal/store"
	"github.com/safar/renew-path-trade/internal/validate"
)

var hundred = decimal.NewFromInt(100)

type CheckoutInput struct {
	ProductID string
	Quantity  int
	BuyerID   string
	Email     string
	Name      string
}

type Prefill struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Theme struct {
	Color string `json:"color"`
}

// Session holds everything the browser needs to open the hosted checkout.
// OrderID is the gateway's order id; LocalOrderID is ours.
type Session struct {
	OrderID      string  `json:"order_id"`
	Amount       int64   `json:"amount"`
	Currency     string  `json:"currency"`
	KeyID        string  `json:"key_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Prefill      Prefill `json:"prefill"`
	Theme        Theme   `json:"theme"`
	LocalOrderID string  `json:"local_order_id"`
}

type ConfirmInput struct {
	OrderID        string
	BuyerID        string
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

type Adapter struct {
	db      sqlx.ExtContext
	gateway Gateway
	cfg     config.GatewayConfig
	changes realtime.Publisher
	log     *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewAdapter(db sqlx.ExtContext, gateway Gateway, cfg config.GatewayConfig, changes realtime.Publisher, log *zap.Logger, m *metrics.Metrics) *Adapter {
	if changes == nil {
		changes = realtime.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		db:      db,
		gateway: gateway,
		cfg:     cfg,
		changes: changes,
		log:     log.With(zap.String("component", "payment")),
		metrics: m,
		tracer:  otel.Tracer("renew-path-trade/payment"),
	}
}

// CreateSession reserves a pending_payment order, asks the gateway for a
// checkout and then either confirms the order as placed or compensates it to
// payment_failed. A failed reservation never reaches the gateway.
func (a *Adapter) CreateSession(ctx context.Context, in CheckoutInput) (_ *Session, err error) {
	ctx, span := a.tracer.Start(ctx, "payment.CreateSession",
		trace.WithAttributes(
			attribute.String("product.id", in.ProductID),
			attribute.Int("order.quantity", in.Quantity),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, metrics.Outcome(err))
		}
		span.End()
	}()

	log := logging.FromContext(ctx, a.log).With(
		zap.String("buyer_id", in.BuyerID),
		zap.String("product_id", in.ProductID),
	)

	if in.BuyerID == "" || in.Email == "" {
		return nil, apperr.Auth("user not authenticated or email not available")
	}
	if strings.TrimSpace(in.ProductID) == "" {
		return nil, apperr.Validation("product_id is required")
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if err := validate.Quantity(in.Quantity); err != nil {
		return nil, err
	}

	product, err := store.GetProduct(ctx, a.db, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product.Status != models.ProductStatusAvailable {
		return nil, fmt.Errorf("product %s is %s: %w", product.ID, product.Status, apperr.ErrConflict)
	}

	total := product.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))
	receipt := newReceipt(time.Now())

	order := &models.Order{
		ProductID:   product.ID,
		BuyerID:     in.BuyerID,
		Quantity:    in.Quantity,
		TotalAmount: total,
		Status:      models.OrderStatusPendingPayment,
		PaymentInfo: models.PaymentInfo{
			Receipt:       receipt,
			PaymentStatus: models.PaymentStatusPending,
		},
	}
	if err := store.CreateOrder(ctx, a.db, order); err != nil {
		log.Error("order_reserve_failed", zap.Error(err))
		a.metrics.Transition("order", "reserve", err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	a.metrics.Transition("order", "reserve", nil)
	a.publish(ctx, "INSERT", order.ID)
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("payment.receipt", receipt))
	log = log.With(zap.String("order_id", order.ID), zap.String("receipt", receipt))

	start := time.Now()
	gwOrder, gwErr := a.gateway.CreateOrder(ctx, CheckoutRequest{
		AmountMinor: total.Mul(hundred).Round(0).IntPart(),
		Currency:    a.cfg.Currency,
		Receipt:     receipt,
		Notes: map[string]string{
			"product_id":   product.ID,
			"buyer_id":     in.BuyerID,
			"quantity":     strconv.Itoa(in.Quantity),
			"product_name": product.Name,
		},
	})
	a.metrics.GatewayRequest(gwErr, time.Since(start))

	if gwErr != nil {
		log.Warn("gateway_checkout_failed", zap.Error(gwErr))
		a.compensate(ctx, log, order, gwErr)
		return nil, apperr.External("payment gateway", gwErr)
	}

	err = store.Advance(ctx, a.db, store.Transition{
		Table: store.TableOrders,
		ID:    order.ID,
		From:  []string{models.OrderStatusPendingPayment},
		To:    models.OrderStatusPlaced,
		Set: []store.Cond{store.C("payment_info = ?", models.PaymentInfo{
			Receipt:        receipt,
			GatewayOrderID: gwOrder.ID,
			PaymentStatus:  models.PaymentStatusPending,
		})},
	})
	a.metrics.Transition("order", "place", err)
	if err != nil {
		log.Error("order_confirm_failed", zap.String("gateway_order_id", gwOrder.ID), zap.Error(err))
		return nil, fmt.Errorf("confirm order %s: %w", order.ID, err)
	}
	a.publish(ctx, "UPDATE", order.ID)

	log.Info("order_placed",
		zap.String("gateway_order_id", gwOrder.ID),
		zap.String("total_amount", total.String()),
	)

	name := in.Name
	if name == "" {
		name = in.Email
	}
	currency := gwOrder.Currency
	if currency == "" {
		currency = a.cfg.Currency
	}

	return &Session{
		OrderID:      gwOrder.ID,
		Amount:       gwOrder.Amount,
		Currency:     currency,
		KeyID:        a.cfg.KeyID,
		Name:         a.cfg.MerchantName,
		Description:  product.Name,
		Prefill:      Prefill{Email: in.Email, Name: name},
		Theme:        Theme{Color: a.cfg.ThemeColor},
		LocalOrderID: order.ID,
	}, nil
}

// compensate moves a reserved order to payment_failed. A failure here leaves
// the order in pending_payment, which is logged but not surfaced: the caller
// already reports the gateway error.
func (a *Adapter) compensate(ctx context.Context, log *zap.Logger, order *models.Order, cause error) {
	err := store.Advance(ctx, a.db, store.Transition{
		Table: store.TableOrders,
		ID:    order.ID,
		From:  []string{models.OrderStatusPendingPayment},
		To:    models.OrderStatusPaymentFailed,
		Set: []store.Cond{store.C("payment_info = ?", models.PaymentInfo{
			Receipt:       order.PaymentInfo.Receipt,
			PaymentStatus: models.PaymentStatusFailed,
			FailureReason: cause.Error(),
		})},
	})
	a.metrics.Transition("order", "compensate", err)
	if err != nil {
		log.Error("order_compensation_failed", zap.Error(err))
		return
	}
	a.publish(ctx, "UPDATE", order.ID)
}

// ConfirmPayment records a completed hosted checkout after checking the
// gateway's signature. The update is a compare-and-swap on the previous
// payment_info, so concurrent confirmations cannot both apply.
func (a *Adapter) ConfirmPayment(ctx context.Context, in ConfirmInput) (*models.OrderView, error) {
	order, err := store.GetOrder(ctx, a.db, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != in.BuyerID {
		return nil, apperr.Permission("order %s belongs to another buyer", in.OrderID)
	}

	info := order.PaymentInfo
	if info.GatewayOrderID == "" || info.GatewayOrderID != in.GatewayOrderID {
		return nil, apperr.Validation("gateway order id does not match order %s", in.OrderID)
	}
	if !VerifySignature(a.cfg.KeySecret, in.GatewayOrderID, in.PaymentID, in.Signature) {
		return nil, apperr.Validation("invalid payment signature")
	}
	if info.PaymentStatus == models.PaymentStatusPaid {
		if info.PaymentID == in.PaymentID {
			return order, nil
		}
		return nil, fmt.Errorf("order %s already paid: %w", in.OrderID, apperr.ErrConflict)
	}

	paid := info
	paid.PaymentID = in.PaymentID
	paid.PaymentStatus = models.PaymentStatusPaid
	paid.FailureReason = ""

	err = store.Advance(ctx, a.db, store.Transition{
		Table: store.TableOrders,
		ID:    order.ID,
		From:  []string{order.Status},
		To:    order.Status,
		Set:   []store.Cond{store.C("payment_info = ?", paid)},
		Where: []store.Cond{store.C("payment_info = ?", info)},
	})
	a.metrics.Transition("order", "confirm_payment", err)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, "UPDATE", order.ID)

	logging.FromContext(ctx, a.log).Info("payment_confirmed",
		zap.String("order_id", order.ID),
		zap.String("payment_id", in.PaymentID),
	)

	return store.GetOrder(ctx, a.db, order.ID)
}

func (a *Adapter) publish(ctx context.Context, op, id string) {
	a.changes.Publish(ctx, realtime.Change{Table: store.TableOrders, Op: op, ID: id})
}

// newReceipt builds the external order reference order_<unix ms>_<9 chars>.
func newReceipt(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("order_%d_%s", t.UnixMilli(), suffix)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/models"
)

const orderColumns = `o.id, o.product_id, o.buyer_id, o.quantity, o.total_amount, o.status, o.payment_info, o.created_at, o.updated_at`

const orderViewColumns = orderColumns + `, p.name AS product_name, p.category AS product_category, p.seller_id`

// CreateOrder inserts o as given. TotalAmount is written once here; no update
// statement in this package touches it.
func CreateOrder(ctx context.Context, db sqlx.ExtContext, o *models.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = now()
	o.UpdatedAt = o.CreatedAt

	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO orders (id, product_id, buyer_id, quantity, total_amount, status, payment_info, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		o.ID, o.ProductID, o.BuyerID, o.Quantity, o.TotalAmount, o.Status, o.PaymentInfo, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", database.Translate(err))
	}

	return nil
}

func GetOrder(ctx context.Context, db sqlx.ExtContext, id string) (*models.OrderView, error) {
	order := &models.OrderView{}

	err := sqlx.GetContext(ctx, db, order, db.Rebind(`
		SELECT `+orderViewColumns+`
		FROM orders o
		JOIN products p ON p.id = o.product_id
		WHERE o.id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", database.Translate(err))
	}

	return order, nil
}

// ListBuyerOrdersCursor pages through a buyer's orders, newest first.
func ListBuyerOrdersCursor(ctx context.Context, db sqlx.ExtContext, buyerID string, cursor string, limit int) (*OrderPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, apperr.Validation("invalid cursor: %v", err)
	}

	query := `
		SELECT ` + orderViewColumns + `
		FROM orders o
		JOIN products p ON p.id = o.product_id
		WHERE o.buyer_id = ?`
	args := []any{buyerID}

	if !cursorData.IsZero() {
		query += ` AND (o.created_at < ? OR (o.created_at = ? AND o.id < ?))`
		args = append(args, cursorData.CreatedAt, cursorData.CreatedAt, cursorData.ID)
	}

	query += `
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT ?`
	args = append(args, limit+1)

	orders := []models.OrderView{}
	if err := sqlx.SelectContext(ctx, db, &orders, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &OrderPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListSellerOrders returns the orders placed against any of the seller's
// products, newest first.
func ListSellerOrders(ctx context.Context, db sqlx.ExtContext, sellerID string) ([]models.OrderView, error) {
	orders := []models.OrderView{}

	err := sqlx.SelectContext(ctx, db, &orders, db.Rebind(`
		SELECT `+orderViewColumns+`
		FROM orders o
		JOIN products p ON p.id = o.product_id
		WHERE p.seller_id = ?
		ORDER BY o.created_at DESC, o.id DESC`), sellerID)
	if err != nil {
		return nil, fmt.Errorf("list seller orders: %w", err)
	}

	return orders, nil
}

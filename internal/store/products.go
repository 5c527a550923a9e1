package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/models"
)

const productColumns = `id, name, description, price, category, seller_id, status, created_at, updated_at`

// CreateProduct inserts p, filling in ID, status and timestamps when unset.
func CreateProduct(ctx context.Context, db sqlx.ExtContext, p *models.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.ProductStatusAvailable
	}
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt

	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Name, p.Description, p.Price, p.Category, p.SellerID, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", database.Translate(err))
	}

	return nil
}

func GetProduct(ctx context.Context, db sqlx.ExtContext, id string) (*models.Product, error) {
	product := &models.Product{}

	err := sqlx.GetContext(ctx, db, product, db.Rebind(`
		SELECT `+productColumns+`
		FROM products
		WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", database.Translate(err))
	}

	return product, nil
}

// ListAvailableProducts returns every available listing, newest first.
func ListAvailableProducts(ctx context.Context, db sqlx.ExtContext) ([]models.Product, error) {
	products := []models.Product{}

	err := sqlx.SelectContext(ctx, db, &products, db.Rebind(`
		SELECT `+productColumns+`
		FROM products
		WHERE status = ?
		ORDER BY created_at DESC, id DESC`), models.ProductStatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("list available products: %w", err)
	}

	return products, nil
}

func ListSellerProducts(ctx context.Context, db sqlx.ExtContext, sellerID string) ([]models.Product, error) {
	products := []models.Product{}

	err := sqlx.SelectContext(ctx, db, &products, db.Rebind(`
		SELECT `+productColumns+`
		FROM products
		WHERE seller_id = ?
		ORDER BY created_at DESC, id DESC`), sellerID)
	if err != nil {
		return nil, fmt.Errorf("list seller products: %w", err)
	}

	return products, nil
}

package market

import (
	"context"

	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/logging"
	"github.com/safar/renew-path-trade/internal/models"
	"github.com/safar/renew-path-trade/internal/realtime"
	"github.com/safar/renew-path-trade/internal/store"
	"github.com/safar/renew-path-trade/internal/validate"
)

// ProductInput is a listing as entered on the seller form. Price is text and
// parsed as a decimal.
type ProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Category    string `json:"category"`
}

func (s *Service) ListAvailable(ctx context.Context) ([]models.Product, error) {
	return store.ListAvailableProducts(ctx, s.db)
}

// CreateProduct validates in and lists it as available. Nothing is written
// when validation fails.
func (sl *Seller) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	name, err := validate.Name("name", in.Name)
	if err != nil {
		return nil, err
	}
	price, err := validate.Price(in.Price)
	if err != nil {
		return nil, err
	}
	category, err := validate.Category(in.Category)
	if err != nil {
		return nil, err
	}
	description, err := validate.Description(in.Description)
	if err != nil {
		return nil, err
	}

	p := &models.Product{
		Name:        name,
		Description: description,
		Price:       price,
		Category:    category,
		SellerID:    sl.ID(),
		Status:      models.ProductStatusAvailable,
	}

	s := sl.svc
	err = store.CreateProduct(ctx, s.db, p)
	s.metrics.Transition("product", "create", err)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.Change{Table: store.TableProducts, Op: "INSERT", ID: p.ID})
	logging.FromContext(ctx, s.log).Info("product_listed",
		zap.String("product_id", p.ID),
		zap.String("seller_id", p.SellerID),
		zap.String("price", p.Price.String()),
	)

	return p, nil
}

// Listings returns the seller's own products in any status.
func (sl *Seller) Listings(ctx context.Context) ([]models.Product, error) {
	return store.ListSellerProducts(ctx, sl.svc.db, sl.ID())
}

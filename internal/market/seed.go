package market

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/logging"
	"github.com/safar/renew-path-trade/internal/models"
	"github.com/safar/renew-path-trade/internal/realtime"
	"github.com/safar/renew-path-trade/internal/store"
	"github.com/safar/renew-path-trade/internal/validate"
)

// Demo data for local development.
var (
	DemoProducts = []ProductInput{
		{Name: "Plastic Bottles", Category: "plastic", Price: "120", Description: "Clean PET bottles"},
		{Name: "Aluminum Cans", Category: "metal", Price: "150", Description: "Crushed cans"},
		{Name: "Office Paper", Category: "paper", Price: "80", Description: "Sorted white paper"},
	}

	DemoRequests = []RequestInput{
		{WasteType: "plastic", Description: "50kg mixed plastic"},
		{WasteType: "paper", Description: "75kg sorted paper"},
		{WasteType: "metal", Description: "25kg aluminum"},
	}
)

// SeedListings lists DemoProducts for the seller in one transaction.
func (sl *Seller) SeedListings(ctx context.Context) ([]models.Product, error) {
	s := sl.svc
	created := make([]models.Product, 0, len(DemoProducts))

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		for _, in := range DemoProducts {
			price, err := validate.Price(in.Price)
			if err != nil {
				return err
			}
			p := models.Product{
				Name:        in.Name,
				Description: in.Description,
				Price:       price,
				Category:    models.Category(in.Category),
				SellerID:    sl.ID(),
				Status:      models.ProductStatusAvailable,
			}
			if err := store.CreateProduct(ctx, tx, &p); err != nil {
				return err
			}
			created = append(created, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed listings: %w", err)
	}

	for _, p := range created {
		s.publish(ctx, realtime.Change{Table: store.TableProducts, Op: "INSERT", ID: p.ID})
	}
	logging.FromContext(ctx, s.log).Info("listings_seeded", zap.String("seller_id", sl.ID()), zap.Int("count", len(created)))

	return created, nil
}

// SeedRequests files DemoRequests to the first recycler on record.
func (r *Requester) SeedRequests(ctx context.Context) (*models.Profile, []models.RecycleRequest, error) {
	recyclers, err := r.svc.ListRecyclers(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(recyclers) == 0 {
		return nil, nil, fmt.Errorf("no recycler to address requests to, create a recycler account first: %w", apperr.ErrNotFound)
	}

	recycler := recyclers[0]
	reqs, err := r.createBatch(ctx, recycler.ID, DemoRequests)
	if err != nil {
		return nil, nil, fmt.Errorf("seed requests: %w", err)
	}
	return &recycler, reqs, nil
}

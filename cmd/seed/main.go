// Command seed fills a development database with demo listings and
// recycling requests.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/config"
	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/logging"
	"github.com/safar/renew-path-trade/internal/market"
	"github.com/safar/renew-path-trade/internal/store"
)

func main() {
	sellerID := flag.String("seller", "", "profile id of the seller that receives the demo listings")
	requesterID := flag.String("requester", "", "profile id of the buyer or seller that files the demo requests")
	flag.Parse()

	if *sellerID == "" && *requesterID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Service+"-seed", cfg.Log.Env, "")
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("database_connect_failed", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	svc := market.NewService(db, nil, nil, logger, nil)

	if *sellerID != "" {
		profile, err := store.GetProfile(ctx, db, *sellerID)
		if err != nil {
			logger.Fatal("seller_lookup_failed", zap.Error(err))
		}
		seller, err := svc.AsSeller(profile)
		if err != nil {
			logger.Fatal("seller_rejected", zap.Error(err))
		}
		products, err := seller.SeedListings(ctx)
		if err != nil {
			logger.Fatal("seed_listings_failed", zap.Error(err))
		}
		logger.Info("added_products", zap.Int("count", len(products)))
	}

	if *requesterID != "" {
		profile, err := store.GetProfile(ctx, db, *requesterID)
		if err != nil {
			logger.Fatal("requester_lookup_failed", zap.Error(err))
		}
		requester, err := svc.AsRequester(profile)
		if err != nil {
			logger.Fatal("requester_rejected", zap.Error(err))
		}
		recycler, reqs, err := requester.SeedRequests(ctx)
		if err != nil {
			logger.Fatal("seed_requests_failed", zap.Error(err))
		}
		logger.Info("created_requests", zap.Int("count", len(reqs)), zap.String("recycler", recycler.Name))
	}
}

// Package storetest builds throwaway in-memory databases with the full schema
// applied, plus a few fixtures shared by the workflow and HTTP tests.
package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/safar/renew-path-trade/internal/config"
	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/models"
	"github.com/safar/renew-path-trade/internal/store"
)

const memoryDSN = "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite"

func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := database.NewConnection(&config.DatabaseConfig{
		Driver:      "sqlite",
		URL:         memoryDSN,
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("Open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
	})

	return db
}

func Profile(t testing.TB, db *sqlx.DB, role models.Role, name string) models.Profile {
	t.Helper()

	p := models.Profile{ID: uuid.NewString(), Name: name, Role: role}
	if _, err := store.InsertProfileIfAbsent(context.Background(), db, &p); err != nil {
		t.Fatalf("Create %s profile: %v", role, err)
	}
	return p
}

func Product(t testing.TB, db *sqlx.DB, sellerID, name string, price int64, category models.Category) models.Product {
	t.Helper()

	p := models.Product{
		Name:     name,
		Price:    decimal.NewFromInt(price),
		Category: category,
		SellerID: sellerID,
	}
	if err := store.CreateProduct(context.Background(), db, &p); err != nil {
		t.Fatalf("Create product %s: %v", name, err)
	}
	return p
}

func Request(t testing.TB, db *sqlx.DB, requesterID, recyclerID string, wasteType models.Category) models.RecycleRequest {
	t.Helper()

	r := models.RecycleRequest{
		WasteType:   wasteType,
		Description: "test batch",
		RequesterID: requesterID,
		RecyclerID:  &recyclerID,
	}
	if err := store.CreateRequest(context.Background(), db, &r); err != nil {
		t.Fatalf("Create recycle request: %v", err)
	}
	return r
}

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

const requestColumns = `id, waste_type, description, requester_id, recycler_id, status, created_at, updated_at`

func CreateRequest(ctx context.Context, db sqlx.ExtContext, r *models.RecycleRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.RequestStatusPending
	}
	r.CreatedAt = now()
	r.UpdatedAt = r.CreatedAt

	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO recycle_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.WasteType, r.Description, r.RequesterID, r.RecyclerID, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create recycle request: %w", database.Translate(err))
	}

	return nil
}

func GetRequest(ctx context.Context, db sqlx.ExtContext, id string) (*models.RecycleRequest, error) {
	request := &models.RecycleRequest{}

	err := sqlx.GetContext(ctx, db, request, db.Rebind(`
		SELECT `+requestColumns+`
		FROM recycle_requests
		WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrRequestNotFound
		}
		return nil, fmt.Errorf("get recycle request: %w", database.Translate(err))
	}

	return request, nil
}

// ListRecyclerRequests returns requests addressed to recyclerID whose status is
// one of statuses, newest first.
func ListRecyclerRequests(ctx context.Context, db sqlx.ExtContext, recyclerID string, statuses []string) ([]models.RecycleRequest, error) {
	requests := []models.RecycleRequest{}
	if len(statuses) == 0 {
		return requests, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+requestColumns+`
		FROM recycle_requests
		WHERE recycler_id = ?
		  AND status IN (?)
		ORDER BY created_at DESC, id DESC`, recyclerID, statuses)
	if err != nil {
		return nil, fmt.Errorf("build recycler query: %w", err)
	}

	if err := sqlx.SelectContext(ctx, db, &requests, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list recycler requests: %w", err)
	}

	return requests, nil
}

func ListRequesterRequests(ctx context.Context, db sqlx.ExtContext, requesterID string) ([]models.RecycleRequest, error) {
	requests := []models.RecycleRequest{}

	err := sqlx.SelectContext(ctx, db, &requests, db.Rebind(`
		SELECT `+requestColumns+`
		FROM recycle_requests
		WHERE requester_id = ?
		ORDER BY created_at DESC, id DESC`), requesterID)
	if err != nil {
		return nil, fmt.Errorf("list requester requests: %w", err)
	}

	return requests, nil
}

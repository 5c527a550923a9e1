package market

import (
	"context"
	"errors"
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

type RequestInput struct {
	RecyclerID  string `json:"recycler_id"`
	WasteType   string `json:"waste_type"`
	Description string `json:"description"`
}

// SampleRequests are filed together by CreateSampleRequests.
var SampleRequests = []RequestInput{
	{WasteType: string(models.CategoryPlastic), Description: "50kg mixed plastic bottles"},
	{WasteType: string(models.CategoryPaper), Description: "75kg office paper and cartons"},
	{WasteType: string(models.CategoryMetal), Description: "25kg aluminum cans"},
}

// Scope selects which of a recycler's requests to list.
type Scope string

const (
	// ScopeActive is the dashboard view: work still to be done.
	ScopeActive Scope = "active"
	// ScopeServices also shows finished work.
	ScopeServices Scope = "services"
)

func (sc Scope) statuses() ([]string, error) {
	switch sc {
	case ScopeActive, "":
		return []string{models.RequestStatusPending, models.RequestStatusInProgress}, nil
	case ScopeServices:
		return []string{models.RequestStatusPending, models.RequestStatusInProgress, models.RequestStatusCompleted}, nil
	}
	return nil, apperr.Validation("unknown scope %q", string(sc))
}

// CreateRequest files a pending request addressed to a recycler.
func (r *Requester) CreateRequest(ctx context.Context, in RequestInput) (*models.RecycleRequest, error) {
	s := r.svc

	req, err := r.newRequest(ctx, s.db, in)
	if err != nil {
		return nil, err
	}

	err = store.CreateRequest(ctx, s.db, req)
	s.metrics.Transition("recycle_request", "create", err)
	if err != nil {
		return nil, err
	}

	s.publishRequest(ctx, "INSERT", req)
	logging.FromContext(ctx, s.log).Info("request_created",
		zap.String("request_id", req.ID),
		zap.String("recycler_id", *req.RecyclerID),
	)

	return req, nil
}

// CreateSampleRequests files every entry of SampleRequests to recyclerID in
// one transaction; either all are created or none.
func (r *Requester) CreateSampleRequests(ctx context.Context, recyclerID string) ([]models.RecycleRequest, error) {
	return r.createBatch(ctx, recyclerID, SampleRequests)
}

func (r *Requester) createBatch(ctx context.Context, recyclerID string, items []RequestInput) ([]models.RecycleRequest, error) {
	s := r.svc
	created := make([]models.RecycleRequest, 0, len(items))

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		for _, in := range items {
			in.RecyclerID = recyclerID
			req, err := r.newRequest(ctx, tx, in)
			if err != nil {
				return err
			}
			if err := store.CreateRequest(ctx, tx, req); err != nil {
				return err
			}
			created = append(created, *req)
		}
		return nil
	})
	s.metrics.Transition("recycle_request", "create_batch", err)
	if err != nil {
		return nil, err
	}

	for i := range created {
		s.publishRequest(ctx, "INSERT", &created[i])
	}
	logging.FromContext(ctx, s.log).Info("request_batch_created",
		zap.String("requester_id", r.ID()),
		zap.String("recycler_id", recyclerID),
		zap.Int("count", len(created)),
	)

	return created, nil
}

func (r *Requester) newRequest(ctx context.Context, db sqlx.ExtContext, in RequestInput) (*models.RecycleRequest, error) {
	recyclerID, err := validate.ID("recycler_id", in.RecyclerID)
	if err != nil {
		return nil, err
	}
	wasteType, err := validate.Category(in.WasteType)
	if err != nil {
		return nil, err
	}
	description, err := validate.Description(in.Description)
	if err != nil {
		return nil, err
	}

	recycler, err := store.GetProfile(ctx, db, recyclerID)
	if errors.Is(err, database.ErrProfileNotFound) || (err == nil && recycler.Role != models.RoleRecycler) {
		return nil, apperr.Validation("recycler_id %s does not name a recycler", recyclerID)
	}
	if err != nil {
		return nil, err
	}

	return &models.RecycleRequest{
		WasteType:   wasteType,
		Description: description,
		RequesterID: r.ID(),
		RecyclerID:  &recyclerID,
		Status:      models.RequestStatusPending,
	}, nil
}

// Requests returns everything the requester has filed, newest first.
func (r *Requester) Requests(ctx context.Context) ([]models.RecycleRequest, error) {
	return store.ListRequesterRequests(ctx, r.svc.db, r.ID())
}

// Assigned lists requests addressed to the recycler within scope.
func (rc *Recycler) Assigned(ctx context.Context, scope Scope) ([]models.RecycleRequest, error) {
	statuses, err := scope.statuses()
	if err != nil {
		return nil, err
	}
	return store.ListRecyclerRequests(ctx, rc.svc.db, rc.ID(), statuses)
}

func (rc *Recycler) Accept(ctx context.Context, requestID string) error {
	return rc.advance(ctx, requestID, "accept", models.RequestStatusPending, models.RequestStatusInProgress)
}

func (rc *Recycler) Reject(ctx context.Context, requestID string) error {
	return rc.advance(ctx, requestID, "reject", models.RequestStatusPending, models.RequestStatusRejected)
}

func (rc *Recycler) Complete(ctx context.Context, requestID string) error {
	return rc.advance(ctx, requestID, "complete", models.RequestStatusInProgress, models.RequestStatusCompleted)
}

// advance moves a request from one status to another. The status and the
// addressed recycler are both part of the UPDATE predicate, so of two
// recyclers racing on one request at most one succeeds.
func (rc *Recycler) advance(ctx context.Context, requestID, transition, from, to string) error {
	s := rc.svc
	log := logging.FromContext(ctx, s.log).With(
		zap.String("request_id", requestID),
		zap.String("recycler_id", rc.ID()),
	)

	err := store.Advance(ctx, s.db, store.Transition{
		Table: store.TableRequests,
		ID:    requestID,
		From:  []string{from},
		To:    to,
		Where: []store.Cond{store.C("recycler_id = ?", rc.ID())},
	})
	if errors.Is(err, database.ErrStaleState) {
		if _, getErr := store.GetRequest(ctx, s.db, requestID); errors.Is(getErr, database.ErrRequestNotFound) {
			err = getErr
		} else {
			err = fmt.Errorf("cannot %s request %s: %w", transition, requestID, err)
		}
	}
	s.metrics.Transition("recycle_request", transition, err)
	if err != nil {
		log.Warn("request_transition_rejected", zap.String("to", to), zap.Error(err))
		return err
	}

	recyclerID := rc.ID()
	s.publishRequest(ctx, "UPDATE", &models.RecycleRequest{ID: requestID, RecyclerID: &recyclerID})
	log.Info("request_advanced", zap.String("to", to))

	return nil
}

func (s *Service) publishRequest(ctx context.Context, op string, r *models.RecycleRequest) {
	c := realtime.Change{Table: store.TableRequests, Op: op, ID: r.ID}
	if r.RecyclerID != nil {
		c.RecyclerID = *r.RecyclerID
	}
	s.publish(ctx, c)
}

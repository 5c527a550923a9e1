package market_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/auth"
	"github.com/safar/renew-path-trade/internal/config"
	"github.com/safar/renew-path-trade/internal/market"
	"github.com/safar/renew-path-trade/internal/models"
	"github.com/safar/renew-path-trade/internal/payment"
	"github.com/safar/renew-path-trade/internal/payment/paymenttest"
	"github.com/safar/renew-path-trade/internal/realtime"
	"github.com/safar/renew-path-trade/internal/store"
	"github.com/safar/renew-path-trade/internal/storetest"
)

type env struct {
	db      *sqlx.DB
	svc     *market.Service
	hub     *realtime.Hub
	gateway *paymenttest.Gateway
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := storetest.NewDB(t)
	hub := realtime.NewHub(4, nil, nil)
	gw := &paymenttest.Gateway{}
	adapter := payment.NewAdapter(db, gw, config.GatewayConfig{Currency: "INR", KeySecret: "secret"}, hub, nil, nil)

	return &env{db: db, svc: market.NewService(db, adapter, hub, nil, nil), hub: hub, gateway: gw}
}

func (e *env) seller(t *testing.T) *market.Seller {
	p := storetest.Profile(t, e.db, models.RoleSeller, "Sam")
	s, err := e.svc.AsSeller(&p)
	require.NoError(t, err)
	return s
}

func (e *env) buyer(t *testing.T) *market.Buyer {
	p := storetest.Profile(t, e.db, models.RoleBuyer, "Bea")
	b, err := e.svc.AsBuyer(&p)
	require.NoError(t, err)
	return b
}

func (e *env) recycler(t *testing.T, name string) *market.Recycler {
	p := storetest.Profile(t, e.db, models.RoleRecycler, name)
	r, err := e.svc.AsRecycler(&p)
	require.NoError(t, err)
	return r
}

func TestResolveProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id := auth.Identity{
		ID:       uuid.NewString(),
		Email:    "rita@example.com",
		Metadata: auth.Metadata{Role: "recycler", Mobile: "9999"},
	}

	p, err := e.svc.ResolveProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RoleRecycler, p.Role)
	assert.Equal(t, "rita@example.com", p.Name)
	require.NotNil(t, p.Mobile)
	assert.Equal(t, "9999", *p.Mobile)

	id.Metadata.Role = "buyer"
	again, err := e.svc.ResolveProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, models.RoleRecycler, again.Role, "existing profile must not be rewritten")

	recyclers, err := e.svc.ListRecyclers(ctx)
	require.NoError(t, err)
	assert.Len(t, recyclers, 1)
}

func TestResolveProfileDefaults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.svc.ResolveProfile(ctx, auth.Identity{ID: uuid.NewString(), Metadata: auth.Metadata{Role: "admin"}})
	require.NoError(t, err)
	assert.Equal(t, models.RoleBuyer, p.Role)
	assert.Equal(t, "User", p.Name)

	_, err = e.svc.ResolveProfile(ctx, auth.Identity{})
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestResolveProfileConcurrentFirstAccess(t *testing.T) {
	e := newEnv(t)
	id := auth.Identity{ID: uuid.NewString(), Email: "c@example.com", Metadata: auth.Metadata{Role: "seller"}}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.ResolveProfile(context.Background(), id)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	sellers, err := store.ListProfilesByRole(context.Background(), e.db, models.RoleSeller)
	require.NoError(t, err)
	assert.Len(t, sellers, 1)
}

func TestActorsRequireRole(t *testing.T) {
	e := newEnv(t)
	buyer := storetest.Profile(t, e.db, models.RoleBuyer, "Bea")

	_, err := e.svc.AsSeller(&buyer)
	assert.ErrorIs(t, err, apperr.ErrPermission)
	_, err = e.svc.AsRecycler(nil)
	assert.ErrorIs(t, err, apperr.ErrPermission)
	_, err = e.svc.AsRequester(&models.Profile{ID: buyer.ID})
	assert.ErrorIs(t, err, apperr.ErrPermission)

	r, err := e.svc.AsRequester(&buyer)
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, r.ID())
}

func TestCreateProduct(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller := e.seller(t)
	sub := e.hub.Subscribe(realtime.Filter{Table: store.TableProducts})
	defer sub.Close()

	p, err := seller.CreateProduct(ctx, market.ProductInput{Name: " Plastic Bottles ", Price: "120.50", Category: "Plastic"})
	require.NoError(t, err)
	assert.Equal(t, "Plastic Bottles", p.Name)
	assert.Equal(t, models.CategoryPlastic, p.Category)

	available, err := e.svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, p.ID, available[0].ID)
	assert.Equal(t, models.ProductStatusAvailable, available[0].Status)
	assert.True(t, available[0].Price.Equal(decimal.RequireFromString("120.5")))
	assert.Len(t, sub.C(), 1)

	invalid := []market.ProductInput{
		{Name: "", Price: "1", Category: "paper"},
		{Name: "x", Price: "-1", Category: "paper"},
		{Name: "x", Price: "abc", Category: "paper"},
		{Name: "x", Price: "1", Category: "glass"},
	}
	for _, in := range invalid {
		_, err := seller.CreateProduct(ctx, in)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", in)
	}

	listings, err := seller.Listings(ctx)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestBuyerPaysForTwoBottles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller := e.seller(t)
	buyer := e.buyer(t)

	product, err := seller.CreateProduct(ctx, market.ProductInput{Name: "Plastic Bottles", Price: "120", Category: "plastic"})
	require.NoError(t, err)

	session, err := buyer.PlaceOrder(ctx, product.ID, 2, "bea@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Bea", session.Prefill.Name)

	calls := e.gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(24000), calls[0].AmountMinor)
	assert.Equal(t, "INR", calls[0].Currency)

	page, err := buyer.Orders(ctx, "", 0)
	require.NoError(t, err)
	orders := page.Items
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusPlaced, orders[0].Status)
	assert.True(t, orders[0].TotalAmount.Equal(decimal.NewFromInt(240)))
	assert.Equal(t, "Plastic Bottles", orders[0].ProductName)

	sales, err := seller.Sales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, session.LocalOrderID, sales[0].ID)
}

func TestSellerOrderTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller := e.seller(t)
	other := e.seller(t)
	buyer := e.buyer(t)

	product, err := seller.CreateProduct(ctx, market.ProductInput{Name: "Aluminum Cans", Price: "150", Category: "metal"})
	require.NoError(t, err)
	session, err := buyer.PlaceOrder(ctx, product.ID, 1, "bea@example.com")
	require.NoError(t, err)
	orderID := session.LocalOrderID

	assert.ErrorIs(t, other.MarkInProgress(ctx, orderID), apperr.ErrConflict)
	assert.ErrorIs(t, seller.MarkInProgress(ctx, uuid.NewString()), apperr.ErrNotFound)

	require.NoError(t, seller.MarkInProgress(ctx, orderID))
	assert.ErrorIs(t, seller.MarkInProgress(ctx, orderID), apperr.ErrConflict)
	require.NoError(t, seller.MarkDelivered(ctx, orderID))
	assert.ErrorIs(t, seller.MarkDelivered(ctx, orderID), apperr.ErrConflict)

	order, err := store.GetOrder(ctx, e.db, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(150)))
}

func TestMarkDeliveredSkipsInProgress(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller := e.seller(t)
	buyer := e.buyer(t)

	product, err := seller.CreateProduct(ctx, market.ProductInput{Name: "Office Paper", Price: "80", Category: "paper"})
	require.NoError(t, err)
	session, err := buyer.PlaceOrder(ctx, product.ID, 1, "bea@example.com")
	require.NoError(t, err)

	require.NoError(t, seller.MarkDelivered(ctx, session.LocalOrderID))
	assert.ErrorIs(t, seller.MarkInProgress(ctx, session.LocalOrderID), apperr.ErrConflict)
}

func TestFailedPaymentCannotBeDelivered(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller := e.seller(t)
	buyer := e.buyer(t)
	e.gateway.Err = errors.New("gateway down")

	product, err := seller.CreateProduct(ctx, market.ProductInput{Name: "Office Paper", Price: "80", Category: "paper"})
	require.NoError(t, err)
	_, err = buyer.PlaceOrder(ctx, product.ID, 1, "bea@example.com")
	require.ErrorIs(t, err, apperr.ErrExternal)

	sales, err := seller.Sales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, models.OrderStatusPaymentFailed, sales[0].Status)
	assert.ErrorIs(t, seller.MarkDelivered(ctx, sales[0].ID), apperr.ErrConflict)
}

func TestRequestAddressedToOneRecycler(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	requester := e.buyer(t)
	a := e.recycler(t, "A")
	b := e.recycler(t, "B")

	sub := e.hub.Subscribe(realtime.Filter{Table: store.TableRequests, RecyclerID: a.ID()})
	defer sub.Close()

	req, err := requester.CreateRequest(ctx, market.RequestInput{RecyclerID: a.ID(), WasteType: "plastic", Description: "10kg"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Len(t, sub.C(), 1)
	<-sub.C()

	assert.ErrorIs(t, b.Accept(ctx, req.ID), apperr.ErrConflict)
	assert.ErrorIs(t, b.Reject(ctx, req.ID), apperr.ErrConflict)
	require.NoError(t, a.Accept(ctx, req.ID))
	assert.Len(t, sub.C(), 1)

	got, err := store.GetRequest(ctx, e.db, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusInProgress, got.Status)
	require.NotNil(t, got.RecyclerID)
	assert.Equal(t, a.ID(), *got.RecyclerID)
}

func TestRequestTransitionsAreGuarded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	requester := e.buyer(t)
	rc := e.recycler(t, "R")

	req, err := requester.CreateRequest(ctx, market.RequestInput{RecyclerID: rc.ID(), WasteType: "metal"})
	require.NoError(t, err)

	assert.ErrorIs(t, rc.Complete(ctx, req.ID), apperr.ErrConflict)
	require.NoError(t, rc.Reject(ctx, req.ID))
	assert.ErrorIs(t, rc.Accept(ctx, req.ID), apperr.ErrConflict)
	assert.ErrorIs(t, rc.Complete(ctx, req.ID), apperr.ErrConflict)
	assert.ErrorIs(t, rc.Accept(ctx, uuid.NewString()), apperr.ErrNotFound)

	got, err := store.GetRequest(ctx, e.db, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, got.Status)
}

func TestConcurrentAccept(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	requester := e.buyer(t)
	rc := e.recycler(t, "R")

	req, err := requester.CreateRequest(ctx, market.RequestInput{RecyclerID: rc.ID(), WasteType: "paper"})
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- rc.Accept(ctx, req.ID)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestRecyclerScopes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	requester := e.buyer(t)
	rc := e.recycler(t, "R")

	reqs, err := requester.CreateSampleRequests(ctx, rc.ID())
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	require.NoError(t, rc.Accept(ctx, reqs[0].ID))
	require.NoError(t, rc.Complete(ctx, reqs[0].ID))
	require.NoError(t, rc.Reject(ctx, reqs[1].ID))

	active, err := rc.Assigned(ctx, market.ScopeActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	services, err := rc.Assigned(ctx, market.ScopeServices)
	require.NoError(t, err)
	assert.Len(t, services, 2)

	_, err = rc.Assigned(ctx, "archived")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	mine, err := requester.Requests(ctx)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}

func TestCreateRequestValidatesRecycler(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	requester := e.buyer(t)
	seller := e.seller(t)

	_, err := requester.CreateRequest(ctx, market.RequestInput{RecyclerID: seller.ID(), WasteType: "paper"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = requester.CreateRequest(ctx, market.RequestInput{RecyclerID: "nope", WasteType: "paper"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = requester.CreateSampleRequests(ctx, uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrValidation)

	mine, err := requester.Requests(ctx)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestSeedDemoData(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller := e.seller(t)

	_, _, err := seller.SeedRequests(ctx)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	products, err := seller.SeedListings(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.True(t, products[0].Price.Equal(decimal.NewFromInt(120)))

	available, err := e.svc.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Len(t, available, 3)

	rc := e.recycler(t, "Ravi")
	recycler, reqs, err := seller.SeedRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, rc.ID(), recycler.ID)
	require.Len(t, reqs, 3)
	assert.Equal(t, "50kg mixed plastic", reqs[0].Description)

	assigned, err := rc.Assigned(ctx, market.ScopeActive)
	require.NoError(t, err)
	assert.Len(t, assigned, 3)
}

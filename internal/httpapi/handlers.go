package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/auth"
	"github.com/safar/renew-path-trade/internal/market"
	"github.com/safar/renew-path-trade/internal/models"
	"github.com/safar/renew-path-trade/internal/payment"
)

type meResponse struct {
	ID       string          `json:"id"`
	Email    string          `json:"email"`
	Role     *models.Role    `json:"role"`
	Profile  *models.Profile `json:"profile"`
	Degraded bool            `json:"degraded"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())

	resp := meResponse{ID: c.Identity.ID, Email: c.Identity.Email, Profile: c.Profile, Degraded: c.Degraded}
	if c.Profile != nil {
		role := c.Profile.Role
		resp.Role = &role
	}

	respondJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleListRecyclers(w http.ResponseWriter, r *http.Request) {
	recyclers, err := s.svc.ListRecyclers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, recyclers)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.svc.ListAvailable(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, products)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	seller, err := s.svc.AsSeller(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var in market.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	product, err := seller.CreateProduct(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, product)
}

func (s *Server) handleSellerProducts(w http.ResponseWriter, r *http.Request) {
	seller, err := s.svc.AsSeller(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	products, err := seller.Listings(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, products)
}

func (s *Server) handleSellerOrders(w http.ResponseWriter, r *http.Request) {
	seller, err := s.svc.AsSeller(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	orders, err := seller.Sales(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, orders)
}

type checkoutRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	buyer, err := s.svc.AsBuyer(c.Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	session, err := buyer.PlaceOrder(r.Context(), req.ProductID, req.Quantity, c.Identity.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, session)
}

// handleCreatePayment is the checkout RPC. Any signed-in identity with an
// email may call it; the order is recorded under the caller's id.
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	if c.Degraded {
		respondError(w, r, fmt.Errorf("%w: buyer profile could not be loaded", apperr.ErrUnavailable))
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	name := c.Identity.Metadata.Name
	if name == "" {
		name = c.Identity.Email
	}

	session, err := s.payments.CreateSession(r.Context(), payment.CheckoutInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		BuyerID:   c.Identity.ID,
		Email:     c.Identity.Email,
		Name:      name,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, session)
}

func (s *Server) handleBuyerOrders(w http.ResponseWriter, r *http.Request) {
	buyer, err := s.svc.AsBuyer(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := buyer.Orders(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, page)
}

type confirmRequest struct {
	GatewayOrderID string `json:"razorpay_order_id"`
	PaymentID      string `json:"razorpay_payment_id"`
	Signature      string `json:"razorpay_signature"`
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	buyer, err := s.svc.AsBuyer(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	order, err := buyer.ConfirmPayment(r.Context(), chi.URLParam(r, "id"), req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, order)
}

func (s *Server) handleMarkInProgress(w http.ResponseWriter, r *http.Request) {
	s.sellerTransition(w, r, (*market.Seller).MarkInProgress, models.OrderStatusInProgress)
}

func (s *Server) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	s.sellerTransition(w, r, (*market.Seller).MarkDelivered, models.OrderStatusDelivered)
}

func (s *Server) sellerTransition(w http.ResponseWriter, r *http.Request, fn func(*market.Seller, context.Context, string) error, to string) {
	seller, err := s.svc.AsSeller(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := fn(seller, r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"id": id, "status": to})
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	requester, err := s.svc.AsRequester(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var in market.RequestInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	req, err := requester.CreateRequest(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, req)
}

func (s *Server) handleCreateSampleRequests(w http.ResponseWriter, r *http.Request) {
	requester, err := s.svc.AsRequester(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var in struct {
		RecyclerID string `json:"recycler_id"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	reqs, err := requester.CreateSampleRequests(r.Context(), in.RecyclerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, reqs)
}

func (s *Server) handleOwnRequests(w http.ResponseWriter, r *http.Request) {
	requester, err := s.svc.AsRequester(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	reqs, err := requester.Requests(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, reqs)
}

func (s *Server) handleAssignedRequests(w http.ResponseWriter, r *http.Request) {
	recycler, err := s.svc.AsRecycler(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	reqs, err := recycler.Assigned(r.Context(), market.Scope(r.URL.Query().Get("scope")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, reqs)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.recyclerTransition(w, r, (*market.Recycler).Accept, models.RequestStatusInProgress)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.recyclerTransition(w, r, (*market.Recycler).Reject, models.RequestStatusRejected)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.recyclerTransition(w, r, (*market.Recycler).Complete, models.RequestStatusCompleted)
}

func (s *Server) recyclerTransition(w http.ResponseWriter, r *http.Request, fn func(*market.Recycler, context.Context, string) error, to string) {
	recycler, err := s.svc.AsRecycler(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := fn(recycler, r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"id": id, "status": to})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in auth.SignUpInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	identity, err := s.local.SignUp(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, identity)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	session, err := s.local.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, session)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		respondError(w, r, apperr.Auth("missing bearer token"))
		return
	}
	if err := s.local.SignOut(r.Context(), token); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

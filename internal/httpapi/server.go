// Package httpapi exposes the marketplace workflows over HTTP.
package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/advisor"
	"github.com/safar/renew-path-trade/internal/auth"
	"github.com/safar/renew-path-trade/internal/classify"
	"github.com/safar/renew-path-trade/internal/market"
	"github.com/safar/renew-path-trade/internal/metrics"
	"github.com/safar/renew-path-trade/internal/payment"
	"github.com/safar/renew-path-trade/internal/realtime"
)

type Classifier interface {
	Classify(ctx context.Context, filename string, image io.Reader) ([]classify.Prediction, error)
}

type Advisor interface {
	Reply(ctx context.Context, messages []advisor.Message) (string, error)
}

// Deps lists what the server is built from. Local is set only when the
// development identity provider is in use; it also serves as Verifier then.
type Deps struct {
	Market     *market.Service
	Payments   *payment.Adapter
	Verifier   auth.Verifier
	Local      *auth.LocalProvider
	Hub        *realtime.Hub
	Classifier Classifier
	Advisor    Advisor
	Log        *zap.Logger
	Metrics    *metrics.Metrics
}

type Server struct {
	svc        *market.Service
	payments   *payment.Adapter
	verifier   auth.Verifier
	local      *auth.LocalProvider
	hub        *realtime.Hub
	classifier Classifier
	advisor    Advisor
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		svc:        d.Market,
		payments:   d.Payments,
		verifier:   d.Verifier,
		local:      d.Local,
		hub:        d.Hub,
		classifier: d.Classifier,
		advisor:    d.Advisor,
		log:        log,
		metrics:    d.Metrics,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.Handler())

	if s.local != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.handleSignUp)
			r.Post("/signin", s.handleSignIn)
			r.Post("/signout", s.handleSignOut)
		})
	}

	r.Get("/api/products", s.handleListProducts)
	r.Get("/api/products/stream", s.handleProductStream)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/functions/v1/create-payment", s.handleCreatePayment)

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", s.handleMe)
			r.Get("/recyclers", s.handleListRecyclers)

			r.Post("/products", s.handleCreateProduct)
			r.Get("/seller/products", s.handleSellerProducts)
			r.Get("/seller/orders", s.handleSellerOrders)

			r.Post("/orders", s.handlePlaceOrder)
			r.Get("/orders", s.handleBuyerOrders)
			r.Post("/orders/{id}/payment", s.handleConfirmPayment)
			r.Post("/orders/{id}/start", s.handleMarkInProgress)
			r.Post("/orders/{id}/deliver", s.handleMarkDelivered)

			r.Post("/requests", s.handleCreateRequest)
			r.Post("/requests/samples", s.handleCreateSampleRequests)
			r.Get("/requests", s.handleOwnRequests)

			r.Get("/recycler/requests", s.handleAssignedRequests)
			r.Get("/recycler/requests/stream", s.handleAssignedStream)
			r.Post("/recycler/requests/{id}/accept", s.handleAccept)
			r.Post("/recycler/requests/{id}/reject", s.handleReject)
			r.Post("/recycler/requests/{id}/complete", s.handleComplete)

			r.Post("/classify", s.handleClassify)
			r.Post("/chat", s.handleChat)
		})
	})

	return r
}

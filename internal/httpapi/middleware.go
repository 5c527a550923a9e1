package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/auth"
	"github.com/safar/renew-path-trade/internal/logging"
	"github.com/safar/renew-path-trade/internal/models"
)

// Caller is the authenticated identity behind a request. Profile is nil when
// Degraded is set: the identity is known but its profile could not be loaded.
type Caller struct {
	Identity auth.Identity
	Profile  *models.Profile
	Degraded bool
}

type callerKey struct{}

func callerFrom(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerKey{}).(*Caller)
	return c
}

// observe attaches a request-scoped logger and records the request in the
// access log and HTTP metrics once it completes.
func (s *Server) observe(next http.Handler) http.Handler {
	prop := otel.GetTextMapPropagator()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		fields := []zap.Field{
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
		}
		log := s.log.With(fields...)
		ctx = logging.ContextWithLogger(ctx, log)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		s.metrics.HTTPRequest(route, r.Method, status, elapsed)
		log.Info("http_request",
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", elapsed),
		)
	})
}

// authenticate resolves the bearer token to an identity and loads its
// profile. A profile failure does not fail the request; the caller is marked
// degraded and role-gated handlers answer 403.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := auth.BearerToken(r)
		if !ok {
			respondError(w, r, apperr.Auth("missing bearer token"))
			return
		}

		identity, err := s.verifier.Verify(ctx, token)
		if err != nil {
			respondError(w, r, err)
			return
		}

		caller := &Caller{Identity: identity}
		profile, err := s.svc.ResolveProfile(ctx, identity)
		if err != nil {
			logging.FromContext(ctx, s.log).Warn("profile_resolution_degraded",
				zap.String("user_id", identity.ID),
				zap.Error(err),
			)
			caller.Degraded = true
		} else {
			caller.Profile = profile
		}

		log := logging.FromContext(ctx, s.log).With(zap.String("user_id", identity.ID))
		ctx = logging.ContextWithLogger(ctx, log)
		ctx = context.WithValue(ctx, callerKey{}, caller)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/logging"
	"github.com/safar/renew-path-trade/internal/market"
	"github.com/safar/renew-path-trade/internal/realtime"
	"github.com/safar/renew-path-trade/internal/store"
)

func (s *Server) handleProductStream(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, realtime.Filter{Table: store.TableProducts}, "products", func(ctx context.Context) (any, error) {
		return s.svc.ListAvailable(ctx)
	})
}

func (s *Server) handleAssignedStream(w http.ResponseWriter, r *http.Request) {
	recycler, err := s.svc.AsRecycler(callerFrom(r.Context()).Profile)
	if err != nil {
		respondError(w, r, err)
		return
	}

	scope := market.Scope(r.URL.Query().Get("scope"))
	if _, err := recycler.Assigned(r.Context(), scope); err != nil {
		respondError(w, r, err)
		return
	}

	filter := realtime.Filter{Table: store.TableRequests, RecyclerID: recycler.ID()}
	s.stream(w, r, filter, "requests", func(ctx context.Context) (any, error) {
		return recycler.Assigned(ctx, scope)
	})
}

// stream serves a Server-Sent Events response that carries the full result of
// load once on connect and again after every change matching filter. It
// returns when the client goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, filter realtime.Filter, event string, load func(context.Context) (any, error)) {
	log := logging.FromContext(r.Context(), s.log)
	rc := http.NewResponseController(w)

	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn("stream_deadline_reset_failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Warn("stream_flush_unsupported", zap.Error(err))
		return
	}

	err := realtime.Watch(r.Context(), s.hub, filter, func(ctx context.Context) error {
		items, err := load(ctx)
		if err != nil {
			return err
		}
		data, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event, err)
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err != nil && r.Context().Err() == nil {
		log.Warn("stream_ended", zap.String("event", event), zap.Error(err))
		data, _ := json.Marshal(map[string]string{"error": "stream interrupted"})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		rc.Flush()
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/logging"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.FromContext(r.Context(), zap.NewNop()).Warn("response_encode_failed", zap.Error(err))
	}
}

// respondError renders err as {"error": "..."} with the status of its class.
// Unclassified errors are logged and reported without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()

	log := logging.FromContext(r.Context(), zap.NewNop())
	switch {
	case status == http.StatusInternalServerError:
		log.Error("request_failed", zap.Error(err))
		message = "internal server error"
	case status >= 500:
		log.Warn("request_failed", zap.Int("status", status), zap.Error(err))
	}

	respondJSON(w, r, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}

package httpapi

import (
	"net/http"

	"github.com/safar/renew-path-trade/internal/advisor"
	"github.com/safar/renew-path-trade/internal/apperr"
)

const maxUploadBytes = 10 << 20

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<16)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, r, apperr.Validation("expected a multipart upload with a file field"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, apperr.Validation("file is required"))
		return
	}
	defer file.Close()

	predictions, err := s.classifier.Classify(r.Context(), header.Filename, file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"predictions": predictions})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Messages []advisor.Message `json:"messages"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	reply, err := s.advisor.Reply(r.Context(), in.Messages)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"reply": reply})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// IdentifyHandler handles one-shot identification.
type IdentifyHandler struct {
	svc *recognition.Service
}

// NewIdentifyHandler creates a new identify handler.
func NewIdentifyHandler(svc *recognition.Service) *IdentifyHandler {
	return &IdentifyHandler{svc: svc}
}

// IdentifyRequest identifies a precomputed embedding. Threshold overrides the
// server threshold when set.
type IdentifyRequest struct {
	Embedding []float32 `json:"embedding"`
	Threshold *float64  `json:"threshold,omitempty"`
}

// Identify matches an embedding against the gallery.
func (h *IdentifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	var req IdentifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	threshold := h.svc.Threshold()
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	res, err := h.svc.IdentifyAt(r.Context(), req.Embedding, threshold)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newResultResponse(res))
}

// IdentifyImage extracts the face from the raw image body and identifies it.
// The optional "threshold" query parameter overrides the server threshold.
func (h *IdentifyHandler) IdentifyImage(w http.ResponseWriter, r *http.Request) {
	threshold := h.svc.Threshold()
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = t
	}

	data, err := readImage(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	emb, err := h.svc.Extract(r.Context(), data)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	res, err := h.svc.IdentifyAt(r.Context(), emb, threshold)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newResultResponse(res))
}

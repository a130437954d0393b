package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// GalleryHandler handles gallery administration endpoints.
type GalleryHandler struct {
	svc *recognition.Service
	log *logger.Logger
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(svc *recognition.Service, log *logger.Logger) *GalleryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GalleryHandler{svc: svc, log: log}
}

// IdentityResponse summarizes the records enrolled under one name.
type IdentityResponse struct {
	Name    string `json:"name"`
	Records int    `json:"records"`
}

// GalleryResponse describes the gallery contents.
type GalleryResponse struct {
	Records    int                `json:"records"`
	Dim        int                `json:"dim"`
	Identities []IdentityResponse `json:"identities"`
}

// List returns the enrolled identities in first-enrolled order.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	records := h.svc.Gallery().Snapshot()

	counts := make(map[string]int)
	identities := []IdentityResponse{}
	for _, rec := range records {
		if counts[rec.Name] == 0 {
			identities = append(identities, IdentityResponse{Name: rec.Name})
		}
		counts[rec.Name]++
	}
	for i := range identities {
		identities[i].Records = counts[identities[i].Name]
	}

	dim := 0
	if len(records) > 0 {
		dim = records[0].Dim()
	}
	respondJSON(w, http.StatusOK, GalleryResponse{
		Records:    len(records),
		Dim:        dim,
		Identities: identities,
	})
}

// EnrollRequest enrolls either a precomputed embedding or a base64 image.
type EnrollRequest struct {
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding,omitempty"`
	Image     []byte    `json:"image,omitempty"`
}

// EnrollResponse reports a stored record.
type EnrollResponse struct {
	Name    string `json:"name"`
	Dim     int    `json:"dim"`
	Records int    `json:"records"`
}

// Enroll stores a new record.
func (h *GalleryHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if (req.Embedding == nil) == (req.Image == nil) {
		respondError(w, http.StatusBadRequest, "exactly one of embedding or image is required")
		return
	}

	var (
		rec face.Record
		err error
	)
	if req.Image != nil {
		rec, err = h.svc.EnrollImage(r.Context(), req.Name, req.Image)
	} else {
		rec, err = h.svc.Enroll(r.Context(), req.Name, req.Embedding)
	}
	if err != nil {
		h.log.Warn("enrollment rejected", "error", sanitizeForLog(err.Error()))
		respondDomainError(w, err)
		return
	}

	g := h.svc.Gallery()
	respondJSON(w, http.StatusCreated, EnrollResponse{
		Name:    rec.Name,
		Dim:     g.Dim(),
		Records: g.Len(),
	})
}

// Remove deletes every record enrolled under the name in the URL.
func (h *GalleryHandler) Remove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing name")
		return
	}

	removed, err := h.svc.Remove(r.Context(), name)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"removed": removed,
	})
}

// SimilarRequest asks for the records closest to an embedding.
type SimilarRequest struct {
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit,omitempty"`
}

// SimilarResponse lists the nearest records, closest first.
type SimilarResponse struct {
	Candidates []matcher.Candidate `json:"candidates"`
}

// Similar lists the records nearest to an embedding.
func (h *GalleryHandler) Similar(w http.ResponseWriter, r *http.Request) {
	var req SimilarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}

	limit := req.Limit
	switch {
	case limit == 0:
		limit = constants.DefaultSimilarLimit
	case limit < 0:
		respondError(w, http.StatusBadRequest, "limit must be positive")
		return
	case limit > constants.MaxSimilarLimit:
		limit = constants.MaxSimilarLimit
	}

	candidates, err := h.svc.Gallery().Nearest(req.Embedding, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if candidates == nil {
		candidates = []matcher.Candidate{}
	}
	respondJSON(w, http.StatusOK, SimilarResponse{Candidates: candidates})
}

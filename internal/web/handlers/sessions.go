package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// SessionsHandler handles attendance session endpoints.
type SessionsHandler struct {
	manager *SessionManager
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(m *SessionManager) *SessionsHandler {
	return &SessionsHandler{manager: m}
}

// CreateSessionRequest overrides the confirmation settings of a new session.
type CreateSessionRequest struct {
	ConfirmFrames int      `json:"confirm_frames,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`
}

// Create opens an attendance session. The body is optional.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	s, err := h.manager.Create(req.ConfirmFrames, req.MinConfidence)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, s.Info())
}

// lookup resolves the {id} URL parameter. On failure it writes the error
// response and returns nil.
func (h *SessionsHandler) lookup(w http.ResponseWriter, r *http.Request) *AttendanceSession {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session ID")
		return nil
	}
	s := h.manager.Get(id)
	if s == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return s
}

// Get returns the session state and its recorded events.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	respondJSON(w, http.StatusOK, s.Info())
}

// ObserveRequest carries one frame, either as an embedding or a base64 image.
type ObserveRequest struct {
	Embedding []float32 `json:"embedding,omitempty"`
	Image     []byte    `json:"image,omitempty"`
}

// Observe feeds one frame to the session.
func (h *SessionsHandler) Observe(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}

	var req ObserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if (req.Embedding == nil) == (req.Image == nil) {
		respondError(w, http.StatusBadRequest, "exactly one of embedding or image is required")
		return
	}

	out := s.Observe(r.Context(), recognition.Frame{Image: req.Image, Embedding: req.Embedding})
	if out.Err != nil && out.Event == nil {
		respondDomainError(w, out.Err)
		return
	}
	respondJSON(w, http.StatusOK, newOutcomeResponse(out))
}

// Events streams session events via SSE until the session ends or the client
// disconnects.
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := s.AddListener()
	defer s.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, EventStatus, SessionEvent{Type: EventStatus, Data: s.Info()})
	streamSSEEvents(w, r, flusher, eventCh)
}

// EndSessionResponse lists the events of an ended session.
type EndSessionResponse struct {
	ID     uuid.UUID          `json:"id"`
	Events []attendance.Event `json:"events"`
}

// End closes the session.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}
	events, ok := h.manager.End(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, EndSessionResponse{ID: id, Events: events})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

var errEmptyImage = errors.New("empty image")

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError sends err with the status code matching its kind.
func respondDomainError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

// statusFor maps recognition errors to HTTP status codes.
func statusFor(err error) int {
	var mismatch *matcher.DimensionMismatchError
	switch {
	case errors.Is(err, gallery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, face.ErrInvalidEmbedding),
		errors.Is(err, face.ErrInvalidName),
		errors.Is(err, matcher.ErrInvalidThreshold),
		errors.Is(err, errEmptyImage),
		errors.As(err, &mismatch):
		return http.StatusBadRequest
	case errors.Is(err, extractor.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, recognition.ErrNoExtractor):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a size-limited JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// readImage reads a size-limited raw image request body.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errEmptyImage
	}
	return data, nil
}

// ResultResponse is the JSON form of a match result.
type ResultResponse struct {
	Name       string   `json:"name"`
	Distance   *float64 `json:"distance"` // null when the gallery is empty
	Confidence float64  `json:"confidence"`
	Classified bool     `json:"classified"`
	Index      int      `json:"index"`
}

func newResultResponse(res matcher.Result) ResultResponse {
	out := ResultResponse{
		Name:       res.Name,
		Confidence: res.Confidence(),
		Classified: res.Classified,
		Index:      res.Index,
	}
	if !math.IsInf(res.Distance, 0) && !math.IsNaN(res.Distance) {
		d := res.Distance
		out.Distance = &d
	}
	return out
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

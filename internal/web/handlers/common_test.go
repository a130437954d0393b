package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

func TestRespondJSON_SetsStatusAndContentType(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"OK", http.StatusOK},
		{"Created", http.StatusCreated},
		{"BadRequest", http.StatusBadRequest},
		{"NotFound", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.statusCode, map[string]string{"status": "ok"})

			assertStatusCode(t, recorder, tc.statusCode)
			assertContentType(t, recorder, "application/json")
		})
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusNoContent, nil)

	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError_ContainsErrorKey(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondError(recorder, http.StatusBadRequest, "something went wrong")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "something went wrong")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("%w: %q", gallery.ErrNotFound, "Carol"), http.StatusNotFound},
		{"invalid embedding", face.ErrInvalidEmbedding, http.StatusBadRequest},
		{"gallery dimension", &gallery.InvalidEmbeddingError{Expected: 128, Actual: 512}, http.StatusBadRequest},
		{"probe dimension", &matcher.DimensionMismatchError{Index: 0, Expected: 2, Actual: 3}, http.StatusBadRequest},
		{"invalid name", face.ErrInvalidName, http.StatusBadRequest},
		{"invalid threshold", matcher.ErrInvalidThreshold, http.StatusBadRequest},
		{"no face", extractor.ErrNoFaceDetected, http.StatusUnprocessableEntity},
		{"no extractor", recognition.ErrNoExtractor, http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("extracting embedding: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"corrupt gallery", gallery.ErrCorruptStore, http.StatusInternalServerError},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestNewResultResponse(t *testing.T) {
	t.Run("empty gallery has null distance", func(t *testing.T) {
		resp := newResultResponse(matcher.UnknownResult())
		if resp.Distance != nil {
			t.Errorf("expected nil distance, got %v", *resp.Distance)
		}
		if resp.Index != -1 || resp.Classified || resp.Name != face.Unknown {
			t.Errorf("unexpected response %+v", resp)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !strings.Contains(string(data), `"distance":null`) {
			t.Errorf("expected null distance in %s", data)
		}
	})

	t.Run("match", func(t *testing.T) {
		resp := newResultResponse(matcher.Result{Name: "Alice", Distance: 0.25, Classified: true, Index: 3})
		if resp.Distance == nil || *resp.Distance != 0.25 {
			t.Fatalf("expected distance 0.25, got %v", resp.Distance)
		}
		if math.Abs(resp.Confidence-0.75) > 1e-12 {
			t.Errorf("expected confidence 0.75, got %v", resp.Confidence)
		}
	})
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("Alice\r\nlevel=ERROR"); got != "Alicelevel=ERROR" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"embedding":[1],"bogus":true}`))
		var v IdentifyRequest
		if err := decodeJSON(httptest.NewRecorder(), req, &v); err == nil {
			t.Error("expected error for unknown field")
		}
	})

	t.Run("body too large", func(t *testing.T) {
		body := `{"name":"` + strings.Repeat("a", constants.MaxUploadBytes) + `"}`
		req := httptest.NewRequest("POST", "/", strings.NewReader(body))
		var v EnrollRequest
		if err := decodeJSON(httptest.NewRecorder(), req, &v); err == nil {
			t.Error("expected error for oversized body")
		}
	})
}

func TestReadImage_Empty(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(""))
	if _, err := readImage(httptest.NewRecorder(), req); !errors.Is(err, errEmptyImage) {
		t.Errorf("expected errEmptyImage, got %v", err)
	}
}

func TestHealthCheck_ReturnsStatusOk(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	recorder := httptest.NewRecorder()

	HealthCheck(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", result["status"])
	}
}

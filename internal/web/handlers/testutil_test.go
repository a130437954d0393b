package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

var (
	aliceEmbedding = []float32{1, 0, 0}
	bobEmbedding   = []float32{0, 1, 0}
)

// testImages maps fake image payloads to the embeddings the test extractor returns.
var testImages = map[string][]float32{
	"alice.jpg": aliceEmbedding,
	"bob.jpg":   bobEmbedding,
}

func testExtractor() extractor.Extractor {
	return extractor.Func(func(_ context.Context, image []byte) ([]float32, error) {
		emb, ok := testImages[string(image)]
		if !ok {
			return nil, extractor.ErrNoFaceDetected
		}
		return emb, nil
	})
}

// newTestService creates a service over a temporary gallery holding Alice and Bob.
func newTestService(t *testing.T) *recognition.Service {
	t.Helper()
	store := gallery.New(filepath.Join(t.TempDir(), "gallery.fgal"))
	enroll := []struct {
		name string
		emb  []float32
	}{
		{"Alice", aliceEmbedding},
		{"Bob", bobEmbedding},
	}
	for _, e := range enroll {
		if _, err := store.Enroll(context.Background(), e.name, e.emb); err != nil {
			t.Fatalf("enrolling %s: %v", e.name, err)
		}
	}
	svc, err := recognition.NewService(store, 0.4, recognition.WithExtractor(testExtractor()))
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	return svc
}

// newEmptyService creates a service over an empty temporary gallery.
func newEmptyService(t *testing.T) *recognition.Service {
	t.Helper()
	svc, err := recognition.NewService(gallery.New(filepath.Join(t.TempDir(), "gallery.fgal")), 0.4)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	return svc
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

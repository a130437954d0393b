package recognition

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// fakeExtractor maps image bytes to embeddings; unknown images have no face.
type fakeExtractor map[string][]float32

func (f fakeExtractor) Extract(_ context.Context, image []byte) ([]float32, error) {
	emb, ok := f[string(image)]
	if !ok {
		return nil, extractor.ErrNoFaceDetected
	}
	return emb, nil
}

func newTestService(t *testing.T, threshold float64, opts ...Option) *Service {
	t.Helper()
	store := gallery.New(filepath.Join(t.TempDir(), "gallery.fgal"))
	svc, err := NewService(store, threshold, opts...)
	require.NoError(t, err)
	return svc
}

func TestNewService_InvalidThreshold(t *testing.T) {
	_, err := NewService(gallery.New(filepath.Join(t.TempDir(), "g")), -0.5)
	assert.ErrorIs(t, err, matcher.ErrInvalidThreshold)
}

func TestService_AliceBobScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0.1, WithMetrics(metrics.New()))

	_, err := svc.Enroll(ctx, "Alice", []float32{1, 0})
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, "Bob", []float32{0, 1})
	require.NoError(t, err)

	res, err := svc.Identify(ctx, []float32{0.99, 0.14})
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.Name)
	assert.True(t, res.Classified)
	assert.InDelta(t, 0.01, res.Distance, 0.005)

	res, err = svc.Identify(ctx, []float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, "Bob", res.Name)
	assert.Zero(t, res.Distance)
}

func TestService_IdentifyEmptyGallery(t *testing.T) {
	svc := newTestService(t, 0.4)
	res, err := svc.Identify(context.Background(), []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, matcher.UnknownResult(), res)
}

func TestService_ImageOperations(t *testing.T) {
	ctx := context.Background()
	ex := fakeExtractor{"alice.jpg": {1, 0, 0}, "alice2.jpg": {0.98, 0.05, 0}, "bob.jpg": {0, 0, 1}}
	svc := newTestService(t, 0.2, WithExtractor(ex))

	rec, err := svc.EnrollImage(ctx, "Alice", []byte("alice.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "Alice", rec.Name)

	res, err := svc.IdentifyImage(ctx, []byte("alice2.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.Name)

	res, err = svc.IdentifyImage(ctx, []byte("bob.jpg"))
	require.NoError(t, err)
	assert.False(t, res.Classified)
	assert.Equal(t, face.Unknown, res.Name)

	_, err = svc.IdentifyImage(ctx, []byte("empty-room.jpg"))
	assert.ErrorIs(t, err, extractor.ErrNoFaceDetected)

	_, err = svc.EnrollImage(ctx, "", []byte("bob.jpg"))
	assert.ErrorIs(t, err, face.ErrInvalidName)
}

func TestService_ExtractorFailureIsWrapped(t *testing.T) {
	boom := errors.New("connection refused")
	svc := newTestService(t, 0.4, WithExtractor(extractor.Func(func(context.Context, []byte) ([]float32, error) {
		return nil, boom
	})))

	_, err := svc.IdentifyImage(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "extracting embedding")
}

func TestService_NoExtractor(t *testing.T) {
	svc := newTestService(t, 0.4)
	_, err := svc.IdentifyImage(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNoExtractor)
}

func TestService_EnrollCancelledBeforeStart(t *testing.T) {
	svc := newTestService(t, 0.4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Enroll(ctx, "Alice", []float32{1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, svc.Gallery().Len())
}

func TestService_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0.4)
	_, err := svc.Enroll(ctx, "Alice", []float32{1, 0})
	require.NoError(t, err)

	_, err = svc.Identify(ctx, []float32{1, 0, 0})
	var dm *matcher.DimensionMismatchError
	assert.ErrorAs(t, err, &dm)

	_, err = svc.Enroll(ctx, "Bob", []float32{1, 0, 0})
	assert.ErrorIs(t, err, face.ErrInvalidEmbedding)
}

func TestService_Remove(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0.4)
	_, err := svc.Enroll(ctx, "Alice", []float32{1, 0})
	require.NoError(t, err)

	n, err := svc.Remove(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Remove(ctx, "alice")
	assert.ErrorIs(t, err, gallery.ErrNotFound)
}

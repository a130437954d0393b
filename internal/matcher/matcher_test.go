package matcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/face"
)

func normalized(v ...float32) []float32 {
	var n float64
	for _, x := range v {
		n += float64(x) * float64(x)
	}
	n = math.Sqrt(n)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

func aliceBob() []face.Record {
	return []face.Record{
		{Name: "Alice", Embedding: []float32{1, 0}},
		{Name: "Bob", Embedding: []float32{0, 1}},
	}
}

func TestIdentify_AliceBobScenario(t *testing.T) {
	records := aliceBob()

	res, err := Identify(normalized(0.99, 0.14), records, 0.1)
	require.NoError(t, err)
	assert.True(t, res.Classified)
	assert.Equal(t, "Alice", res.Name)
	assert.Equal(t, 0, res.Index)
	assert.InDelta(t, 0.01, res.Distance, 0.001)

	res, err = Identify([]float32{0, 1}, records, 0.1)
	require.NoError(t, err)
	assert.True(t, res.Classified)
	assert.Equal(t, "Bob", res.Name)
	assert.Equal(t, 0.0, res.Distance)
}

func TestIdentify_EmptyGallery(t *testing.T) {
	probes := [][]float32{{1, 0}, nil, {float32(math.NaN())}}
	for _, probe := range probes {
		res, err := Identify(probe, nil, 0.4)
		require.NoError(t, err)
		assert.False(t, res.Classified)
		assert.Equal(t, face.Unknown, res.Name)
		assert.True(t, math.IsInf(res.Distance, 1))
		assert.Equal(t, -1, res.Index)
		assert.Equal(t, 0.0, res.Confidence())
	}
}

func TestIdentify_AboveThresholdIsUnknown(t *testing.T) {
	res, err := Identify(normalized(1, 1), aliceBob(), 0.1)
	require.NoError(t, err)
	assert.False(t, res.Classified)
	assert.Equal(t, face.Unknown, res.Name)
	assert.InDelta(t, 1-math.Sqrt2/2, res.Distance, 1e-6)
	assert.Equal(t, 0, res.Index, "nearest record is still reported")
}

func TestIdentify_ThresholdIsInclusive(t *testing.T) {
	res, err := Identify([]float32{0, 1}, aliceBob(), 0)
	require.NoError(t, err)
	assert.True(t, res.Classified)
	assert.Equal(t, "Bob", res.Name)
}

func TestIdentify_SelfMatchAtZeroThreshold(t *testing.T) {
	emb := []float32{0.31, -0.77, 0.12, 0.54, -0.02}
	records := []face.Record{
		{Name: "Carol", Embedding: []float32{0.9, 0.1, 0.1, 0.1, 0.1}},
		{Name: "Dave", Embedding: emb},
	}

	res, err := Identify(emb, records, 0)
	require.NoError(t, err)
	assert.True(t, res.Classified)
	assert.Equal(t, "Dave", res.Name)
	assert.InDelta(t, 0, res.Distance, 1e-12)
}

func TestIdentify_TieBreakFirstWins(t *testing.T) {
	records := []face.Record{
		{Name: "First", Embedding: []float32{1, 0}},
		{Name: "Second", Embedding: []float32{2, 0}},
		{Name: "Third", Embedding: []float32{1, 0}},
	}

	res, err := Identify([]float32{3, 0}, records, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "First", res.Name)
	assert.Equal(t, 0, res.Index)
}

func TestIdentify_Discriminates(t *testing.T) {
	records := []face.Record{
		{Name: "Erin", Embedding: normalized(1, 0.2, 0)},
		{Name: "Frank", Embedding: normalized(0, 0.3, 1)},
	}

	res, err := Identify(normalized(0.01, 0.31, 1), records, 0.2)
	require.NoError(t, err)
	assert.True(t, res.Classified)
	assert.Equal(t, "Frank", res.Name)
}

func TestIdentify_MonotonicInThreshold(t *testing.T) {
	records := []face.Record{
		{Name: "A", Embedding: normalized(1, 0, 0)},
		{Name: "B", Embedding: normalized(0, 1, 0)},
		{Name: "C", Embedding: normalized(0, 0, 1)},
	}
	probes := [][]float32{
		normalized(1, 0.1, 0),
		normalized(0.5, 0.5, 0.1),
		normalized(-1, 0.2, 0.3),
		normalized(0.1, 0.1, 0.9),
	}
	thresholds := []float64{0, 0.01, 0.05, 0.1, 0.3, 0.6, 1, 1.5, 2}

	for _, probe := range probes {
		for i := 0; i+1 < len(thresholds); i++ {
			lo, err := Identify(probe, records, thresholds[i])
			require.NoError(t, err)
			hi, err := Identify(probe, records, thresholds[i+1])
			require.NoError(t, err)

			assert.Equal(t, lo.Distance, hi.Distance)
			if lo.Classified {
				assert.True(t, hi.Classified, "classified at %v but not at %v", thresholds[i], thresholds[i+1])
				assert.Equal(t, lo.Name, hi.Name)
			}
		}
	}
}

func TestIdentify_InvalidThreshold(t *testing.T) {
	for _, threshold := range []float64{-0.1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Identify([]float32{1, 0}, aliceBob(), threshold)
		assert.ErrorIs(t, err, ErrInvalidThreshold, "threshold %v", threshold)
	}

	_, err := Identify([]float32{1, 0}, nil, -1)
	assert.ErrorIs(t, err, ErrInvalidThreshold, "checked before the empty-gallery shortcut")
}

func TestIdentify_DimensionMismatch(t *testing.T) {
	records := []face.Record{
		{Name: "Alice", Embedding: []float32{1, 0}},
		{Name: "Broken", Embedding: []float32{1, 0, 0}},
	}

	_, err := Identify([]float32{1, 0}, records, 0.4)
	var dm *DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 1, dm.Index)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
}

func TestIdentify_InvalidProbe(t *testing.T) {
	tests := []struct {
		name      string
		probe     []float32
		threshold float64
	}{
		{"NaN component", []float32{float32(math.NaN()), 0}, 0.4},
		{"infinite component", []float32{float32(math.Inf(1)), 0}, 0.4},
		{"zero vector", []float32{0, 0}, 0.4},
		{"zero vector at widest threshold", []float32{0, 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Identify(tt.probe, aliceBob(), tt.threshold)
			assert.ErrorIs(t, err, face.ErrInvalidEmbedding)
			assert.False(t, res.Classified)
		})
	}
}

func TestResultConfidence(t *testing.T) {
	assert.Equal(t, 1.0, Result{Distance: 0}.Confidence())
	assert.InDelta(t, 0.75, Result{Distance: 0.25}.Confidence(), 1e-12)
	assert.Equal(t, 0.0, Result{Distance: 1.5}.Confidence())
}

// Package matcher decides which enrolled identity, if any, a probe embedding belongs to.
package matcher

import (
	"fmt"
	"math"

	"github.com/kozaktomas/face-attendance/internal/face"
)

// Result is the outcome of identifying one probe.
type Result struct {
	Name       string  `json:"name"`
	Distance   float64 `json:"distance"`
	Classified bool    `json:"classified"`
	Index      int     `json:"index"` // gallery position of the nearest record, -1 for an empty gallery
}

// Confidence maps the distance to [0, 1], 1 meaning identical direction.
func (r Result) Confidence() float64 {
	if math.IsInf(r.Distance, 1) {
		return 0
	}
	return max(0, min(1, 1-r.Distance))
}

// UnknownResult is returned when the gallery has no records.
func UnknownResult() Result {
	return Result{Name: face.Unknown, Distance: math.Inf(1), Index: -1}
}

// ValidateThreshold checks that threshold is a non-negative finite number.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// Identify compares probe against every record and classifies the nearest one.
//
// The record with the minimum cosine distance wins; on exact ties the earliest
// record in gallery order is kept. The probe is classified as that record's name
// when the distance is <= threshold, otherwise as face.Unknown. An empty gallery
// always yields UnknownResult.
func Identify(probe []float32, records []face.Record, threshold float64) (Result, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return Result{}, err
	}
	if len(records) == 0 {
		return UnknownResult(), nil
	}
	if err := face.ValidateEmbedding(probe); err != nil {
		return Result{}, fmt.Errorf("probe: %w", err)
	}
	if face.IsZero(probe) {
		return Result{}, fmt.Errorf("probe: %w: zero vector", face.ErrInvalidEmbedding)
	}

	best := -1
	bestDistance := math.Inf(1)
	for i := range records {
		emb := records[i].Embedding
		if len(emb) != len(probe) {
			return Result{}, &DimensionMismatchError{Index: i, Expected: len(probe), Actual: len(emb)}
		}
		d := CosineDistance(probe, emb)
		if d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	if bestDistance <= threshold {
		return Result{Name: records[best].Name, Distance: bestDistance, Classified: true, Index: best}, nil
	}
	return Result{Name: face.Unknown, Distance: bestDistance, Index: best}, nil
}

// Candidate is a record paired with its distance to a probe.
type Candidate struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// Package extractor turns face images into embeddings using an external
// embedding service.
package extractor

import (
	"context"
	"errors"
)

// ErrNoFaceDetected is returned when the image holds no detectable face.
var ErrNoFaceDetected = errors.New("no face detected")

// Extractor produces one embedding for the most prominent face in an image.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]float32, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, image []byte) ([]float32, error)

func (f Func) Extract(ctx context.Context, image []byte) ([]float32, error) { return f(ctx, image) }

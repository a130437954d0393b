package gallery

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/face"
)

var (
	// ErrCorruptStore is returned when a gallery file exists but cannot be decoded.
	ErrCorruptStore = errors.New("corrupt gallery store")

	// ErrNotFound is returned when no record carries the requested name.
	ErrNotFound = errors.New("identity not found")
)

// InvalidEmbeddingError reports an embedding whose length differs from the
// dimensionality established by the gallery.
//
// It unwraps to face.ErrInvalidEmbedding.
type InvalidEmbeddingError struct {
	Expected int
	Actual   int
}

func (e *InvalidEmbeddingError) Error() string {
	return fmt.Sprintf("invalid embedding: gallery holds %d-dimensional vectors, got %d", e.Expected, e.Actual)
}

func (e *InvalidEmbeddingError) Unwrap() error { return face.ErrInvalidEmbedding }

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptStore, fmt.Sprintf(format, args...))
}

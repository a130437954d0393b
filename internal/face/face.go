// Package face holds the value types shared by the gallery, the matcher and the
// attendance workflow.
package face

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"unicode/utf8"
)

// Unknown is the name reported for a probe that did not match any enrolled identity.
const Unknown = "unknown"

// ErrInvalidEmbedding is returned for embeddings that are empty, contain
// non-finite values or do not fit the gallery's dimensionality.
var ErrInvalidEmbedding = errors.New("invalid embedding")

// ErrInvalidName is returned for identity names that cannot be enrolled.
var ErrInvalidName = errors.New("invalid identity name")

// Record is one enrolled identity sample. Several records may share a name.
type Record struct {
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record{Name: r.Name, Embedding: slices.Clone(r.Embedding)}
}

// Dim returns the embedding length.
func (r Record) Dim() int {
	return len(r.Embedding)
}

// ValidateEmbedding checks that an embedding is non-empty and holds only finite values.
func ValidateEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	for i, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidEmbedding, i)
		}
	}
	return nil
}

// ValidateName checks that a name can label an identity.
// The reserved Unknown label is rejected so it never collides with a real match.
func ValidateName(name string) error {
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: name is not valid UTF-8", ErrInvalidName)
	}
	cleaned := CleanName(name)
	if cleaned == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if FoldName(cleaned) == Unknown {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, Unknown)
	}
	if len(cleaned) > MaxNameBytes {
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidName, MaxNameBytes)
	}
	return nil
}

// IsZero reports whether every component of embedding is zero.
func IsZero(embedding []float32) bool {
	for _, v := range embedding {
		if v != 0 {
			return false
		}
	}
	return true
}

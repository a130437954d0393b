// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Matching constants
const (
	// DefaultThreshold is the maximum cosine distance accepted as a match when
	// neither MATCH_THRESHOLD nor the model profile provides one.
	// Lower values = stricter matching
	DefaultThreshold = 0.4

	// DefaultSimilarLimit is the default number of neighbors listed by similarity lookups
	DefaultSimilarLimit = 5

	// MaxSimilarLimit caps neighbor listings requested over the API
	MaxSimilarLimit = 100
)

// Confirmation constants
const (
	// DefaultConfirmFrames is the number of consecutive frames that must agree
	// on an identity before it is confirmed
	DefaultConfirmFrames = 10
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for bulk enrollment
	WorkerPoolSize = 4

	// MaxImageSize is the maximum dimension (width or height) sent to the embedding service
	MaxImageSize = 1920

	// JPEGQuality is used when re-encoding resized images
	JPEGQuality = 90
)

// Web constants
const (
	// MaxUploadBytes limits image and JSON request bodies
	MaxUploadBytes = 20 << 20

	// RequestTimeout bounds API requests other than session event streams
	RequestTimeout = 5 * time.Minute

	// EventChannelBuffer is the per-subscriber buffer of session event streams
	EventChannelBuffer = 100

	// SessionIdleTimeout is how long an attendance session may go without
	// observations before the server drops it
	SessionIdleTimeout = 2 * time.Hour
)

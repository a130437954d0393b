// Package recognition wires the extractor, the gallery and the matcher into
// the recognize, enroll and attend workflows.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// ErrNoExtractor is returned by image operations on a service built without an extractor.
var ErrNoExtractor = errors.New("no embedding extractor configured")

// Service identifies and enrolls faces against one gallery.
type Service struct {
	gallery   gallery.Writer
	extractor extractor.Extractor
	threshold float64
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithExtractor enables the image based operations.
func WithExtractor(ex extractor.Extractor) Option {
	return func(s *Service) { s.extractor = ex }
}

// WithMetrics records operation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a service matching at threshold.
func NewService(g gallery.Writer, threshold float64, opts ...Option) (*Service, error) {
	if err := matcher.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	s := &Service{
		gallery:   g,
		threshold: threshold,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Threshold returns the default match threshold.
func (s *Service) Threshold() float64 {
	return s.threshold
}

// Gallery returns the underlying gallery.
func (s *Service) Gallery() gallery.Writer {
	return s.gallery
}

// Identify matches an embedding at the service threshold.
func (s *Service) Identify(ctx context.Context, embedding []float32) (matcher.Result, error) {
	return s.IdentifyAt(ctx, embedding, s.threshold)
}

// IdentifyAt matches an embedding at an explicit threshold against the current
// gallery snapshot.
func (s *Service) IdentifyAt(_ context.Context, embedding []float32, threshold float64) (matcher.Result, error) {
	start := time.Now()
	res, err := matcher.Identify(embedding, s.gallery.Snapshot(), threshold)
	s.metrics.ObserveIdentify(time.Since(start), res, err)
	if err != nil {
		return matcher.Result{}, err
	}

	s.log.Debug("identified", "name", res.Name, "distance", res.Distance, "classified", res.Classified)
	return res, nil
}

// Extract computes the embedding of the most prominent face in image.
// extractor.ErrNoFaceDetected is returned unchanged.
func (s *Service) Extract(ctx context.Context, image []byte) ([]float32, error) {
	if s.extractor == nil {
		return nil, ErrNoExtractor
	}
	start := time.Now()
	emb, err := s.extractor.Extract(ctx, image)
	s.metrics.ObserveOp("extract", time.Since(start), err)
	if err != nil {
		if errors.Is(err, extractor.ErrNoFaceDetected) {
			return nil, err
		}
		return nil, fmt.Errorf("extracting embedding: %w", err)
	}
	return emb, nil
}

// IdentifyImage extracts the face embedding from image and identifies it.
func (s *Service) IdentifyImage(ctx context.Context, image []byte) (matcher.Result, error) {
	emb, err := s.Extract(ctx, image)
	if err != nil {
		return matcher.Result{}, err
	}
	return s.Identify(ctx, emb)
}

// Enroll stores a new record. Once the gallery write has started, cancelling
// ctx no longer interrupts it.
func (s *Service) Enroll(ctx context.Context, name string, embedding []float32) (face.Record, error) {
	if err := ctx.Err(); err != nil {
		return face.Record{}, err
	}
	start := time.Now()
	rec, err := s.gallery.Enroll(context.WithoutCancel(ctx), name, embedding)
	s.metrics.ObserveOp("enroll", time.Since(start), err)
	if err != nil {
		return face.Record{}, err
	}
	return rec, nil
}

// EnrollImage extracts the face embedding from image and enrolls it under name.
func (s *Service) EnrollImage(ctx context.Context, name string, image []byte) (face.Record, error) {
	if err := face.ValidateName(name); err != nil {
		return face.Record{}, err
	}
	emb, err := s.Extract(ctx, image)
	if err != nil {
		return face.Record{}, err
	}
	return s.Enroll(ctx, name, emb)
}

// Remove deletes every record enrolled under name.
func (s *Service) Remove(ctx context.Context, name string) (int, error) {
	start := time.Now()
	n, err := s.gallery.Remove(context.WithoutCancel(ctx), name)
	s.metrics.ObserveOp("remove", time.Since(start), err)
	return n, err
}

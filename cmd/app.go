package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// app bundles the collaborators shared by the commands.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store *gallery.Store
	svc   *recognition.Service
}

type appOptions struct {
	threshold *float64
	metrics   *metrics.Metrics
}

// loadApp reads the configuration, opens the gallery and builds the
// recognition service with the embedding client.
func loadApp(opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel)

	storeOpts := []gallery.Option{
		gallery.WithCompression(cfg.Gallery.Compress),
		gallery.WithLogger(log.With("component", "gallery")),
	}
	if opts.metrics != nil {
		storeOpts = append(storeOpts, gallery.WithChangeHook(opts.metrics.SetGalleryRecords))
	}
	store, err := gallery.Open(cfg.Gallery.Path, storeOpts...)
	if err != nil {
		return nil, err
	}
	if p, ok := cfg.Profile(); ok && store.Dim() != 0 && store.Dim() != p.Dim {
		log.Warn("gallery dimension does not match the embedding model",
			"model", cfg.Embedding.Model, "model_dim", p.Dim, "gallery_dim", store.Dim())
	}

	threshold := cfg.Threshold()
	if opts.threshold != nil {
		threshold = *opts.threshold
	}
	svc, err := recognition.NewService(store, threshold,
		recognition.WithExtractor(newExtractorClient(cfg.Embedding)),
		recognition.WithMetrics(opts.metrics),
		recognition.WithLogger(log.With("component", "recognition")),
	)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: store, svc: svc}, nil
}

// newExtractorClient builds the embedding server client. Images are downscaled
// to constants.MaxImageSize before upload.
func newExtractorClient(cfg config.EmbeddingConfig) *extractor.Client {
	return extractor.NewClient(cfg.URL, cfg.Model,
		extractor.WithTimeout(cfg.Timeout),
		extractor.WithMaxImageSize(constants.MaxImageSize),
	)
}

// thresholdFlag returns the --threshold value when it was set explicitly.
func thresholdFlag(cmd *cobra.Command) *float64 {
	if !cmd.Flags().Changed("threshold") {
		return nil
	}
	t := mustGetFloat64(cmd, "threshold")
	return &t
}

// readEmbeddingFile reads an embedding stored as a JSON array of numbers or as
// an object with an "embedding" field.
func readEmbeddingFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading embedding file: %w", err)
	}

	var emb []float32
	if err := json.Unmarshal(data, &emb); err == nil {
		return emb, nil
	}
	var wrapped struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parsing embedding file %s: %w", path, err)
	}
	if wrapped.Embedding == nil {
		return nil, fmt.Errorf("embedding file %s has no embedding", path)
	}
	return wrapped.Embedding, nil
}

var errOneInput = errors.New("exactly one of --embedding-file or --image is required")

// probeEmbedding resolves the --embedding-file or --image flag to an embedding.
func (a *app) probeEmbedding(cmd *cobra.Command) ([]float32, error) {
	embeddingFile := mustGetString(cmd, "embedding-file")
	imagePath := mustGetString(cmd, "image")

	switch {
	case (embeddingFile == "") == (imagePath == ""):
		return nil, errOneInput
	case embeddingFile != "":
		return readEmbeddingFile(embeddingFile)
	default:
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		return a.svc.Extract(cmd.Context(), data)
	}
}

// outputJSON prints data as indented JSON to stdout.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

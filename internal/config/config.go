package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	LogLevel  int             `env:"LOG_LEVEL" envDefault:"0"`
	Gallery   GalleryConfig   `envPrefix:"GALLERY_"`
	Match     MatchConfig     `envPrefix:"MATCH_"`
	Embedding EmbeddingConfig `envPrefix:"EMBEDDING_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	Storage   StorageConfig   `envPrefix:"MINIO_"`
	Web       WebConfig       `envPrefix:"WEB_"`
	Models    ModelsConfig    `env:"-"`
}

type GalleryConfig struct {
	Path     string `env:"PATH" envDefault:"data/gallery.fgal"`
	Compress bool   `env:"COMPRESS" envDefault:"false"`
}

type MatchConfig struct {
	// Threshold overrides the model profile threshold when set.
	Threshold     *float64 `env:"THRESHOLD"`
	ConfirmFrames int      `env:"CONFIRM_FRAMES" envDefault:"10"`
	MinConfidence float64  `env:"MIN_CONFIDENCE" envDefault:"0.90"`
}

type EmbeddingConfig struct {
	URL     string        `env:"URL" envDefault:"http://localhost:8000"`
	Model   string        `env:"MODEL" envDefault:"VGG-Face"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type DatabaseConfig struct {
	URL          string `env:"URL"`                          // PostgreSQL connection URL, attendance sink and gallery mirror are disabled when empty
	MaxOpenConns int    `env:"MAX_OPEN_CONNS" envDefault:"25"` // Maximum open connections
	MaxIdleConns int    `env:"MAX_IDLE_CONNS" envDefault:"5"`  // Maximum idle connections
}

// StorageConfig contains object storage parameters for gallery backups.
type StorageConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"face-attendance"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

type WebConfig struct {
	Host           string        `env:"HOST" envDefault:"0.0.0.0"`
	Port           int           `env:"PORT" envDefault:"8085"`
	APIToken       string        `env:"API_TOKEN"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	AttendanceLog  string        `env:"ATTENDANCE_LOG"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"` // zero selects constants.RequestTimeout
}

type ModelsConfig struct {
	Models map[string]ModelProfile `yaml:"models"`
}

// ModelProfile describes the embeddings produced by one recognition model.
type ModelProfile struct {
	Dim       int     `yaml:"dim"`
	Threshold float64 `yaml:"threshold"`
}

// Load reads the configuration from the environment and the embedded model profiles.
func Load() (*Config, error) {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	cfg := Config{Models: models}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Profile returns the profile of the configured embedding model.
func (c *Config) Profile() (ModelProfile, bool) {
	p, ok := c.Models.Models[c.Embedding.Model]
	return p, ok
}

// Threshold returns the effective match threshold: MATCH_THRESHOLD, then the
// model profile, then the built-in default.
func (c *Config) Threshold() float64 {
	if c.Match.Threshold != nil {
		return *c.Match.Threshold
	}
	if p, ok := c.Profile(); ok && p.Threshold > 0 {
		return p.Threshold
	}
	return constants.DefaultThreshold
}

// ServerAddr returns the host:port the web server listens on.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.Gallery.Path == "" {
		errs = append(errs, errors.New("GALLERY_PATH must not be empty"))
	}
	if err := matcher.ValidateThreshold(c.Threshold()); err != nil {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD: %w", err))
	}
	if c.Match.ConfirmFrames < 1 {
		errs = append(errs, fmt.Errorf("MATCH_CONFIRM_FRAMES must be at least 1, got %d", c.Match.ConfirmFrames))
	}
	if mc := c.Match.MinConfidence; math.IsNaN(mc) || mc < 0 || mc > 1 {
		errs = append(errs, fmt.Errorf("MATCH_MIN_CONFIDENCE must be within [0, 1], got %v", mc))
	}
	if c.Embedding.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_TIMEOUT must be positive, got %s", c.Embedding.Timeout))
	}
	if c.Web.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("WEB_REQUEST_TIMEOUT must not be negative, got %s", c.Web.RequestTimeout))
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("WEB_PORT out of range: %d", c.Web.Port))
	}
	return errors.Join(errs...)
}

package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"skymosaic/internal/models"
)

// Config holds all runtime configuration for the mosaic pipeline.
type Config struct {
	// Region and time range
	LonMin    float64 `env:"BBOX_LON_MIN,default=34.9"`
	LatMin    float64 `env:"BBOX_LAT_MIN,default=31.0"`
	LonMax    float64 `env:"BBOX_LON_MAX,default=35.8"`
	LatMax    float64 `env:"BBOX_LAT_MAX,default=32.0"`
	StartDate string  `env:"START_DATE,default=2000-11-01"`
	EndDate   string  `env:"END_DATE,default=2025-11-30"`

	// Image-compute service
	ComputeBaseURL string `env:"COMPUTE_BASE_URL,default=https://imagecompute.example.com/v1"`
	ComputeToken   string `env:"COMPUTE_TOKEN"`

	// Output
	OutputDir    string `env:"OUTPUT_DIR,default=./mosaic_outputs"`
	OutputPrefix string `env:"OUTPUT_PREFIX,default=mosaic"`
	ManifestName string `env:"MANIFEST_NAME,default=mosaic_manifest.csv"`

	// GCP mirroring (optional; local only when unset)
	GCSBucket string `env:"GCS_BUCKET"`

	// Processing
	TargetResolutionM float64 `env:"TARGET_RESOLUTION_M,default=5.0"`
	Workers           int     `env:"WORKERS,default=3"`

	// Per-source toggles
	IncludeLandsat7 bool `env:"INCLUDE_LANDSAT7,default=true"`
	IncludeMODIS    bool `env:"INCLUDE_MODIS,default=true"`
	IncludeASTER    bool `env:"INCLUDE_ASTER,default=true"`
	IncludeVIIRS    bool `env:"INCLUDE_VIIRS,default=true"`
	Harmonize       bool `env:"HARMONIZE,default=true"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Load loads configuration from environment variables.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// BBox returns the configured bounding box.
func (c *Config) BBox() models.BoundingBox {
	return models.BoundingBox{LonMin: c.LonMin, LatMin: c.LatMin, LonMax: c.LonMax, LatMax: c.LatMax}
}

// Validate checks the configuration for fatal errors. Configuration errors
// are reported immediately and are never retried.
func (c *Config) Validate() error {
	if err := c.BBox().Validate(); err != nil {
		return err
	}
	start, err := time.Parse("2006-01-02", c.StartDate)
	if err != nil {
		return fmt.Errorf("invalid START_DATE %q: %w", c.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", c.EndDate)
	if err != nil {
		return fmt.Errorf("invalid END_DATE %q: %w", c.EndDate, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("START_DATE %s must precede END_DATE %s", c.StartDate, c.EndDate)
	}
	if c.TargetResolutionM <= 0 {
		return fmt.Errorf("TARGET_RESOLUTION_M must be positive, got %g", c.TargetResolutionM)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.ComputeBaseURL == "" {
		return fmt.Errorf("COMPUTE_BASE_URL must be set")
	}
	return nil
}

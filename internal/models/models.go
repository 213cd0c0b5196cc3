package models

import (
	"fmt"
	"time"
)

// BoundingBox is a geographic extent in WGS84 lon/lat degrees.
type BoundingBox struct {
	LonMin float64 `json:"lon_min"`
	LatMin float64 `json:"lat_min"`
	LonMax float64 `json:"lon_max"`
	LatMax float64 `json:"lat_max"`
}

// Validate checks that the box is well formed and within valid coordinates.
func (b BoundingBox) Validate() error {
	if b.LonMin >= b.LonMax {
		return fmt.Errorf("invalid bounding box: lon_min %.4f >= lon_max %.4f", b.LonMin, b.LonMax)
	}
	if b.LatMin >= b.LatMax {
		return fmt.Errorf("invalid bounding box: lat_min %.4f >= lat_max %.4f", b.LatMin, b.LatMax)
	}
	if b.LonMin < -180 || b.LonMax > 180 || b.LatMin < -90 || b.LatMax > 90 {
		return fmt.Errorf("bounding box outside valid lon/lat range: %+v", b)
	}
	return nil
}

// Center returns the box center longitude and latitude.
func (b BoundingBox) Center() (lon, lat float64) {
	return (b.LonMin + b.LonMax) / 2.0, (b.LatMin + b.LatMax) / 2.0
}

// Tile is one rectangular sub-region of a job's bounding box. Tiles are
// created once per month by the tiling engine and never mutated afterwards.
type Tile struct {
	Index  int         `json:"index"`
	Bounds BoundingBox `json:"bounds"`
}

// TimeWindow is a half-open date interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the window length in whole days, never less than 1.
func (w TimeWindow) Days() int {
	d := int(w.End.Sub(w.Start).Hours() / 24)
	if d < 1 {
		return 1
	}
	return d
}

// Overlaps reports whether the window intersects [start, end]. A nil end
// means "still active".
func (w TimeWindow) Overlaps(start time.Time, end *time.Time) bool {
	if end == nil {
		return !w.End.Before(start)
	}
	return !w.Start.After(*end) && !w.End.Before(start)
}

// CandidateImage is one satellite observation considered for one tile.
// Optional quality signals are pointers: absence is a modeled case, not a
// swallowed error, and the scoring function substitutes neutral defaults.
type CandidateImage struct {
	SourceID      string     `json:"source_id"`
	ImageID       string     `json:"image_id"`
	AcquiredAt    time.Time  `json:"acquired_at"`
	CloudFraction float64    `json:"cloud_fraction"`
	ValidFraction *float64   `json:"valid_fraction,omitempty"`
	SolarZenith   *float64   `json:"solar_zenith,omitempty"`
	ViewZenith    *float64   `json:"view_zenith,omitempty"`
	ResolutionM   float64    `json:"resolution_m"`
	Bands         []string   `json:"bands"`
	Score         float64    `json:"score"`
	Degraded      bool       `json:"degraded,omitempty"`
}

// CompositeMethod names how a tile composite was assembled.
type CompositeMethod string

const (
	MethodQualityMosaic CompositeMethod = "quality_mosaic"
	MethodMedian        CompositeMethod = "median"
	MethodMean          CompositeMethod = "mean"
)

// TileStatus is the closed set of per-tile outcomes recorded in provenance.
type TileStatus string

const (
	StatusOK               TileStatus = "ok"
	StatusNoImagery        TileStatus = "no_imagery"
	StatusMissingBands     TileStatus = "missing_bands"
	StatusTileTooLarge     TileStatus = "tile_too_large"
	StatusValidationFailed TileStatus = "validation_failed"
	StatusDownloadFailed   TileStatus = "download_failed"
	StatusTimeout          TileStatus = "timeout"
	StatusError            TileStatus = "error"
)

// TileProvenance is the structured outcome for one tile of one month.
type TileProvenance struct {
	TileIndex        int         `json:"tile_index"`
	Bounds           BoundingBox `json:"bounds"`
	Status           TileStatus  `json:"status"`
	Error            string      `json:"error,omitempty"`
	ValidationReason string      `json:"validation_reason,omitempty"`
	Method           string      `json:"method,omitempty"`
	DominantSource   string      `json:"dominant_source,omitempty"`
	RasterPath       string      `json:"raster_path,omitempty"`
	MaskPath         string      `json:"mask_path,omitempty"`
}

// MonthProvenance is the per-month provenance document, one entry per tile
// keyed by tile index, serialized to provenance.json whether or not the
// month completed.
type MonthProvenance struct {
	JobID     string                  `json:"job_id"`
	Year      int                     `json:"year"`
	Month     int                     `json:"month"`
	Tiles     map[string]TileProvenance `json:"tiles"`
	Usage     map[string]int          `json:"satellite_usage"`
	Generated time.Time               `json:"generated"`
}

// MonthResult summarizes one completed (or attempted) month.
type MonthResult struct {
	Year       int
	Month      int
	MosaicPath string
	COGPath    string
	TilePaths  []string
	Provenance MonthProvenance
	Skipped    bool
}

// Package compute talks to the remote image-compute service. The service
// accepts server-side expressions describing filtered, masked, band-mapped
// and per-pixel-selected imagery over a polygon, and returns either region
// statistics or a raster byte stream.
package compute

import (
	"time"

	"skymosaic/internal/models"
)

// MaskSpec tells the service how to drop cloud and shadow pixels before
// compositing.
type MaskSpec struct {
	Strategy string `json:"strategy"` // qa_bitflags, scene_classification, state_flags
	Band     string `json:"band"`
}

// HarmonizeSpec is a linear radiometric transform applied to the listed
// bands: out = A*in + B.
type HarmonizeSpec struct {
	A     float64  `json:"a"`
	B     float64  `json:"b"`
	Bands []string `json:"bands"`
}

// DerivedBand adds a computed band, either a normalized difference of two
// inputs or a free-form arithmetic formula over named bands.
type DerivedBand struct {
	Name       string   `json:"name"`
	Normalized []string `json:"normalized_difference,omitempty"` // [plus, minus]
	Formula    string   `json:"formula,omitempty"`
}

// ImageSpec describes one prepared candidate image.
type ImageSpec struct {
	Collection  string            `json:"collection"`
	ImageID     string            `json:"image_id"`
	ScaleFactor float64           `json:"scale_factor,omitempty"`
	BandMap     map[string]string `json:"band_map,omitempty"`
	Mask        *MaskSpec         `json:"mask,omitempty"`
	Harmonize   *HarmonizeSpec    `json:"harmonize,omitempty"`
	Derived     []DerivedBand     `json:"derived,omitempty"`
	// Constant bands are added with a fixed value everywhere, used for the
	// per-image quality band the mosaic selects on.
	Constants map[string]float64 `json:"constants,omitempty"`
}

// Expression is the full server-side program for one tile composite.
type Expression struct {
	Images      []ImageSpec            `json:"images"`
	Method      models.CompositeMethod `json:"method"`
	QualityBand string                 `json:"quality_band,omitempty"`
	Region      models.BoundingBox     `json:"region"`
	CRS         string                 `json:"crs"`
	ScaleM      float64                `json:"scale_m"`
	Bands       []string               `json:"bands"`
	NoData      float64                `json:"nodata"`
	Format      string                 `json:"format"` // "GEO_TIFF" or "ZIPPED_GEO_TIFF"
}

// CatalogQuery restricts a collection to images intersecting a region and
// time range, sorted by a metadata property ascending.
type CatalogQuery struct {
	Collections []string           `json:"collections"`
	Region      models.BoundingBox `json:"region"`
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end"`
	SortBy      string             `json:"sort_by,omitempty"`
	Limit       int                `json:"limit,omitempty"`
}

// CatalogEntry is one catalog hit with the metadata properties the
// collector filters on.
type CatalogEntry struct {
	ImageID    string             `json:"image_id"`
	Collection string             `json:"collection"`
	AcquiredAt time.Time          `json:"acquired_at"`
	Properties map[string]float64 `json:"properties,omitempty"`
}

// StatsRequest asks for region statistics of one prepared image. Reducer
// is "mean", "count" or "frequency".
type StatsRequest struct {
	Image   ImageSpec          `json:"image"`
	Band    string             `json:"band"`
	Reducer string             `json:"reducer"`
	Region  models.BoundingBox `json:"region"`
	ScaleM  float64            `json:"scale_m"`
}

// Stats is the scalar answer to a StatsRequest. Value may be absent when
// the region holds no unmasked pixels.
type Stats struct {
	Value *float64 `json:"value"`
	Count int64    `json:"count"`
}

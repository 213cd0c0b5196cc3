// Package mosaic builds per-tile composites: it renders scored candidates
// into a server-side quality-mosaic expression for the compute service,
// and implements the same per-pixel selection locally for downloaded
// grids so composites can be verified and reassembled offline.
package mosaic

import (
	"fmt"

	"skymosaic/internal/compute"
	"skymosaic/internal/config"
	"skymosaic/internal/models"
	"skymosaic/internal/raster"
	"skymosaic/internal/sources"
)

// ScoredImage pairs a surviving candidate with its source profile.
type ScoredImage struct {
	Profile   *sources.Profile
	Image     models.CandidateImage
	Harmonize bool
}

// BuildExpression assembles the server-side program for one tile: each
// candidate is masked, band-mapped, optionally harmonized, extended with
// the derived index bands, and given a constant quality band equal to its
// score; the composite then selects per pixel on that band.
func BuildExpression(cands []ScoredImage, region models.BoundingBox, epsg int,
	scaleM float64, bands []string, method models.CompositeMethod) compute.Expression {

	images := make([]compute.ImageSpec, 0, len(cands))
	for _, c := range cands {
		spec := compute.ImageSpec{
			Collection:  c.Profile.Collections[0],
			ImageID:     c.Image.ImageID,
			ScaleFactor: c.Profile.ScaleFactor,
			BandMap:     c.Profile.BandMap,
			Derived:     derivedBands(c.Profile),
			Constants:   map[string]float64{models.BandQuality: c.Image.Score},
		}
		if c.Profile.Mask != sources.MaskNone {
			spec.Mask = &compute.MaskSpec{
				Strategy: string(c.Profile.Mask),
				Band:     c.Profile.QualityBand,
			}
		}
		if c.Harmonize && c.Profile.HarmonizeMode != "" {
			coeff := config.HarmonizationCoeffs[c.Profile.HarmonizeMode]
			spec.Harmonize = &compute.HarmonizeSpec{
				A:     coeff.A,
				B:     coeff.B,
				Bands: append(append([]string{}, models.VisibleBands...), models.InfraredBands...),
			}
		}
		images = append(images, spec)
	}

	return compute.Expression{
		Images:      images,
		Method:      method,
		QualityBand: models.BandQuality,
		Region:      region,
		CRS:         fmt.Sprintf("EPSG:%d", epsg),
		ScaleM:      scaleM,
		Bands:       bands,
		NoData:      raster.DefaultNoData,
		Format:      "GEO_TIFF",
	}
}

// derivedBands lists the index bands computable from a profile's band map.
func derivedBands(p *sources.Profile) []compute.DerivedBand {
	has := map[string]bool{}
	for _, unified := range p.BandMap {
		has[unified] = true
	}

	var out []compute.DerivedBand
	if has[models.BandGreen] && has[models.BandNIR] {
		out = append(out, compute.DerivedBand{
			Name:       models.BandNDWI,
			Normalized: []string{models.BandGreen, models.BandNIR},
		})
	}
	if has[models.BandGreen] && has[models.BandSWIR1] {
		out = append(out, compute.DerivedBand{
			Name:       models.BandMNDWI,
			Normalized: []string{models.BandGreen, models.BandSWIR1},
		})
	}
	if has[models.BandNIR] && has[models.BandRed] {
		out = append(out, compute.DerivedBand{
			Name:       models.BandNDVI,
			Normalized: []string{models.BandNIR, models.BandRed},
		})
		out = append(out, compute.DerivedBand{
			Name:    models.BandSAVI,
			Formula: "((B8 - B4) / (B8 + B4 + 0.5)) * 1.5",
		})
	}
	if has[models.BandNIR] && has[models.BandRed] && has[models.BandBlue] {
		out = append(out, compute.DerivedBand{
			Name:    models.BandEVI,
			Formula: "2.5 * ((B8 - B4) / (B8 + 6*B4 - 7.5*B2 + 1))",
		})
	}
	if has[models.BandNIR] && has[models.BandRed] && has[models.BandSWIR1] {
		out = append(out, compute.DerivedBand{
			Name:    models.BandAVI,
			Formula: "NDVI * (abs(MNDWI) < 0.3 ? 1 - abs(MNDWI) : 0)",
		})
	}
	if has[models.BandNIR] && has[models.BandSWIR1] {
		out = append(out, compute.DerivedBand{
			Name:       models.BandFVI,
			Normalized: []string{models.BandNIR, models.BandSWIR1},
		})
	}
	return out
}

// DownloadBands returns the band list for a tile download given what the
// surviving candidates can all provide. At least the three visible bands
// are required; richer bands are kept when every candidate has them.
func DownloadBands(cands []ScoredImage) ([]string, error) {
	if len(cands) == 0 {
		return nil, fmt.Errorf("no candidates to select bands from")
	}

	common := map[string]int{}
	for _, c := range cands {
		seen := map[string]bool{}
		for _, unified := range c.Profile.BandMap {
			seen[unified] = true
		}
		for _, d := range derivedBands(c.Profile) {
			seen[d.Name] = true
		}
		for band := range seen {
			common[band]++
		}
	}

	var bands []string
	for _, band := range models.DownloadBandOrder {
		if common[band] == len(cands) {
			bands = append(bands, band)
		}
	}

	visible := 0
	for _, band := range models.VisibleBands {
		for _, have := range bands {
			if have == band {
				visible++
			}
		}
	}
	if visible < len(models.VisibleBands) {
		return nil, fmt.Errorf("only %d of %d visible bands available", visible, len(models.VisibleBands))
	}
	return append(bands, models.BandQuality), nil
}

// Package collector gathers and scores candidate images for one tile and
// time window. It works source by source, doing cheap metadata filtering
// before any per-pixel computation and keeping the coarse last-resort
// archive out of tiles that better sources already cover.
package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"skymosaic/internal/compute"
	"skymosaic/internal/config"
	"skymosaic/internal/events"
	"skymosaic/internal/logger"
	"skymosaic/internal/models"
	"skymosaic/internal/mosaic"
	"skymosaic/internal/scoring"
	"skymosaic/internal/sources"
)

// Collector queries the compute service's catalog and statistics endpoints
// to produce scored candidates. One instance is shared across tile
// workers; it holds no per-tile state.
type Collector struct {
	svc       compute.Service
	opts      sources.Options
	harmonize bool
	scaleM    float64
	sink      events.Sink
}

// New creates a collector. sink may be nil.
func New(svc compute.Service, opts sources.Options, harmonize bool, scaleM float64, sink events.Sink) *Collector {
	if sink == nil {
		sink = events.Nop{}
	}
	return &Collector{
		svc:       svc,
		opts:      opts,
		harmonize: harmonize,
		scaleM:    scaleM,
		sink:      sink,
	}
}

// Collect returns the scored candidates for a tile, best sources first. A
// failing source is logged and skipped; only a context cancellation aborts
// the whole collection.
func (c *Collector) Collect(ctx context.Context, tile models.Tile, window models.TimeWindow) ([]mosaic.ScoredImage, error) {
	var all []mosaic.ScoredImage

	for _, profile := range sources.ForWindow(c.opts, window) {
		if profile.LastResort && len(all) > 0 {
			// The coarse archive only fills tiles nothing else covers.
			c.sink.Publish(events.Event{
				Time: time.Now(), Type: events.CandidateSkipped, TileIndex: tile.Index,
				Source: profile.ID, Reason: "better sources already cover this tile",
			})
			continue
		}

		cands, err := c.collectSource(ctx, profile, tile, window)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warnf("Tile %d: source %s failed, continuing without it: %v", tile.Index, profile.ID, err)
			continue
		}
		all = append(all, cands...)
	}
	return all, nil
}

// collectSource runs the per-source filter ladder over the catalog.
func (c *Collector) collectSource(ctx context.Context, p *sources.Profile, tile models.Tile, window models.TimeWindow) ([]mosaic.ScoredImage, error) {
	entries, err := c.svc.Catalog(ctx, compute.CatalogQuery{
		Collections: p.Collections,
		Region:      tile.Bounds,
		Start:       window.Start,
		End:         window.End,
		SortBy:      p.CloudMetadataField,
		Limit:       p.MaxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog query for %s: %w", p.ID, err)
	}

	var out []mosaic.ScoredImage
	for _, entry := range entries {
		if len(out) >= p.MaxCandidates {
			break
		}
		cand, reason, err := c.examine(ctx, p, tile, window, entry)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			logger.Warnf("Tile %d: %s %s stats failed: %v", tile.Index, p.ID, entry.ImageID, err)
			continue
		}
		if reason != "" {
			c.sink.Publish(events.Event{
				Time: time.Now(), Type: events.CandidateSkipped, TileIndex: tile.Index,
				Source: p.ID, ImageID: entry.ImageID, Reason: reason,
			})
			continue
		}
		c.sink.Publish(events.Event{
			Time: time.Now(), Type: events.CandidateScored, TileIndex: tile.Index,
			Source: p.ID, ImageID: entry.ImageID, Score: cand.Image.Score,
		})
		out = append(out, *cand)
	}
	return out, nil
}

// examine applies the filter ladder to one catalog entry. A non-empty
// reason means the entry was filtered out; an error means the service
// could not be asked.
func (c *Collector) examine(ctx context.Context, p *sources.Profile, tile models.Tile, window models.TimeWindow, entry compute.CatalogEntry) (*mosaic.ScoredImage, string, error) {
	metaCloud, hasMetaCloud := cloudFromMetadata(p, entry)
	if hasMetaCloud && metaCloud > config.MetadataCloudGate {
		return nil, fmt.Sprintf("metadata cloud cover %.0f%%", metaCloud*100), nil
	}

	cloudFrac := metaCloud
	if !hasMetaCloud {
		cf, err := c.preciseCloudFraction(ctx, p, tile, entry)
		if err != nil {
			return nil, "", err
		}
		cloudFrac = cf
	}
	if cloudFrac > config.PreciseCloudGate {
		return nil, fmt.Sprintf("cloud fraction %.0f%%", cloudFrac*100), nil
	}

	validFrac, err := c.validFraction(ctx, p, tile, entry)
	if err != nil {
		return nil, "", err
	}

	in := scoring.Input{
		CloudFraction: cloudFrac,
		ValidFraction: validFrac,
		WindowDays:    window.Days(),
		ResolutionM:   p.ResolutionM,
	}
	if days := int(entry.AcquiredAt.Sub(window.Start).Hours() / 24); days >= 0 {
		in.DaysSinceStart = &days
	}
	in.SolarZenith = solarZenith(p, entry)
	in.ViewZenith = propPtr(entry, p.ViewZenithField)

	score := scoring.Score(in)
	degraded := p.Degraded(entry.AcquiredAt)
	if degraded || p.LastResort {
		score = scoring.ApplyPenalty(score)
	}
	if score < p.MinScore() {
		return nil, fmt.Sprintf("score %.3f below floor %.2f", score, p.MinScore()), nil
	}

	bands := make([]string, 0, len(p.BandMap))
	for _, unified := range p.BandMap {
		bands = append(bands, unified)
	}

	return &mosaic.ScoredImage{
		Profile: p,
		Image: models.CandidateImage{
			SourceID:      p.ID,
			ImageID:       entry.ImageID,
			AcquiredAt:    entry.AcquiredAt,
			CloudFraction: cloudFrac,
			ValidFraction: validFrac,
			SolarZenith:   in.SolarZenith,
			ViewZenith:    in.ViewZenith,
			ResolutionM:   p.ResolutionM,
			Bands:         bands,
			Score:         score,
			Degraded:      degraded,
		},
		Harmonize: c.harmonize && p.HarmonizeMode != "",
	}, "", nil
}

// cloudFromMetadata reads the catalog cloud-cover property, a percentage,
// as a fraction.
func cloudFromMetadata(p *sources.Profile, entry compute.CatalogEntry) (float64, bool) {
	if p.CloudMetadataField == "" {
		return 0, false
	}
	v, ok := entry.Properties[p.CloudMetadataField]
	if !ok {
		return 0, false
	}
	return v / 100, true
}

// preciseCloudFraction computes cloud cover by region statistics. The
// image is deliberately left unmasked and the fraction taken from its own
// quality band: masking first would remove the very pixels being counted.
func (c *Collector) preciseCloudFraction(ctx context.Context, p *sources.Profile, tile models.Tile, entry compute.CatalogEntry) (float64, error) {
	if p.QualityBand == "" {
		// No quality band to ask about (ASTER); nothing gates here and the
		// score degrades through the valid fraction instead.
		return 0, nil
	}
	stats, err := c.svc.RegionStats(ctx, compute.StatsRequest{
		Image: compute.ImageSpec{
			Collection: entry.Collection,
			ImageID:    entry.ImageID,
			Derived: []compute.DerivedBand{{
				Name:    "cloud",
				Formula: fmt.Sprintf("%s & 1", p.QualityBand),
			}},
		},
		Band:    "cloud",
		Reducer: "mean",
		Region:  tile.Bounds,
		ScaleM:  p.ResolutionM,
	})
	if err != nil {
		return 0, fmt.Errorf("cloud fraction for %s: %w", entry.ImageID, err)
	}
	if stats.Value == nil {
		return 0, fmt.Errorf("cloud fraction for %s: empty region", entry.ImageID)
	}
	return *stats.Value, nil
}

// validFraction counts unmasked pixels of the masked image against the
// tile's expected pixel count. Returns nil when the source has no mask to
// apply, leaving the sub-score neutral.
func (c *Collector) validFraction(ctx context.Context, p *sources.Profile, tile models.Tile, entry compute.CatalogEntry) (*float64, error) {
	if p.Mask == sources.MaskNone {
		return nil, nil
	}
	spec := compute.ImageSpec{
		Collection: entry.Collection,
		ImageID:    entry.ImageID,
		BandMap:    p.BandMap,
		Mask:       &compute.MaskSpec{Strategy: string(p.Mask), Band: p.QualityBand},
	}
	stats, err := c.svc.RegionStats(ctx, compute.StatsRequest{
		Image:   spec,
		Band:    models.BandRed,
		Reducer: "count",
		Region:  tile.Bounds,
		ScaleM:  p.ResolutionM,
	})
	if err != nil {
		return nil, fmt.Errorf("valid fraction for %s: %w", entry.ImageID, err)
	}
	expected := expectedPixels(tile.Bounds, p.ResolutionM)
	if expected <= 0 {
		return nil, nil
	}
	frac := math.Min(1, float64(stats.Count)/expected)
	return &frac, nil
}

// expectedPixels estimates the tile's pixel count at a resolution using a
// latitude-adjusted meters-per-degree factor.
func expectedPixels(b models.BoundingBox, resolutionM float64) float64 {
	_, centerLat := b.Center()
	widthM := (b.LonMax - b.LonMin) * 111320 * math.Cos(centerLat*math.Pi/180)
	heightM := (b.LatMax - b.LatMin) * 111000
	return (widthM / resolutionM) * (heightM / resolutionM)
}

func solarZenith(p *sources.Profile, entry compute.CatalogEntry) *float64 {
	v := propPtr(entry, p.SolarZenithField)
	if v == nil {
		return nil
	}
	if p.SolarAngleIsElevation {
		z := 90 - *v
		return &z
	}
	return v
}

func propPtr(entry compute.CatalogEntry, field string) *float64 {
	if field == "" {
		return nil
	}
	if v, ok := entry.Properties[field]; ok {
		return &v
	}
	return nil
}

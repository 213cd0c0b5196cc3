// Package pipeline drives month processing end to end: tiling, candidate
// collection, composite download, validation, masking, stitching, and
// finalization.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"skymosaic/internal/compute"
	"skymosaic/internal/config"
	"skymosaic/internal/events"
	"skymosaic/internal/geometry"
	"skymosaic/internal/logger"
	"skymosaic/internal/models"
	"skymosaic/internal/mosaic"
	"skymosaic/internal/raster"
)

// compositeLadder is the order in which composite methods are attempted
// when the service rejects one.
var compositeLadder = []models.CompositeMethod{
	models.MethodQualityMosaic,
	models.MethodMedian,
	models.MethodMean,
}

// processTile runs one tile through the full per-tile flow and returns its
// provenance. It never returns an error: every failure mode is a recorded
// outcome.
func (r *Runner) processTile(ctx context.Context, tile models.Tile, window models.TimeWindow, dir, prefix string) (prov models.TileProvenance) {
	prov = models.TileProvenance{TileIndex: tile.Index, Bounds: tile.Bounds}

	defer func() {
		if rec := recover(); rec != nil {
			prov.Status = models.StatusError
			prov.Error = fmt.Sprintf("panic: %v", rec)
			logger.Errorf("Tile %04d panicked: %v", tile.Index, rec)
		}
	}()

	report := func(status, message string) {
		r.sink.Publish(events.Event{
			Time:      time.Now(),
			Type:      events.TileTransition,
			TileIndex: tile.Index,
			Status:    status,
			Reason:    message,
			Year:      window.Start.Year(),
			Month:     int(window.Start.Month()),
		})
	}

	report("BUILDING", "collecting candidate imagery")
	cands, err := r.collector.Collect(ctx, tile, window)
	if err != nil {
		prov.Status = tileFailure(ctx, err)
		prov.Error = err.Error()
		report("FAILED", err.Error())
		return prov
	}
	if len(cands) == 0 {
		prov.Status = models.StatusNoImagery
		report("FAILED", "no imagery available for this tile")
		return prov
	}

	report("SELECTING", "selecting bands for download")
	bands, err := mosaic.DownloadBands(cands)
	if err != nil {
		prov.Status = models.StatusMissingBands
		prov.Error = err.Error()
		report("FAILED", err.Error())
		return prov
	}

	lon, lat := tile.Bounds.Center()
	epsg := geometry.EPSGForZone(geometry.UTMZone(lon, lat))

	report("URL_GEN", "generating download URL")
	var url string
	var method models.CompositeMethod
	for _, m := range compositeLadder {
		expr := mosaic.BuildExpression(cands, tile.Bounds, epsg, r.cfg.TargetResolutionM, bands, m)
		url, err = r.svc.DownloadURL(ctx, expr)
		if err == nil {
			method = m
			break
		}
		if errors.Is(err, compute.ErrUnsupportedOp) {
			logger.Warnf("Tile %04d: service rejected %s, trying next method", tile.Index, m)
			continue
		}
		break
	}
	if url == "" {
		prov.Status = tileFailure(ctx, err)
		prov.Error = err.Error()
		report("FAILED", err.Error())
		return prov
	}
	prov.Method = string(method)

	report("DOWNLOADING", "downloading tile data")
	data, err := r.svc.Download(ctx, url)
	if err != nil {
		prov.Status = tileFailure(ctx, err)
		prov.Error = err.Error()
		report("FAILED", err.Error())
		return prov
	}
	report("DOWNLOADED", fmt.Sprintf("downloaded %.1f MB", float64(len(data))/1024/1024))

	tifPath := filepath.Join(dir, fmt.Sprintf("%s_t%04d.tif", prefix, tile.Index))
	grid, err := persistPayload(data, bands, tifPath)
	if err != nil {
		prov.Status = models.StatusDownloadFailed
		prov.Error = err.Error()
		report("FAILED", err.Error())
		return prov
	}

	report("VALIDATING", "validating raster")
	if err := raster.ValidateFile(tifPath); err != nil {
		prov.Status = models.StatusValidationFailed
		prov.ValidationReason = err.Error()
		report("FAILED", err.Error())
		return prov
	}
	report("VALIDATED", "raster validation passed")

	report("MASKING", "computing water mask")
	maskPath := maskFile(tifPath)
	if err := writeWaterMask(grid, maskPath); err != nil {
		// The mask is auxiliary; a tile without one is still usable.
		logger.Warnf("Tile %04d: water mask failed: %v", tile.Index, err)
		maskPath = ""
	}

	prov.Status = models.StatusOK
	prov.RasterPath = tifPath
	prov.MaskPath = maskPath
	prov.DominantSource = dominantCandidate(cands)
	r.sink.Publish(events.Event{
		Time:      time.Now(),
		Type:      events.SourceUsed,
		TileIndex: tile.Index,
		Source:    prov.DominantSource,
		Year:      window.Start.Year(),
		Month:     int(window.Start.Month()),
	})
	report("SUCCESS", "tile processing completed")
	return prov
}

// persistPayload turns a downloaded byte stream into a GeoTIFF on disk and
// returns its decoded grid. ZIP payloads are reassembled into a single
// multi-band raster first.
func persistPayload(data []byte, bands []string, path string) (*raster.Grid, error) {
	switch raster.DetectFormat(data) {
	case raster.FormatGeoTIFF:
		grid, err := raster.DecodeGeoTIFF(data)
		if err != nil {
			return nil, fmt.Errorf("downloaded raster is unreadable: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		return grid, nil
	case raster.FormatZIP:
		grid, err := raster.ReassembleZIP(data, bands)
		if err != nil {
			return nil, fmt.Errorf("failed to reassemble zip payload: %w", err)
		}
		if err := raster.WriteGeoTIFF(path, grid, true); err != nil {
			return nil, err
		}
		return grid, nil
	case raster.FormatErrorPage:
		return nil, fmt.Errorf("service returned an error page instead of raster data")
	default:
		return nil, fmt.Errorf("unrecognized payload format")
	}
}

// writeWaterMask derives the water mask from the preferred water index band
// and writes it next to the tile raster.
func writeWaterMask(grid *raster.Grid, path string) error {
	band := ""
	for _, b := range []string{models.BandMNDWI, models.BandNDWI} {
		if grid.BandIndex(b) >= 0 {
			band = b
			break
		}
	}
	if band == "" {
		return fmt.Errorf("no water index band present")
	}
	mask, err := raster.WaterMask(grid, band, config.MinWaterAreaPx)
	if err != nil {
		return err
	}
	return raster.WriteGeoTIFF(path, mask.Grid(grid), true)
}

func maskFile(tifPath string) string {
	return tifPath[:len(tifPath)-len(".tif")] + "_mask.tif"
}

// dominantCandidate is the source of the highest-scoring candidate, the
// best proxy for which satellite dominates the composite.
func dominantCandidate(cands []mosaic.ScoredImage) string {
	best := ""
	bestScore := -1.0
	for _, c := range cands {
		if c.Image.Score > bestScore {
			bestScore = c.Image.Score
			best = c.Image.SourceID
		}
	}
	return best
}

// tileFailure maps an error to a tile status, distinguishing the failure
// categories provenance cares about.
func tileFailure(ctx context.Context, err error) models.TileStatus {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.StatusTimeout
	case errors.Is(err, context.Canceled):
		return models.StatusError
	case errors.Is(err, compute.ErrTileTooLarge):
		return models.StatusTileTooLarge
	case errors.Is(err, compute.ErrNoImages):
		return models.StatusNoImagery
	case errors.Is(err, compute.ErrUnsupportedOp):
		return models.StatusError
	default:
		return models.StatusDownloadFailed
	}
}

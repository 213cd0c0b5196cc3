package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"skymosaic/internal/collector"
	"skymosaic/internal/compute"
	"skymosaic/internal/config"
	"skymosaic/internal/events"
	"skymosaic/internal/geometry"
	"skymosaic/internal/logger"
	"skymosaic/internal/manifest"
	"skymosaic/internal/models"
	"skymosaic/internal/raster"
	"skymosaic/internal/reports"
	"skymosaic/internal/sources"
	"skymosaic/internal/stitch"
	"skymosaic/internal/storage"
)

// Runner processes months of imagery for one configured region.
type Runner struct {
	cfg       *config.Config
	svc       compute.Service
	store     storage.Client
	sink      events.Sink
	collector *collector.Collector
	manifest  *manifest.Manifest
	scratch   string

	// Overridable for tests: GDAL is not available everywhere.
	planTiles   func(bbox models.BoundingBox) ([]models.Tile, error)
	createCOG   func(ctx context.Context, mosaicPath, cogPath string) error
	validateCOG func(ctx context.Context, path string) error
}

// NewRunner wires a pipeline from its collaborators. A nil sink disables
// telemetry.
func NewRunner(cfg *config.Config, svc compute.Service, store storage.Client, sink events.Sink) *Runner {
	if sink == nil {
		sink = events.Nop{}
	}
	opts := sources.Options{
		IncludeLandsat7: cfg.IncludeLandsat7,
		IncludeMODIS:    cfg.IncludeMODIS,
		IncludeASTER:    cfg.IncludeASTER,
		IncludeVIIRS:    cfg.IncludeVIIRS,
	}
	return &Runner{
		cfg:       cfg,
		svc:       svc,
		store:     store,
		sink:      sink,
		collector: collector.New(svc, opts, cfg.Harmonize, cfg.TargetResolutionM, sink),
		manifest:  manifest.New(store, cfg.ManifestName),
		scratch:   filepath.Join(cfg.OutputDir, "work"),
		planTiles: func(bbox models.BoundingBox) ([]models.Tile, error) {
			return geometry.PlanTiles(bbox, cfg.TargetResolutionM, len(models.DownloadBandOrder)+1)
		},
		createCOG:   stitch.CreateCOG,
		validateCOG: stitch.ValidateCOG,
	}
}

// Run processes every calendar month in the configured date range, in
// order. A failed month is logged and does not stop later months.
func (r *Runner) Run(ctx context.Context) error {
	start, err := time.Parse("2006-01-02", r.cfg.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", r.cfg.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}

	for _, window := range geometry.MonthRanges(start, end) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		year, month := window.Start.Year(), int(window.Start.Month())
		if _, err := r.RunMonth(ctx, year, month); err != nil {
			logger.Errorf("Month %04d-%02d failed: %v", year, month, err)
		}
	}
	return nil
}

// RunMonth processes one calendar month: plans the tile grid, processes
// tiles concurrently, stitches the survivors, finalizes the COG, and
// records manifest and provenance. A month whose final artifact already
// exists is skipped untouched.
func (r *Runner) RunMonth(ctx context.Context, year, month int) (*models.MonthResult, error) {
	cogObject := storage.COGObject(r.cfg.OutputPrefix, year, month)
	exists, err := r.store.Exists(ctx, cogObject)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing artifact: %w", err)
	}
	if exists {
		logger.Infof("Skipping %04d-%02d: %s already exists", year, month, cogObject)
		return &models.MonthResult{Year: year, Month: month, COGPath: cogObject, Skipped: true}, nil
	}

	window := models.TimeWindow{
		Start: time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0),
	}
	tiles, err := r.planTiles(r.cfg.BBox())
	if err != nil {
		return nil, fmt.Errorf("failed to plan tile grid: %w", err)
	}

	monthDir := filepath.Join(r.scratch, storage.MonthFolder(year, month))
	tilesDir := filepath.Join(monthDir, "tiles")
	if err := os.MkdirAll(tilesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	prov := models.MonthProvenance{
		JobID: uuid.NewString(),
		Year:  year,
		Month: month,
		Tiles: make(map[string]models.TileProvenance, len(tiles)),
		Usage: make(map[string]int),
	}
	r.sink.Publish(events.Event{Time: time.Now(), Type: events.MonthStarted, Year: year, Month: month})

	workers := min(r.cfg.Workers, config.MaxConcurrentTiles, runtime.NumCPU(), len(tiles))
	logger.Infof("Processing %04d-%02d: %d tiles with %d workers", year, month, len(tiles), workers)

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		tilePaths []string
	)
	jobs := make(chan models.Tile)
	prefix := fmt.Sprintf("%s_%04d%02d", r.cfg.OutputPrefix, year, month)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tile := range jobs {
				tileCtx, cancel := context.WithTimeout(ctx, config.TileTimeout)
				tp := r.processTile(tileCtx, tile, window, tilesDir, prefix)
				cancel()

				mu.Lock()
				prov.Tiles[fmt.Sprintf("tile_%d", tile.Index)] = tp
				if tp.Status == models.StatusOK {
					tilePaths = append(tilePaths, tp.RasterPath)
					if tp.DominantSource != "" {
						prov.Usage[tp.DominantSource]++
					}
				}
				mu.Unlock()
			}
		}()
	}
	for _, tile := range tiles {
		jobs <- tile
	}
	close(jobs)
	wg.Wait()

	prov.Generated = time.Now().UTC()
	result := &models.MonthResult{Year: year, Month: month, TilePaths: tilePaths, Provenance: prov}

	// Provenance is written whether or not the month completed.
	defer func() {
		if err := r.writeProvenance(ctx, prov); err != nil {
			logger.Errorf("Failed to write provenance for %04d-%02d: %v", year, month, err)
		}
		r.sink.Publish(events.Event{Time: time.Now(), Type: events.MonthFinished, Year: year, Month: month})
	}()

	if len(tilePaths) == 0 {
		logger.Warnf("No tiles produced for %04d-%02d", year, month)
		return result, nil
	}
	logger.Infof("Month %04d-%02d: %d of %d tiles succeeded", year, month, len(tilePaths), len(tiles))

	mosaicLocal := filepath.Join(monthDir, filepath.Base(storage.MosaicObject(r.cfg.OutputPrefix, year, month)))
	cogLocal := filepath.Join(monthDir, filepath.Base(cogObject))
	if err := r.finalize(ctx, tilePaths, mosaicLocal, cogLocal); err != nil {
		return result, err
	}

	mosaicObject := storage.MosaicObject(r.cfg.OutputPrefix, year, month)
	if err := r.store.StoreFile(ctx, mosaicObject, mosaicLocal); err != nil {
		return result, err
	}
	if err := r.store.StoreFile(ctx, cogObject, cogLocal); err != nil {
		return result, err
	}
	result.MosaicPath = mosaicObject
	result.COGPath = cogObject

	provJSON, err := json.Marshal(prov)
	if err != nil {
		return result, fmt.Errorf("failed to encode provenance for manifest: %w", err)
	}
	row := manifest.Row{
		Year:       year,
		Month:      month,
		Mosaic:     mosaicObject,
		COG:        cogObject,
		Tiles:      tilePaths,
		Provenance: string(provJSON),
		Timestamp:  time.Now().UTC(),
	}
	if err := r.manifest.Append(ctx, row); err != nil {
		return result, fmt.Errorf("failed to append manifest row: %w", err)
	}

	r.writeReport(ctx, prov)

	// Both artifacts validated and stored: the intermediates can go.
	r.cleanupTiles(prov, tilesDir)
	return result, nil
}

// finalize stitches the tile rasters, validates the mosaic, derives the COG,
// and validates that too. Nothing destructive happens here; intermediates
// are removed only by the caller after both artifacts are stored.
func (r *Runner) finalize(ctx context.Context, tilePaths []string, mosaicPath, cogPath string) error {
	grids := make([]*raster.Grid, 0, len(tilePaths))
	for _, p := range tilePaths {
		g, err := raster.ReadGeoTIFF(p)
		if err != nil {
			return fmt.Errorf("failed to reload tile %s: %w", p, err)
		}
		grids = append(grids, g)
	}

	blended, err := stitch.Blend(grids, r.cfg.TargetResolutionM)
	if err != nil {
		return fmt.Errorf("stitching failed: %w", err)
	}
	if err := raster.WriteGeoTIFF(mosaicPath, blended, true); err != nil {
		return err
	}
	if err := raster.ValidateFile(mosaicPath); err != nil {
		return fmt.Errorf("mosaic failed validation, keeping tiles for debugging: %w", err)
	}

	if err := r.createCOG(ctx, mosaicPath, cogPath); err != nil {
		return fmt.Errorf("COG creation failed: %w", err)
	}
	if err := r.validateCOG(ctx, cogPath); err != nil {
		return fmt.Errorf("COG failed validation, keeping tiles for debugging: %w", err)
	}
	return nil
}

func (r *Runner) writeProvenance(ctx context.Context, prov models.MonthProvenance) error {
	data, err := json.MarshalIndent(prov, "", "  ")
	if err != nil {
		return err
	}
	return r.store.Store(ctx, storage.ProvenanceObject(prov.Year, prov.Month), data)
}

func (r *Runner) writeReport(ctx context.Context, prov models.MonthProvenance) {
	html, chart, err := reports.Month(prov)
	if err != nil {
		logger.Warnf("Report generation failed for %04d-%02d: %v", prov.Year, prov.Month, err)
		return
	}
	if err := r.store.Store(ctx, storage.ReportObject(prov.Year, prov.Month), html); err != nil {
		logger.Warnf("Failed to store report: %v", err)
	}
	if len(chart) > 0 {
		obj := storage.MonthFolder(prov.Year, prov.Month) + "/usage.png"
		if err := r.store.Store(ctx, obj, chart); err != nil {
			logger.Warnf("Failed to store usage chart: %v", err)
		}
	}
}

// cleanupTiles deletes tile rasters and masks, then the tiles directory if
// it emptied out.
func (r *Runner) cleanupTiles(prov models.MonthProvenance, tilesDir string) {
	deleted := 0
	for _, tp := range prov.Tiles {
		for _, p := range []string{tp.RasterPath, tp.MaskPath} {
			if p == "" {
				continue
			}
			if err := os.Remove(p); err == nil {
				deleted++
			} else if !os.IsNotExist(err) {
				logger.Warnf("Failed to delete %s: %v", p, err)
			}
		}
	}
	if entries, err := os.ReadDir(tilesDir); err == nil && len(entries) == 0 {
		os.Remove(tilesDir)
	}
	logger.Infof("Deleted %d intermediate tile files", deleted)
}

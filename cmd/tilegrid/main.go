// Command tilegrid prints the tile plan for the configured region as
// GeoJSON, for previewing coverage before a pipeline run.
package main

import (
	"context"
	"encoding/json"
	"os"

	"skymosaic/internal/config"
	"skymosaic/internal/geometry"
	"skymosaic/internal/logger"
	"skymosaic/internal/models"
)

type feature struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   polygon                `json:"geometry"`
}

type polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

func ring(b models.BoundingBox) [][][2]float64 {
	return [][][2]float64{{
		{b.LonMin, b.LatMin},
		{b.LonMax, b.LatMin},
		{b.LonMax, b.LatMax},
		{b.LonMin, b.LatMax},
		{b.LonMin, b.LatMin},
	}}
}

func main() {
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", err)
	}

	tiles, err := geometry.PlanTiles(cfg.BBox(), cfg.TargetResolutionM, len(models.DownloadBandOrder)+1)
	if err != nil {
		logger.Fatal("Failed to plan tiles", err)
	}
	logger.Infof("Planned %d tiles at %gm over (%.4f, %.4f)-(%.4f, %.4f)",
		len(tiles), cfg.TargetResolutionM, cfg.LonMin, cfg.LatMin, cfg.LonMax, cfg.LatMax)

	features := make([]feature, 0, len(tiles)+1)
	features = append(features, feature{
		Type:       "Feature",
		Properties: map[string]interface{}{"name": "region"},
		Geometry:   polygon{Type: "Polygon", Coordinates: ring(cfg.BBox())},
	})
	for _, t := range tiles {
		zone, north := geometry.UTMZone(t.Bounds.Center())
		features = append(features, feature{
			Type: "Feature",
			Properties: map[string]interface{}{
				"tile": t.Index,
				"epsg": geometry.EPSGForZone(zone, north),
			},
			Geometry: polygon{Type: "Polygon", Coordinates: ring(t.Bounds)},
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{
		"type":     "FeatureCollection",
		"features": features,
	}); err != nil {
		logger.Fatal("Failed to encode tile plan", err)
	}
}

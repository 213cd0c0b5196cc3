package reports

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"skymosaic/internal/models"
)

func sampleProvenance() models.MonthProvenance {
	return models.MonthProvenance{
		JobID: "job-123",
		Year:  2024,
		Month: 7,
		Tiles: map[string]models.TileProvenance{
			"tile_0": {TileIndex: 0, Status: models.StatusOK, DominantSource: "sentinel2"},
			"tile_1": {TileIndex: 1, Status: models.StatusOK, DominantSource: "sentinel2"},
			"tile_2": {TileIndex: 2, Status: models.StatusOK, DominantSource: "landsat9"},
			"tile_3": {TileIndex: 3, Status: models.StatusNoImagery},
		},
		Usage:     map[string]int{"sentinel2": 2, "landsat9": 1},
		Generated: time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMonthReportContent(t *testing.T) {
	html, png, err := Month(sampleProvenance())
	if err != nil {
		t.Fatalf("Month: %v", err)
	}

	doc := string(html)
	for _, want := range []string{
		"Mosaic Report 2024-07",
		"3 of 4 tiles succeeded",
		"sentinel2",
		"landsat9",
		"no_imagery",
		"echarts",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("report missing %q", want)
		}
	}

	if len(png) == 0 {
		t.Fatal("expected a usage chart PNG")
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("chart is not a PNG: % x", png[:8])
	}
}

func TestMonthReportWithoutSuccesses(t *testing.T) {
	prov := models.MonthProvenance{
		JobID: "job-456",
		Year:  2024,
		Month: 8,
		Tiles: map[string]models.TileProvenance{
			"tile_0": {TileIndex: 0, Status: models.StatusDownloadFailed, Error: "connection reset"},
		},
		Generated: time.Now(),
	}
	html, png, err := Month(prov)
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	if len(png) != 0 {
		t.Error("expected no chart without usage data")
	}
	if !strings.Contains(string(html), "connection reset") {
		t.Error("report missing failure detail")
	}
}

func TestUsageOrdering(t *testing.T) {
	got := orderedSources(map[string]int{"modis": 1, "sentinel2": 5, "landsat8": 5})
	want := []string{"landsat8", "sentinel2", "modis"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("orderedSources = %v, want %v", got, want)
		}
	}
}

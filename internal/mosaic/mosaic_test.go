package mosaic

import (
	"testing"
	"time"

	"skymosaic/internal/models"
	"skymosaic/internal/raster"
	"skymosaic/internal/sources"
)

// candidateGrid builds a 2x2 candidate with uniform band values and a
// constant quality band.
func candidateGrid(quality, value float32) *raster.Grid {
	g := raster.NewGrid(2, 2, []string{models.BandRed, models.BandGreen, models.BandQuality})
	for i := 0; i < 4; i++ {
		g.BandAt(0)[i] = value
		g.BandAt(1)[i] = value + 100
		g.BandAt(2)[i] = quality
	}
	return g
}

func TestQualityMosaicPicksHigherScore(t *testing.T) {
	a := candidateGrid(0.9, 10)
	b := candidateGrid(0.4, 20)

	out, dominant, err := Compose([]Candidate{
		{SourceID: "sentinel2", Grid: a},
		{SourceID: "modis", Grid: b},
	}, models.MethodQualityMosaic)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	for i := 0; i < 4; i++ {
		if out.Band(models.BandRed)[i] != 10 || out.Band(models.BandGreen)[i] != 110 {
			t.Fatalf("pixel %d not taken from the higher-quality candidate: %v/%v",
				i, out.Band(models.BandRed)[i], out.Band(models.BandGreen)[i])
		}
	}
	if dominant != "sentinel2" {
		t.Errorf("dominant source %q", dominant)
	}
}

func TestQualityMosaicFillsMaskedPixels(t *testing.T) {
	a := candidateGrid(0.9, 10)
	b := candidateGrid(0.4, 20)
	// Candidate A is masked at pixel 3.
	a.BandAt(0)[3] = float32(a.NoData)

	out, _, err := Compose([]Candidate{
		{SourceID: "a", Grid: a},
		{SourceID: "b", Grid: b},
	}, models.MethodQualityMosaic)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if out.Band(models.BandRed)[0] != 10 {
		t.Error("unmasked pixel not taken from A")
	}
	if out.Band(models.BandRed)[3] != 20 || out.Band(models.BandGreen)[3] != 120 {
		t.Errorf("masked pixel not filled from B: %v/%v",
			out.Band(models.BandRed)[3], out.Band(models.BandGreen)[3])
	}
}

func TestQualityMosaicTieFirstSeenWins(t *testing.T) {
	a := candidateGrid(0.5, 10)
	b := candidateGrid(0.5, 20)

	out, dominant, err := Compose([]Candidate{
		{SourceID: "first", Grid: a},
		{SourceID: "second", Grid: b},
	}, models.MethodQualityMosaic)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	for i := 0; i < 4; i++ {
		if out.Band(models.BandRed)[i] != 10 {
			t.Fatalf("tie at pixel %d went to the later candidate", i)
		}
	}
	if dominant != "first" {
		t.Errorf("dominant source %q", dominant)
	}
}

func TestMedianAndMeanFallbacks(t *testing.T) {
	cands := []Candidate{
		{SourceID: "a", Grid: candidateGrid(0.5, 10)},
		{SourceID: "b", Grid: candidateGrid(0.5, 20)},
		{SourceID: "c", Grid: candidateGrid(0.5, 60)},
	}

	med, _, err := Compose(cands, models.MethodMedian)
	if err != nil {
		t.Fatalf("median: %v", err)
	}
	if med.Band(models.BandRed)[0] != 20 {
		t.Errorf("median = %v, want 20", med.Band(models.BandRed)[0])
	}

	mean, _, err := Compose(cands, models.MethodMean)
	if err != nil {
		t.Fatalf("mean: %v", err)
	}
	if mean.Band(models.BandRed)[0] != 30 {
		t.Errorf("mean = %v, want 30", mean.Band(models.BandRed)[0])
	}
}

func TestComposeMarksAllMaskedPixelsNoData(t *testing.T) {
	a := candidateGrid(0.9, 10)
	b := candidateGrid(0.4, 20)
	a.BandAt(0)[2] = float32(a.NoData)
	b.BandAt(0)[2] = 0 // zero counts as no-data too

	out, _, err := Compose([]Candidate{
		{SourceID: "a", Grid: a},
		{SourceID: "b", Grid: b},
	}, models.MethodQualityMosaic)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !out.IsNoData(out.Band(models.BandRed)[2]) {
		t.Error("pixel with no valid candidate should be no-data")
	}
}

func TestComposeRejectsMismatchedGrids(t *testing.T) {
	a := candidateGrid(0.9, 10)
	b := raster.NewGrid(3, 3, []string{models.BandRed, models.BandQuality})
	if _, _, err := Compose([]Candidate{{SourceID: "a", Grid: a}, {SourceID: "b", Grid: b}},
		models.MethodQualityMosaic); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func scored(t *testing.T, id string, score float64) ScoredImage {
	t.Helper()
	p := sources.ByID(id)
	if p == nil {
		t.Fatalf("unknown source %s", id)
	}
	return ScoredImage{
		Profile: p,
		Image: models.CandidateImage{
			SourceID:   id,
			ImageID:    id + "/img1",
			AcquiredAt: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
			Score:      score,
		},
		Harmonize: true,
	}
}

func TestBuildExpression(t *testing.T) {
	cands := []ScoredImage{scored(t, "sentinel2", 0.91), scored(t, "landsat8", 0.72)}
	region := models.BoundingBox{LonMin: 35.3, LatMin: 31.1, LonMax: 35.4, LatMax: 31.2}

	expr := BuildExpression(cands, region, 32636, 5.0,
		[]string{models.BandRed, models.BandGreen, models.BandBlue, models.BandQuality},
		models.MethodQualityMosaic)

	if len(expr.Images) != 2 {
		t.Fatalf("%d images", len(expr.Images))
	}
	if expr.CRS != "EPSG:32636" || expr.ScaleM != 5.0 {
		t.Errorf("projection %s at %vm", expr.CRS, expr.ScaleM)
	}
	s2 := expr.Images[0]
	if s2.Constants[models.BandQuality] != 0.91 {
		t.Errorf("quality constant %v", s2.Constants[models.BandQuality])
	}
	if s2.Mask == nil || s2.Mask.Strategy != string(sources.MaskSceneClass) {
		t.Errorf("sentinel2 mask %+v", s2.Mask)
	}
	if s2.Harmonize == nil || s2.Harmonize.A != 0.98 {
		t.Errorf("sentinel2 harmonization %+v", s2.Harmonize)
	}
	if expr.Images[1].Harmonize != nil {
		t.Error("landsat has no harmonize mode, spec should omit the transform")
	}
	found := false
	for _, d := range s2.Derived {
		if d.Name == models.BandMNDWI {
			found = true
		}
	}
	if !found {
		t.Error("sentinel2 derived bands missing MNDWI")
	}
}

func TestDownloadBandsRequireVisible(t *testing.T) {
	cands := []ScoredImage{scored(t, "sentinel2", 0.9), scored(t, "landsat8", 0.7)}
	bands, err := DownloadBands(cands)
	if err != nil {
		t.Fatalf("DownloadBands: %v", err)
	}
	if bands[len(bands)-1] != models.BandQuality {
		t.Error("quality band must come last")
	}
	have := map[string]bool{}
	for _, b := range bands {
		have[b] = true
	}
	for _, b := range models.VisibleBands {
		if !have[b] {
			t.Errorf("visible band %s missing", b)
		}
	}
	if !have[models.BandMNDWI] {
		t.Error("both sources provide MNDWI, it should be kept")
	}

	if _, err := DownloadBands(nil); err == nil {
		t.Error("expected error with no candidates")
	}
}

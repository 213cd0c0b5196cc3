package collector

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"skymosaic/internal/compute"
	"skymosaic/internal/events"
	"skymosaic/internal/models"
	"skymosaic/internal/scoring"
	"skymosaic/internal/sources"
)

var (
	testTile = models.Tile{Index: 0, Bounds: models.BoundingBox{
		LonMin: 35.40, LatMin: 31.40, LonMax: 35.42, LatMax: 31.42}}
	allOpts = sources.Options{IncludeLandsat7: true, IncludeMODIS: true, IncludeASTER: true, IncludeVIIRS: true}
)

func window(start, end string) models.TimeWindow {
	s, _ := time.Parse("2006-01-02", start)
	e, _ := time.Parse("2006-01-02", end)
	return models.TimeWindow{Start: s, End: e}
}

// fakeService serves canned catalog entries and statistics.
type fakeService struct {
	mu         sync.Mutex
	entries    map[string][]compute.CatalogEntry // keyed by collection
	cloudMean  map[string]float64                // imageID -> unmasked cloud fraction
	validCount map[string]int64                  // imageID -> unmasked pixel count

	queried   []string
	statsReqs []compute.StatsRequest
}

func (f *fakeService) Catalog(ctx context.Context, q compute.CatalogQuery) ([]compute.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []compute.CatalogEntry
	for _, col := range q.Collections {
		f.queried = append(f.queried, col)
		out = append(out, f.entries[col]...)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeService) RegionStats(ctx context.Context, req compute.StatsRequest) (compute.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsReqs = append(f.statsReqs, req)
	if req.Band == "cloud" {
		v := f.cloudMean[req.Image.ImageID]
		return compute.Stats{Value: &v}, nil
	}
	return compute.Stats{Count: f.validCount[req.Image.ImageID]}, nil
}

func (f *fakeService) DownloadURL(ctx context.Context, expr compute.Expression) (string, error) {
	return "", compute.ErrUnsupportedOp
}

func (f *fakeService) Download(ctx context.Context, url string) ([]byte, error) {
	return nil, compute.ErrNoImages
}

func entry(collection, id string, acquired string, props map[string]float64) compute.CatalogEntry {
	at, _ := time.Parse("2006-01-02", acquired)
	return compute.CatalogEntry{ImageID: id, Collection: collection, AcquiredAt: at, Properties: props}
}

func TestOnlyOperationalSourcesQueried(t *testing.T) {
	svc := &fakeService{entries: map[string][]compute.CatalogEntry{}}
	c := New(svc, allOpts, true, 5.0, nil)

	if _, err := c.Collect(context.Background(), testTile, window("1995-06-01", "1995-07-01")); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, col := range svc.queried {
		if col != "LANDSAT/LT05/C02/T1_L2" {
			t.Errorf("queried %s, but only Landsat 5 flew in 1995", col)
		}
	}
	if len(svc.queried) == 0 {
		t.Error("landsat5 never queried")
	}
}

func TestMetadataCloudGateSkipsWithoutStats(t *testing.T) {
	svc := &fakeService{entries: map[string][]compute.CatalogEntry{
		"COPERNICUS/S2_SR_HARMONIZED": {
			entry("COPERNICUS/S2_SR_HARMONIZED", "s2/cloudy", "2024-06-05",
				map[string]float64{"CLOUDY_PIXEL_PERCENTAGE": 80}),
		},
	}}
	rec := &events.Recorder{}
	c := New(svc, sources.Options{}, true, 5.0, rec)

	cands, err := c.Collect(context.Background(), testTile, window("2024-06-01", "2024-07-01"))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("cloudy image passed the gate: %+v", cands)
	}
	for _, req := range svc.statsReqs {
		if req.Image.ImageID == "s2/cloudy" {
			t.Error("metadata-rejected image still hit the stats endpoint")
		}
	}
	skips := rec.ByType(events.CandidateSkipped)
	if len(skips) == 0 || !strings.Contains(skips[0].Reason, "metadata cloud cover") {
		t.Errorf("skip not reported: %+v", skips)
	}
}

func TestPreciseCloudGateUsesUnmaskedImage(t *testing.T) {
	svc := &fakeService{
		entries: map[string][]compute.CatalogEntry{
			"MODIS/061/MOD09GA": {entry("MODIS/061/MOD09GA", "modis/overcast", "2002-06-10", nil)},
		},
		cloudMean: map[string]float64{"modis/overcast": 0.75},
	}
	c := New(svc, allOpts, true, 5.0, nil)

	// 2002: MODIS operational, nothing finer in the fake catalog.
	cands, err := c.Collect(context.Background(), testTile, window("2002-06-01", "2002-07-01"))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(cands) != 0 {
		t.Fatal("75% cloud fraction should be rejected")
	}

	var cloudReq *compute.StatsRequest
	for i := range svc.statsReqs {
		if svc.statsReqs[i].Band == "cloud" {
			cloudReq = &svc.statsReqs[i]
		}
	}
	if cloudReq == nil {
		t.Fatal("cloud fraction never computed")
	}
	if cloudReq.Image.Mask != nil {
		t.Error("cloud fraction computed after masking; it must use the unmasked image")
	}
	if len(cloudReq.Image.Derived) == 0 || !strings.Contains(cloudReq.Image.Derived[0].Formula, "state_1km") {
		t.Errorf("cloud fraction not derived from the image's own quality band: %+v", cloudReq.Image.Derived)
	}
}

func TestDegradedLandsat7ScoresExactlyHalf(t *testing.T) {
	svc := &fakeService{
		entries: map[string][]compute.CatalogEntry{
			"LANDSAT/LE07/C02/T1_L2": {entry("LANDSAT/LE07/C02/T1_L2", "l7/striped", "2003-07-01", nil)},
		},
		cloudMean:  map[string]float64{"l7/striped": 0},
		validCount: map[string]int64{"l7/striped": 1 << 40},
	}
	c := New(svc, sources.Options{IncludeLandsat7: true}, true, 5.0, nil)

	w := window("2003-07-01", "2003-08-01")
	cands, err := c.Collect(context.Background(), testTile, w)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var cand *models.CandidateImage
	for i := range cands {
		if cands[i].Image.SourceID == "landsat7" {
			cand = &cands[i].Image
		}
	}
	if cand == nil {
		t.Fatal("landsat7 candidate missing")
	}
	if !cand.Degraded {
		t.Error("post-SLC-failure image not flagged degraded")
	}

	one := 1.0
	days := 0
	base := scoring.Score(scoring.Input{
		CloudFraction:  0,
		ValidFraction:  &one,
		DaysSinceStart: &days,
		WindowDays:     w.Days(),
		ResolutionM:    30,
	})
	if cand.Score != scoring.ApplyPenalty(base) {
		t.Errorf("degraded score %v, want exactly half of %v", cand.Score, base)
	}
}

func TestLastResortSkippedWhenBetterSourcesExist(t *testing.T) {
	svc := &fakeService{
		entries: map[string][]compute.CatalogEntry{
			"COPERNICUS/S2_SR_HARMONIZED": {
				entry("COPERNICUS/S2_SR_HARMONIZED", "s2/clear", "2024-06-05",
					map[string]float64{"CLOUDY_PIXEL_PERCENTAGE": 5, "MEAN_SOLAR_ZENITH_ANGLE": 25}),
			},
			"MODIS/061/MOD09GA": {entry("MODIS/061/MOD09GA", "modis/any", "2024-06-05", nil)},
		},
		validCount: map[string]int64{"s2/clear": 1 << 40},
	}
	c := New(svc, allOpts, true, 5.0, nil)

	cands, err := c.Collect(context.Background(), testTile, window("2024-06-01", "2024-07-01"))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(cands) == 0 {
		t.Fatal("sentinel candidate missing")
	}
	for _, col := range svc.queried {
		if strings.HasPrefix(col, "MODIS/") {
			t.Error("last-resort source queried although better candidates exist")
		}
	}
}

func TestLastResortUsedWhenNothingElse(t *testing.T) {
	svc := &fakeService{
		entries: map[string][]compute.CatalogEntry{
			"MODIS/061/MOD09GA": {entry("MODIS/061/MOD09GA", "modis/only", "2024-06-10", nil)},
		},
		cloudMean:  map[string]float64{"modis/only": 0.05},
		validCount: map[string]int64{"modis/only": 1 << 40},
	}
	c := New(svc, allOpts, true, 5.0, nil)

	cands, err := c.Collect(context.Background(), testTile, window("2024-06-01", "2024-07-01"))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(cands) != 1 || cands[0].Image.SourceID != "modis" {
		t.Fatalf("expected the last-resort candidate, got %+v", cands)
	}
	if !cands[0].Image.Degraded && cands[0].Image.Score >= 0.5 {
		t.Errorf("last-resort score %v not penalized", cands[0].Image.Score)
	}
}

func TestSolarElevationConvertedToZenith(t *testing.T) {
	svc := &fakeService{
		entries: map[string][]compute.CatalogEntry{
			"LANDSAT/LC09/C02/T1_L2": {
				entry("LANDSAT/LC09/C02/T1_L2", "l9/img", "2024-06-10",
					map[string]float64{"CLOUD_COVER": 10, "SUN_ELEVATION": 65}),
			},
		},
		validCount: map[string]int64{"l9/img": 1 << 40},
	}
	c := New(svc, sources.Options{}, true, 5.0, nil)

	cands, err := c.Collect(context.Background(), testTile, window("2024-06-01", "2024-07-01"))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var found bool
	for _, cand := range cands {
		if cand.Image.SourceID == "landsat9" {
			found = true
			if cand.Image.SolarZenith == nil || *cand.Image.SolarZenith != 25 {
				t.Errorf("solar zenith %v, want 25 (90 - 65)", cand.Image.SolarZenith)
			}
		}
	}
	if !found {
		t.Fatal("landsat9 candidate missing")
	}
}

func TestHarmonizeToggle(t *testing.T) {
	svc := &fakeService{
		entries: map[string][]compute.CatalogEntry{
			"COPERNICUS/S2_SR_HARMONIZED": {
				entry("COPERNICUS/S2_SR_HARMONIZED", "s2/img", "2024-06-05",
					map[string]float64{"CLOUDY_PIXEL_PERCENTAGE": 5}),
			},
		},
		validCount: map[string]int64{"s2/img": 1 << 40},
	}

	on := New(svc, sources.Options{}, true, 5.0, nil)
	cands, err := on.Collect(context.Background(), testTile, window("2024-06-01", "2024-07-01"))
	if err != nil || len(cands) == 0 {
		t.Fatalf("Collect: %v (%d cands)", err, len(cands))
	}
	if !cands[0].Harmonize {
		t.Error("harmonization requested but not set on candidate")
	}

	off := New(svc, sources.Options{}, false, 5.0, nil)
	cands, err = off.Collect(context.Background(), testTile, window("2024-06-01", "2024-07-01"))
	if err != nil || len(cands) == 0 {
		t.Fatalf("Collect: %v (%d cands)", err, len(cands))
	}
	if cands[0].Harmonize {
		t.Error("harmonization set although disabled")
	}
}

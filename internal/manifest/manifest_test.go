package manifest

import (
	"context"
	"strings"
	"testing"
	"time"

	"skymosaic/internal/storage"
)

func testManifest(t *testing.T) (*Manifest, storage.Client) {
	t.Helper()
	store, err := storage.NewLocalClient(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalClient: %v", err)
	}
	return New(store, "mosaic_manifest.csv"), store
}

func TestAppendAndRows(t *testing.T) {
	m, store := testManifest(t)
	ctx := context.Background()

	row := Row{
		Year:       2024,
		Month:      7,
		Mosaic:     "2024_07/deadsea_2024_07_mosaic.tif",
		COG:        "2024_07/deadsea_2024_07_COG.tif",
		Tiles:      []string{"t0000.tif", "t0001.tif"},
		Provenance: `{"job_id":"j-1","year":2024,"month":7,"tiles":{"tile_0":{"status":"ok"}}}`,
		Timestamp:  time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := m.Append(ctx, row); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rows, err := m.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	got := rows[0]
	if got.Year != 2024 || got.Month != 7 || got.COG != row.COG {
		t.Errorf("round-tripped row = %+v", got)
	}
	if len(got.Tiles) != 2 || got.Tiles[1] != "t0001.tif" {
		t.Errorf("tile list = %v", got.Tiles)
	}
	if !got.Timestamp.Equal(row.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, row.Timestamp)
	}
	// The embedded JSON blob survives CSV quoting intact.
	if got.Provenance != row.Provenance {
		t.Errorf("provenance blob = %q, want %q", got.Provenance, row.Provenance)
	}

	raw, err := store.Get(ctx, "mosaic_manifest.csv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.HasPrefix(string(raw), "year,month,mosaic,cog,tiles,provenance_json,timestamp") {
		t.Errorf("manifest missing header: %q", string(raw)[:60])
	}
}

func TestHas(t *testing.T) {
	m, _ := testManifest(t)
	ctx := context.Background()

	has, err := m.Has(ctx, 2024, 7)
	if err != nil || has {
		t.Fatalf("Has on empty manifest = %v, %v", has, err)
	}

	if err := m.Append(ctx, Row{Year: 2024, Month: 7, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	has, err = m.Has(ctx, 2024, 7)
	if err != nil || !has {
		t.Errorf("Has after append = %v, %v, want true", has, err)
	}
	has, err = m.Has(ctx, 2024, 8)
	if err != nil || has {
		t.Errorf("Has for other month = %v, %v, want false", has, err)
	}
}

func TestAppendPreservesEarlierRows(t *testing.T) {
	m, _ := testManifest(t)
	ctx := context.Background()

	for month := 1; month <= 3; month++ {
		row := Row{Year: 2024, Month: month, Timestamp: time.Now()}
		if err := m.Append(ctx, row); err != nil {
			t.Fatalf("Append month %d: %v", month, err)
		}
	}
	rows, err := m.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, r := range rows {
		if r.Month != i+1 {
			t.Errorf("row %d month = %d, want %d", i, r.Month, i+1)
		}
	}
}

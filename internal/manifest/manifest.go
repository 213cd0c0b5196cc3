// Package manifest maintains the append-only CSV record of completed
// months.
package manifest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"skymosaic/internal/storage"
)

var header = []string{"year", "month", "mosaic", "cog", "tiles", "provenance_json", "timestamp"}

// Row is one completed month. Provenance carries the month's serialized
// provenance document, so the manifest stays readable without the artifact
// store.
type Row struct {
	Year       int
	Month      int
	Mosaic     string
	COG        string
	Tiles      []string
	Provenance string
	Timestamp  time.Time
}

// Manifest reads and appends rows through the artifact store, so the record
// lives next to the artifacts it describes.
type Manifest struct {
	store  storage.Client
	object string
}

// New returns a manifest stored at the given object path.
func New(store storage.Client, object string) *Manifest {
	return &Manifest{store: store, object: object}
}

// Append adds one row, creating the file with its header on first use.
func (m *Manifest) Append(ctx context.Context, row Row) error {
	rows, err := m.Rows(ctx)
	if err != nil {
		return err
	}
	rows = append(rows, row)
	return m.write(ctx, rows)
}

// Has reports whether a row for the given month already exists.
func (m *Manifest) Has(ctx context.Context, year, month int) (bool, error) {
	rows, err := m.Rows(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.Year == year && r.Month == month {
			return true, nil
		}
	}
	return false, nil
}

// Rows returns every recorded month, oldest first.
func (m *Manifest) Rows(ctx context.Context) ([]Row, error) {
	exists, err := m.store.Exists(ctx, m.object)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	data, err := m.store.Get(ctx, m.object)
	if err != nil {
		return nil, err
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", m.object, err)
	}
	var rows []Row
	for i, rec := range records {
		if i == 0 || len(rec) < 7 {
			continue
		}
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("manifest %s line %d: %w", m.object, i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *Manifest) write(ctx context.Context, rows []Row) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		tiles, err := json.Marshal(r.Tiles)
		if err != nil {
			return fmt.Errorf("failed to encode tile list: %w", err)
		}
		rec := []string{
			strconv.Itoa(r.Year),
			strconv.Itoa(r.Month),
			r.Mosaic,
			r.COG,
			string(tiles),
			r.Provenance,
			r.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return m.store.Store(ctx, m.object, buf.Bytes())
}

func parseRow(rec []string) (Row, error) {
	year, err := strconv.Atoi(rec[0])
	if err != nil {
		return Row{}, fmt.Errorf("bad year %q", rec[0])
	}
	month, err := strconv.Atoi(rec[1])
	if err != nil {
		return Row{}, fmt.Errorf("bad month %q", rec[1])
	}
	var tiles []string
	if rec[4] != "" {
		if err := json.Unmarshal([]byte(rec[4]), &tiles); err != nil {
			return Row{}, fmt.Errorf("bad tile list: %w", err)
		}
	}
	ts, err := time.Parse(time.RFC3339, rec[6])
	if err != nil {
		return Row{}, fmt.Errorf("bad timestamp %q", rec[6])
	}
	return Row{
		Year:       year,
		Month:      month,
		Mosaic:     rec[2],
		COG:        rec[3],
		Tiles:      tiles,
		Provenance: rec[5],
		Timestamp:  ts,
	}, nil
}

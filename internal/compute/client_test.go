package compute

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skymosaic/internal/models"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "test-token")
	c.retryDelay = time.Millisecond
	return c, srv
}

func TestCatalogQuery(t *testing.T) {
	var gotQuery CatalogQuery
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/catalog" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("missing auth header, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotQuery); err != nil {
			t.Errorf("decode query: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]CatalogEntry{
			{ImageID: "img-1", AcquiredAt: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
				Properties: map[string]float64{"CLOUD_COVER": 12.5}},
			{ImageID: "img-2", AcquiredAt: time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)},
		})
	}))

	entries, err := c.Catalog(context.Background(), CatalogQuery{
		Collections: []string{"LANDSAT/LC09/C02/T1_L2"},
		Region:      models.BoundingBox{LonMin: 35.3, LatMin: 31.1, LonMax: 35.4, LatMax: 31.2},
		SortBy:      "CLOUD_COVER",
		Limit:       20,
	})
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(entries) != 2 || entries[0].ImageID != "img-1" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].Properties["CLOUD_COVER"] != 12.5 {
		t.Errorf("properties not decoded: %+v", entries[0].Properties)
	}
	if gotQuery.SortBy != "CLOUD_COVER" || gotQuery.Limit != 20 {
		t.Errorf("query not forwarded: %+v", gotQuery)
	}
}

func TestRegionStatsMissingValue(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Stats{Value: nil, Count: 0})
	}))
	stats, err := c.RegionStats(context.Background(), StatsRequest{Band: "quality", Reducer: "mean"})
	if err != nil {
		t.Fatalf("RegionStats: %v", err)
	}
	if stats.Value != nil {
		t.Errorf("expected absent value, got %v", *stats.Value)
	}
}

func TestDownloadRetriesTransientFailures(t *testing.T) {
	attempts := 0
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("II*\x00rasterbytes"))
	}))

	data, err := c.Download(context.Background(), srv.URL+"/dl/abc")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if attempts != 3 {
		t.Errorf("got %d attempts, want 3", attempts)
	}
	if string(data[:4]) != "II*\x00" {
		t.Errorf("payload corrupted: %q", data[:4])
	}
}

func TestDownloadRetriesErrorPages(t *testing.T) {
	attempts := 0
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			// Error page delivered with HTTP 200.
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body>Temporarily unavailable</body></html>"))
			return
		}
		w.Write([]byte("II*\x00rasterbytes"))
	}))

	data, err := c.Download(context.Background(), srv.URL+"/dl/abc")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if attempts != 3 {
		t.Errorf("got %d attempts, want 3 (error page must be retried)", attempts)
	}
	if string(data[:4]) != "II*\x00" {
		t.Errorf("returned payload is not the TIFF: %q", data[:20])
	}
}

func TestDownloadErrorPageExhaustsRetries(t *testing.T) {
	attempts := 0
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(`{"error": "render backlog"}`))
	}))

	_, err := c.Download(context.Background(), srv.URL+"/dl/abc")
	if err == nil {
		t.Fatal("expected error when every attempt returns an error page")
	}
	if attempts != 3 {
		t.Errorf("got %d attempts, want 3", attempts)
	}
	if !strings.Contains(err.Error(), "render backlog") {
		t.Errorf("error should carry the page snippet, got %v", err)
	}
}

func TestDownloadGivesUpAfterRetries(t *testing.T) {
	attempts := 0
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.Download(context.Background(), srv.URL+"/dl/abc")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if attempts != 3 {
		t.Errorf("got %d attempts, want 3", attempts)
	}
}

func TestDownloadTooLargeIsNotRetried(t *testing.T) {
	attempts := 0
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))

	_, err := c.Download(context.Background(), srv.URL+"/dl/abc")
	if !errors.Is(err, ErrTileTooLarge) {
		t.Fatalf("got %v, want ErrTileTooLarge", err)
	}
	if attempts != 1 {
		t.Errorf("too-large response retried %d times", attempts)
	}
}

func TestDownloadURLMapsServiceErrors(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"payload_too_large", ErrTileTooLarge},
		{"unsupported_operation", ErrUnsupportedOp},
		{"no_images", ErrNoImages},
	}
	for _, tt := range tests {
		c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(apiError{Code: tt.code, Message: "nope"})
		}))
		_, err := c.DownloadURL(context.Background(), Expression{})
		if !errors.Is(err, tt.want) {
			t.Errorf("code %s mapped to %v, want %v", tt.code, err, tt.want)
		}
	}
}

func TestDownloadURLReturnsURL(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var expr Expression
		if err := json.NewDecoder(r.Body).Decode(&expr); err != nil {
			t.Errorf("decode expression: %v", err)
		}
		if expr.Method != models.MethodQualityMosaic {
			t.Errorf("method %s not forwarded", expr.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"url": "https://example.com/dl/xyz"})
	}))

	url, err := c.DownloadURL(context.Background(), Expression{Method: models.MethodQualityMosaic})
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if url != "https://example.com/dl/xyz" {
		t.Errorf("url = %q", url)
	}
}

func TestDownloadHonorsContext(t *testing.T) {
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Download(ctx, srv.URL+"/dl/abc"); err == nil {
		t.Fatal("expected error with canceled context")
	}
}

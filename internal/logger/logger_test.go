package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn, FormatText)

	l.Debug("dropped debug")
	l.Info("dropped info")
	l.Warn("kept warn")
	l.Error("kept error", nil)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("filtered levels leaked into output:\n%s", out)
	}
	if !strings.Contains(out, "kept warn") || !strings.Contains(out, "kept error") {
		t.Errorf("expected warn and error lines, got:\n%s", out)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug, FormatText).WithComponent("stitch")

	l.Info("blending tiles", Fields{"tiles": 4, "bands": 7})

	out := buf.String()
	for _, want := range []string{"INFO", "[stitch]", "blending tiles", "bands=7 tiles=4"} {
		if !strings.Contains(out, want) {
			t.Errorf("text line missing %q:\n%s", want, out)
		}
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug, FormatJSON)

	l.Error("download failed", errors.New("connection reset"), Fields{"tile": 3})

	var got struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Error   string                 `json:"error"`
		Fields  map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if got.Level != "ERROR" || got.Message != "download failed" {
		t.Errorf("unexpected level/message: %+v", got)
	}
	if got.Error != "connection reset" {
		t.Errorf("error field = %q", got.Error)
	}
	if got.Fields["tile"] != float64(3) {
		t.Errorf("fields = %v", got.Fields)
	}
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug, FormatText)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatalf("unrecoverable: %s", "gdal missing")

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "unrecoverable: gdal missing") {
		t.Errorf("fatal message missing:\n%s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"Warning", LevelWarn, false},
		{"error", LevelError, false},
		{"", LevelInfo, false},
		{"verbose", LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSetupRejectsUnknown(t *testing.T) {
	if err := Setup("noisy", "text"); err == nil {
		t.Error("Setup accepted unknown level")
	}
	if err := Setup("info", "yaml"); err == nil {
		t.Error("Setup accepted unknown format")
	}
	if err := Setup("debug", "json"); err != nil {
		t.Errorf("Setup rejected valid settings: %v", err)
	}
	Setup("info", "text")
}

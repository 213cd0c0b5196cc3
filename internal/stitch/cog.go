package stitch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"skymosaic/internal/config"
	"skymosaic/internal/logger"
)

// CreateCOG derives a cloud-optimized, overview-pyramided copy of a mosaic.
// The copy is built under a temporary name and renamed into place only after
// both GDAL steps succeed, so a crash never leaves a half-written artifact.
func CreateCOG(ctx context.Context, mosaicPath, cogPath string) error {
	tmp := cogPath + ".tmp.tif"
	defer os.Remove(tmp)

	if err := runGDAL(ctx, "gdal_translate",
		mosaicPath, tmp, "-of", "COG", "-co", "COMPRESS=LZW", "-co", "BLOCKSIZE=512"); err != nil {
		return err
	}

	args := []string{"-r", "average", tmp}
	for _, level := range config.COGOverviews {
		args = append(args, strconv.Itoa(level))
	}
	if err := runGDAL(ctx, "gdaladdo", args...); err != nil {
		return err
	}

	if err := os.Rename(tmp, cogPath); err != nil {
		return fmt.Errorf("failed to move COG into place: %w", err)
	}
	logger.Infof("Created COG %s", cogPath)
	return nil
}

// ValidateCOG checks the structural integrity of a finished artifact. The
// file itself is checked directly; dimensions and band readability come from
// gdalinfo with checksums, since the COG layout is GDAL's to read.
func ValidateCOG(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("COG is absent: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("COG %s is empty", path)
	}
	if info.Size() < 1024 {
		return fmt.Errorf("COG %s is implausibly small (%d bytes)", path, info.Size())
	}

	out, err := gdalOutput(ctx, "gdalinfo", "-checksum", path)
	if err != nil {
		return fmt.Errorf("COG %s is unreadable: %w", path, err)
	}
	width, height, bands := parseGDALInfo(out)
	if width <= 0 || height <= 0 {
		return fmt.Errorf("COG %s has zero dimensions", path)
	}
	if bands == 0 {
		return fmt.Errorf("COG %s has no bands", path)
	}
	return nil
}

func runGDAL(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s failed: %s: %w", bin, msg, err)
		}
		return fmt.Errorf("%s failed: %w", bin, err)
	}
	return nil
}

func gdalOutput(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s failed: %s: %w", bin, msg, err)
		}
		return "", fmt.Errorf("%s failed: %w", bin, err)
	}
	return stdout.String(), nil
}

// parseGDALInfo extracts "Size is W, H" and counts "Band N" lines.
func parseGDALInfo(out string) (width, height, bands int) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "Size is "); ok {
			parts := strings.SplitN(rest, ",", 2)
			if len(parts) == 2 {
				width, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
				height, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
			}
		}
		if strings.HasPrefix(line, "Band ") {
			bands++
		}
	}
	return width, height, bands
}

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalClient stores artifacts under a base directory on the local
// filesystem.
type LocalClient struct {
	baseDir string
}

// NewLocalClient creates a local artifact store rooted at baseDir.
func NewLocalClient(baseDir string) (*LocalClient, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", baseDir, err)
	}
	return &LocalClient{baseDir: baseDir}, nil
}

// Close is a no-op for local storage.
func (l *LocalClient) Close() error { return nil }

// Path returns the absolute filesystem path of an object.
func (l *LocalClient) Path(objectPath string) string {
	return filepath.Join(l.baseDir, filepath.FromSlash(objectPath))
}

// Store writes an object, creating parent directories as needed.
func (l *LocalClient) Store(ctx context.Context, objectPath string, data []byte) error {
	path := l.Path(objectPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", objectPath, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", objectPath, err)
	}
	return nil
}

// StoreFile copies a local file into the store. The copy goes through a
// temporary name so a crash never leaves a truncated artifact.
func (l *LocalClient) StoreFile(ctx context.Context, objectPath, localPath string) error {
	dst := l.Path(objectPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", objectPath, err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	tmp := dst + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %s to %s: %w", localPath, objectPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", objectPath, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", objectPath, err)
	}
	return nil
}

// Get reads an object in full.
func (l *LocalClient) Get(ctx context.Context, objectPath string) ([]byte, error) {
	data, err := os.ReadFile(l.Path(objectPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", objectPath, err)
	}
	return data, nil
}

// Exists reports whether an object is present.
func (l *LocalClient) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := os.Stat(l.Path(objectPath))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", objectPath, err)
}

// List returns object paths under a prefix, sorted ascending.
func (l *LocalClient) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	err := filepath.Walk(l.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.baseDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", l.baseDir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"skymosaic/internal/logger"
)

// GCSClient stores artifacts in a Google Cloud Storage bucket.
type GCSClient struct {
	client *storage.Client
	bucket string
}

// NewGCSClient creates a GCS-backed artifact store.
func NewGCSClient(ctx context.Context, bucketName string) (*GCSClient, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSClient{client: client, bucket: bucketName}, nil
}

// Close closes the underlying GCS connection.
func (g *GCSClient) Close() error { return g.client.Close() }

// Store writes an object, replacing any previous version.
func (g *GCSClient) Store(ctx context.Context, objectPath string, data []byte) error {
	w := g.writer(ctx, objectPath)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", g.bucket, objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", g.bucket, objectPath, err)
	}
	return nil
}

// StoreFile streams a local file into an object.
func (g *GCSClient) StoreFile(ctx context.Context, objectPath, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	logger.Infof("Uploading %s to gs://%s/%s", localPath, g.bucket, objectPath)
	w := g.writer(ctx, objectPath)
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload gs://%s/%s: %w", g.bucket, objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", g.bucket, objectPath, err)
	}
	return nil
}

func (g *GCSClient) writer(ctx context.Context, objectPath string) *storage.Writer {
	w := g.client.Bucket(g.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = ContentType(objectPath)
	w.Metadata = map[string]string{
		"generated-at": time.Now().UTC().Format(time.RFC3339),
	}
	return w
}

// Get reads an object in full.
func (g *GCSClient) Get(ctx context.Context, objectPath string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", g.bucket, objectPath, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", g.bucket, objectPath, err)
	}
	return data, nil
}

// Exists reports whether an object is present.
func (g *GCSClient) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(objectPath).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat gs://%s/%s: %w", g.bucket, objectPath, err)
}

// List returns object paths under a prefix, sorted ascending.
func (g *GCSClient) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var paths []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", g.bucket, prefix, err)
		}
		if !strings.HasSuffix(attrs.Name, "/") {
			paths = append(paths, attrs.Name)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

package storage

import (
	"context"
	"fmt"
)

// NewClient selects the artifact store for a run: GCS when a bucket is
// configured, otherwise the local filesystem under outputDir.
func NewClient(ctx context.Context, gcsBucket, outputDir string) (Client, error) {
	if gcsBucket != "" {
		client, err := NewGCSClient(ctx, gcsBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS storage: %w", err)
		}
		return client, nil
	}
	client, err := NewLocalClient(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}
	return client, nil
}

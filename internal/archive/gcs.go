package archive

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCS stores archives as objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS builds a bucket-backed provider.
func NewGCS(client *storage.Client, bucket string) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) SavePage(ctx context.Context, landID, expressionID int64, html []byte) error {
	w := g.client.Bucket(g.bucket).Object(pagePath(landID, expressionID)).NewWriter(ctx)
	w.ContentType = "text/html; charset=utf-8"
	if _, err := w.Write(html); err != nil {
		_ = w.Close()
		return fmt.Errorf("write archive object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close archive object: %w", err)
	}
	return nil
}

func (g *GCS) ReadPage(ctx context.Context, landID, expressionID int64) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(pagePath(landID, expressionID)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open archive object: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive object: %w", err)
	}
	return data, nil
}

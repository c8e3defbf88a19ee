// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// Config captures the bucket and optional object prefix for snapshots.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// objectWriter is the subset of *storage.Writer used for uploads.
type objectWriter interface {
	io.Writer
	Close() error
}

// BlobStore uploads snapshots to a GCS bucket.
type BlobStore struct {
	bucket    string
	prefix    string
	newWriter func(ctx context.Context, object, contentType string) objectWriter
}

var _ crawler.BlobStore = (*BlobStore)(nil)

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	handle := client.Bucket(cfg.Bucket)
	return newStore(cfg, func(ctx context.Context, object, contentType string) objectWriter {
		w := handle.Object(object).NewWriter(ctx)
		w.ContentType = contentType
		return w
	}), nil
}

func newStore(cfg Config, newWriter func(ctx context.Context, object, contentType string) objectWriter) *BlobStore {
	return &BlobStore{
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		newWriter: newWriter,
	}
}

// PutObject uploads r and returns a gs:// URI. The upload is committed by Close.
func (s *BlobStore) PutObject(ctx context.Context, objectPath string, contentType string, r io.Reader) (string, error) {
	objectPath = strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if objectPath == "" {
		return "", errors.New("path is required")
	}
	object := objectPath
	if s.prefix != "" {
		object = path.Join(s.prefix, objectPath)
	}
	writer := s.newWriter(ctx, object, contentType)
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

package gcs

import (
	"context"
	"io"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// Upload streams r into bucketName/objectName.
	Upload(ctx context.Context, bucketName, objectName, contentType string, r io.Reader) error

	// Download returns the bytes behind a gs://bucket/object URI.
	Download(ctx context.Context, gcsURI string) ([]byte, error)
}

// Package storage provides the object storage backends used by the blob sink.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts blob storage operations.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Put stores body at objectPath and returns the object's ETag.
	// With overwrite unset an existing object is left untouched and
	// ErrObjectExists is returned.
	Put(ctx context.Context, objectPath string, body []byte, overwrite bool) (string, error)

	// Upload copies a local file to objectPath, replacing any existing object.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to a local file.
	Download(ctx context.Context, objectPath, localPath string) error

	// Get returns the content of objectPath.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

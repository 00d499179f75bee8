package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/internal/logging"
	"github.com/MerlinMa/pals/internal/normalize"
	"github.com/MerlinMa/pals/internal/storage"
	"github.com/MerlinMa/pals/pkg/types"
)

// CompressedSuffix is appended to compressed blob names.
const CompressedSuffix = ".sz"

// BlobSink writes tables as CSV objects.
type BlobSink struct {
	store storage.ObjectStorage
	log   logging.Logger
}

// NewBlobSink creates a blob sink over store.
func NewBlobSink(store storage.ObjectStorage, log logging.Logger) *BlobSink {
	if log == nil {
		log = logging.Nop()
	}
	return &BlobSink{store: store, log: log}
}

// DefaultBlobName names a table's blob after its first timestamp. Empty
// tables get a random name.
func DefaultBlobName(t *types.Table) string {
	if t != nil && t.Len() > 0 {
		return normalize.FormatTimestamp(t.Index[0]) + ".csv"
	}
	return uuid.NewString() + ".csv"
}

// Upload stores t as CSV.
func (b *BlobSink) Upload(ctx context.Context, dest Destination, t *types.Table) error {
	if t == nil {
		return palserrors.NewValidationError(palserrors.CodeNullInput, "table cannot be nil")
	}
	if dest.Name == "" {
		dest.Name = DefaultBlobName(t)
	}

	body, err := EncodeCSV(t)
	if err != nil {
		return palserrors.NewUploadError("encode csv", err)
	}
	_, err = b.UploadData(ctx, dest, body)
	return err
}

// UploadData stores body at the destination and returns the object path.
// An existing object is left in place when dest.Overwrite is unset.
func (b *BlobSink) UploadData(ctx context.Context, dest Destination, body []byte) (string, error) {
	if body == nil {
		return "", palserrors.NewValidationError(palserrors.CodeNullInput, "blob contents cannot be nil")
	}
	if dest.Name == "" {
		return "", palserrors.NewValidationError(palserrors.CodeNullInput, "blob name cannot be empty")
	}

	path := ObjectPath(dest.Subdir, dest.Name)
	if dest.Compress {
		body = snappy.Encode(nil, body)
		path += CompressedSuffix
	}

	etag, err := b.store.Put(ctx, path, body, dest.Overwrite)
	if errors.Is(err, storage.ErrObjectExists) {
		b.log.Info("blob exists, upload skipped", "path", path)
		return path, nil
	}
	if err != nil {
		return "", palserrors.NewUploadError(fmt.Sprintf("upload blob %s", path), err)
	}

	b.log.Debug("blob uploaded", "path", path, "bytes", len(body), "etag", etag)
	return path, nil
}

// UploadFile stores a local file. The blob name defaults to the file's base
// name.
func (b *BlobSink) UploadFile(ctx context.Context, localPath string, dest Destination) (string, error) {
	if localPath == "" {
		return "", palserrors.NewValidationError(palserrors.CodeNullInput, "local filename cannot be empty")
	}
	body, err := os.ReadFile(localPath)
	if err != nil {
		return "", palserrors.NewUploadError(fmt.Sprintf("read %s", localPath), err)
	}
	if dest.Name == "" {
		dest.Name = filepath.Base(localPath)
	}
	return b.UploadData(ctx, dest, body)
}

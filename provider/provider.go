package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedScheme is returned for URIs no provider can serve.
var ErrUnsupportedScheme = errors.New("unsupported uri scheme")

// DefaultContentType is used when the content of a file cannot be identified.
const DefaultContentType = "application/octet-stream"

// FileInfo represents the standard metadata for a file or a directory
// across different storage abstractions.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// WriteOptions describe the object written by OpenWrite.
type WriteOptions struct {
	// ContentType is stored with the object when the backend supports it.
	ContentType string

	// ModTime is applied to local files once written.
	ModTime time.Time

	// Metadata is stored as user metadata on object stores.
	Metadata map[string]string
}

// Provider represents a storage backend abstraction.
type Provider interface {
	// Stat returns the FileInfo for the given path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the contents of the given directory.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// OpenRead opens a file for streaming reads.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens a file for streaming writes. The object is complete
	// once Close returns without error.
	OpenWrite(ctx context.Context, path string, opts WriteOptions) (io.WriteCloser, error)

	// Delete removes a file.
	Delete(ctx context.Context, path string) error
}

// DetectContentType sniffs the MIME type of a file from its first bytes.
func DetectContentType(ctx context.Context, p Provider, path string) (string, error) {
	r, err := p.OpenRead(ctx, path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to sniff %s: %w", path, err)
	}
	if mtype == nil || mtype.String() == "" {
		return DefaultContentType, nil
	}
	return mtype.String(), nil
}

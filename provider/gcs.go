package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var _ Provider = (*GCSProvider)(nil)

// GCSProvider implements Provider for a Google Cloud Storage bucket.
type GCSProvider struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSProvider creates a GCSProvider. When credsFile is empty the
// application default credentials are used.
func NewGCSProvider(ctx context.Context, bucket, prefix, credsFile string) (*GCSProvider, error) {
	if bucket == "" {
		return nil, errors.New("missing gcs bucket")
	}

	var opts []option.ClientOption
	if credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create gcs client: %w", err)
	}
	return NewGCSProviderFromClient(client, bucket, prefix), nil
}

// NewGCSProviderFromClient creates a GCSProvider using an existing client.
func NewGCSProviderFromClient(client *storage.Client, bucket, prefix string) *GCSProvider {
	return &GCSProvider{client: client, bucket: bucket, prefix: prefix}
}

func (p *GCSProvider) objectName(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if p.prefix == "" {
		return subPath
	}
	return strings.TrimPrefix(path.Join(p.prefix, subPath), "/")
}

func (p *GCSProvider) Stat(ctx context.Context, pth string) (FileInfo, error) {
	name := p.objectName(pth)

	attrs, err := p.client.Bucket(p.bucket).Object(name).Attrs(ctx)
	if err == nil {
		return &objectInfo{
			name:    path.Base(name),
			size:    attrs.Size,
			modTime: attrs.Updated,
		}, nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("stat failed for %q: %w", pth, err)
	}

	// no object, maybe a directory
	it := p.client.Bucket(p.bucket).Objects(ctx, &storage.Query{Prefix: dirPrefix(name)})
	if _, err := it.Next(); err == nil {
		return dirInfo(path.Base(name)), nil
	} else if !errors.Is(err, iterator.Done) {
		return nil, fmt.Errorf("stat failed for %q: %w", pth, err)
	}

	return nil, fmt.Errorf("%w: %s", os.ErrNotExist, pth)
}

func (p *GCSProvider) List(ctx context.Context, pth string) ([]FileInfo, error) {
	prefix := dirPrefix(p.objectName(pth))

	var infos []FileInfo
	it := p.client.Bucket(p.bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", pth, err)
		}

		// synthetic directory entries only carry a prefix
		if attrs.Prefix != "" {
			infos = append(infos, dirInfo(strings.TrimPrefix(attrs.Prefix, prefix)))
			continue
		}

		name := strings.TrimPrefix(attrs.Name, prefix)
		if name == "" {
			continue
		}
		infos = append(infos, &objectInfo{
			name:    name,
			size:    attrs.Size,
			modTime: attrs.Updated,
		})
	}
	return infos, nil
}

func (p *GCSProvider) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	r, err := p.client.Bucket(p.bucket).Object(p.objectName(pth)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open read %q: %w", pth, err)
	}
	return r, nil
}

func (p *GCSProvider) OpenWrite(ctx context.Context, pth string, opts WriteOptions) (io.WriteCloser, error) {
	w := p.client.Bucket(p.bucket).Object(p.objectName(pth)).NewWriter(ctx)
	w.ContentType = opts.ContentType
	if w.ContentType == "" {
		w.ContentType = DefaultContentType
	}
	if len(opts.Metadata) > 0 {
		w.Metadata = opts.Metadata
	}
	return w, nil
}

func (p *GCSProvider) Delete(ctx context.Context, pth string) error {
	if err := p.client.Bucket(p.bucket).Object(p.objectName(pth)).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %q: %w", pth, err)
	}
	return nil
}

package provider

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ensure interface is implemented
var _ Provider = (*Resolver)(nil)

// Options configure providers opened from a URI.
type Options struct {
	// GCSCredentialsFile is a service account file for gs:// URIs.
	GCSCredentialsFile string
}

// Open creates the provider for a URI root: s3://bucket/prefix,
// gs://bucket/prefix, file:///dir or a plain local path.
func Open(ctx context.Context, uri string, opts Options) (Provider, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return NewLocalProvider(uri), nil
	}

	switch scheme {
	case "s3":
		bucket, prefix, _ := strings.Cut(rest, "/")
		return NewS3Provider(ctx, bucket, prefix)
	case "gs":
		bucket, prefix, _ := strings.Cut(rest, "/")
		return NewGCSProvider(ctx, bucket, prefix, opts.GCSCredentialsFile)
	case "file":
		return NewLocalProvider(rest), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}

// Resolver dispatches full URIs to the provider mounted on their longest
// matching prefix. Unmounted s3:// and gs:// buckets are opened on first use;
// anything else goes to the local filesystem.
type Resolver struct {
	opts  Options
	local Provider

	mu     sync.RWMutex
	mounts map[string]Provider
}

// NewResolver creates a Resolver that falls back to the host filesystem.
func NewResolver(opts Options) *Resolver {
	return &Resolver{
		opts:   opts,
		local:  NewLocalProvider(""),
		mounts: make(map[string]Provider),
	}
}

// Mount serves every URI below prefix with p. Paths are passed to p with
// the prefix removed, keeping their leading slash.
func (r *Resolver) Mount(prefix string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts[strings.TrimSuffix(prefix, "/")] = p
}

// SetLocal replaces the fallback provider.
func (r *Resolver) SetLocal(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = p
}

func (r *Resolver) lookup(uri string) (Provider, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	var found Provider
	for prefix, p := range r.mounts {
		if len(prefix) <= len(best) {
			continue
		}
		if uri == prefix || strings.HasPrefix(uri, prefix+"/") {
			best, found = prefix, p
		}
	}
	if found == nil {
		return nil, "", false
	}
	return found, uri[len(best):], true
}

func (r *Resolver) resolve(ctx context.Context, uri string) (Provider, string, error) {
	if p, rel, ok := r.lookup(uri); ok {
		return p, rel, nil
	}

	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "file" {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.local, uri, nil
	}
	if scheme != "s3" && scheme != "gs" {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	root := scheme + "://" + bucket
	p, err := Open(ctx, root, r.opts)
	if err != nil {
		return nil, "", err
	}
	r.Mount(root, p)
	return p, key, nil
}

func (r *Resolver) Stat(ctx context.Context, uri string) (FileInfo, error) {
	p, rel, err := r.resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	return p.Stat(ctx, rel)
}

func (r *Resolver) List(ctx context.Context, uri string) ([]FileInfo, error) {
	p, rel, err := r.resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	return p.List(ctx, rel)
}

func (r *Resolver) OpenRead(ctx context.Context, uri string) (io.ReadCloser, error) {
	p, rel, err := r.resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	return p.OpenRead(ctx, rel)
}

func (r *Resolver) OpenWrite(ctx context.Context, uri string, opts WriteOptions) (io.WriteCloser, error) {
	p, rel, err := r.resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	return p.OpenWrite(ctx, rel, opts)
}

func (r *Resolver) Delete(ctx context.Context, uri string) error {
	p, rel, err := r.resolve(ctx, uri)
	if err != nil {
		return err
	}
	return p.Delete(ctx, rel)
}

// Package protocol provides the task bodies that move files to their
// destination: raw HTTP bodies, multipart forms and provider copies.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/time/rate"

	"github.com/franksops/gfupload/engine"
	"github.com/franksops/gfupload/provider"
)

// Protocol names.
const (
	NameBinary    = "binary"
	NameMultipart = "multipart"
	NameCopy      = "copy"
)

// File properties understood by the protocols.
const (
	PropertyParamName      = "param_name"
	PropertyContentType    = "content_type"
	PropertyRemoteFileName = "remote_file_name"
)

// ErrUnknownProtocol is returned by New for names it does not know.
var ErrUnknownProtocol = errors.New("unknown protocol")

// Deps are shared by the uploaders created by New.
type Deps struct {
	// Client sends HTTP requests. http.DefaultClient when nil.
	Client *http.Client

	// Files reads the files to upload.
	Files provider.Provider

	// Buffers provides copy buffers. A private pool when nil.
	Buffers *engine.BufferPool

	// Limiter caps the upload bandwidth of every task. Nil means unlimited.
	Limiter *rate.Limiter

	// OpenDestination opens the provider of a copy destination.
	OpenDestination func(ctx context.Context, uri string) (provider.Provider, error)
}

func (d Deps) client() *http.Client {
	if d.Client == nil {
		return http.DefaultClient
	}
	return d.Client
}

func (d Deps) buffers() *engine.BufferPool {
	if d.Buffers == nil {
		return engine.NewBufferPool(0)
	}
	return d.Buffers
}

// New returns the uploader registered under name.
func New(name string, deps Deps) (engine.Uploader, error) {
	if deps.Files == nil {
		deps.Files = provider.NewLocalProvider("")
	}
	deps.Buffers = deps.buffers()

	switch strings.ToLower(name) {
	case NameBinary:
		return &Binary{deps: deps}, nil
	case NameMultipart, "":
		return &Multipart{deps: deps}, nil
	case NameCopy:
		return &Copy{deps: deps}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
	}
}

// prepare resolves a file and returns its size. A missing file is fatal.
func prepare(ctx context.Context, files provider.Provider, f *engine.FileEntry) (int64, error) {
	info, err := files.Stat(ctx, f.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, engine.Fatal(err)
		}
		return 0, err
	}
	if info.IsDir() {
		return 0, engine.Fatal(fmt.Errorf("%s is a directory", f.Path()))
	}
	if err := f.Resolve(ctx, files); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func remoteName(f *engine.FileEntry) string {
	if name, ok := f.Property(PropertyRemoteFileName); ok && name != "" {
		return name
	}
	return f.Name()
}

func contentType(f *engine.FileEntry) string {
	if ct, ok := f.Property(PropertyContentType); ok && ct != "" {
		return ct
	}
	if ct := f.ContentType(); ct != "" {
		return ct
	}
	return provider.DefaultContentType
}

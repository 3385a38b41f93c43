package engine

import (
	"context"
	"fmt"
	"path"

	"github.com/franksops/gfupload/provider"
)

// Property is a single key/value pair attached to a FileEntry.
type Property struct {
	Key   string
	Value string
}

// FileEntry references one file to upload. The content type and display
// name are resolved lazily through a provider and cached on the entry.
type FileEntry struct {
	path        string
	contentType string
	name        string
	resolved    bool

	keys  []string
	props map[string]string
}

// NewFileEntry creates a FileEntry for the given path or URI.
func NewFileEntry(filePath string) (*FileEntry, error) {
	if filePath == "" {
		return nil, ErrEmptyPath
	}
	return &FileEntry{
		path:  filePath,
		props: make(map[string]string),
	}, nil
}

// MustFileEntry is like NewFileEntry but panics on an empty path.
func MustFileEntry(filePath string) *FileEntry {
	f, err := NewFileEntry(filePath)
	if err != nil {
		panic(err)
	}
	return f
}

// Path returns the path or URI of the file.
func (f *FileEntry) Path() string { return f.path }

// ContentType returns the explicit or resolved content type.
func (f *FileEntry) ContentType() string { return f.contentType }

// SetContentType overrides the content type. An explicit value is never
// replaced by Resolve.
func (f *FileEntry) SetContentType(contentType string) *FileEntry {
	f.contentType = contentType
	return f
}

// Name returns the explicit or resolved display name.
func (f *FileEntry) Name() string {
	if f.name == "" {
		return path.Base(f.path)
	}
	return f.name
}

// SetName overrides the display name.
func (f *FileEntry) SetName(name string) *FileEntry {
	f.name = name
	return f
}

// SetProperty stores a property, keeping the order in which keys were first set.
func (f *FileEntry) SetProperty(key, value string) *FileEntry {
	if _, ok := f.props[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.props[key] = value
	return f
}

// Property returns the value stored under key.
func (f *FileEntry) Property(key string) (string, bool) {
	v, ok := f.props[key]
	return v, ok
}

// Properties returns a copy of all properties in insertion order.
func (f *FileEntry) Properties() []Property {
	out := make([]Property, 0, len(f.keys))
	for _, k := range f.keys {
		out = append(out, Property{Key: k, Value: f.props[k]})
	}
	return out
}

// Resolve fills in the content type and name from the provider. It runs at
// most once per entry; later calls are no-ops.
func (f *FileEntry) Resolve(ctx context.Context, p provider.Provider) error {
	if f.resolved {
		return nil
	}

	if f.name == "" {
		info, err := p.Stat(ctx, f.path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", f.path, err)
		}
		f.name = info.Name()
	}

	if f.contentType == "" {
		contentType, err := provider.DetectContentType(ctx, p, f.path)
		if err != nil {
			return fmt.Errorf("detect content type of %s: %w", f.path, err)
		}
		f.contentType = contentType
	}

	f.resolved = true
	return nil
}

package provider

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ensure interface is implemented
var _ Provider = (*LocalProvider)(nil)

// LocalProvider implements the Provider interface on top of an afero filesystem,
// the host filesystem unless told otherwise.
type LocalProvider struct {
	fs afero.Fs
}

// NewLocalProvider creates a new LocalProvider rooted at basePath.
// If basePath is empty, it acts upon absolute or relative paths directly.
func NewLocalProvider(basePath string) *LocalProvider {
	var fs afero.Fs = afero.NewOsFs()
	if basePath != "" {
		fs = afero.NewBasePathFs(fs, basePath)
	}
	return &LocalProvider{fs: fs}
}

// NewLocalProviderFs creates a LocalProvider on an arbitrary afero filesystem.
func NewLocalProviderFs(fs afero.Fs) *LocalProvider {
	return &LocalProvider{fs: fs}
}

func (p *LocalProvider) resolve(path string) string {
	return filepath.Clean(strings.TrimPrefix(path, "file://"))
}

func (p *LocalProvider) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.fs.Stat(p.resolve(path))
}

func (p *LocalProvider) List(ctx context.Context, path string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(p.fs, p.resolve(path))
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, entry)
	}
	return infos, nil
}

func (p *LocalProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.fs.Open(p.resolve(path))
}

func (p *LocalProvider) OpenWrite(ctx context.Context, path string, opts WriteOptions) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := p.resolve(path)

	// Create parent directories if they don't exist
	if err := p.fs.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, err
	}

	file, err := p.fs.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	return &localWriteCloser{
		File:     file,
		fs:       p.fs,
		fullPath: fullPath,
		modTime:  opts.ModTime,
	}, nil
}

func (p *LocalProvider) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.fs.Remove(p.resolve(path))
}

// localWriteCloser applies the modification time on close, since writing
// the file updates it.
type localWriteCloser struct {
	afero.File
	fs       afero.Fs
	fullPath string
	modTime  time.Time
}

func (l *localWriteCloser) Close() error {
	if err := l.File.Close(); err != nil {
		return err
	}

	if !l.modTime.IsZero() {
		// best effort, some filesystems refuse it
		_ = l.fs.Chtimes(l.fullPath, time.Now(), l.modTime)
	}
	return nil
}

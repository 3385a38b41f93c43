package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/franksops/gfupload/provider"
)

// Walker expands a path into the file entries of an upload.
// It walks iteratively to avoid deep recursion on very deep trees.
type Walker struct {
	Files provider.Provider
}

// NewWalker creates a new iterative directory walker.
func NewWalker(files provider.Provider) *Walker {
	return &Walker{Files: files}
}

// Collect returns the entries for root. A file yields one entry, a directory
// yields every file below it.
func (w *Walker) Collect(ctx context.Context, root string) ([]*FileEntry, error) {
	stat, err := w.Files.Stat(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}

	if !stat.IsDir() {
		f, err := NewFileEntry(root)
		if err != nil {
			return nil, err
		}
		return []*FileEntry{f}, nil
	}

	var out []*FileEntry
	stack := []string{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := w.Files.List(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			p := joinPath(dir, entry.Name())
			if entry.IsDir() {
				stack = append(stack, p)
				continue
			}

			f, err := NewFileEntry(p)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	}

	return out, nil
}

// joinPath appends name to dir without cleaning, so URIs like s3://bucket
// keep their double slash.
func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/franksops/gfupload/engine"
	"github.com/franksops/gfupload/provider"
)

// Copy writes each pending file to a storage provider below the task
// destination. Files are marked completed one by one, so a retry only sends
// what is still pending.
type Copy struct {
	deps Deps
}

// Upload implements engine.Uploader.
func (c *Copy) Upload(ctx context.Context, tr *engine.Transfer) (*engine.Response, error) {
	p := tr.Params()

	dst, err := c.open(ctx, p.Destination)
	if err != nil {
		if errors.Is(err, provider.ErrUnsupportedScheme) {
			return nil, engine.Fatal(err)
		}
		return nil, fmt.Errorf("open destination %s: %w", p.Destination, err)
	}

	pending := tr.Pending()
	sizes := make([]int64, len(pending))
	var total int64
	for i, f := range pending {
		size, err := prepare(ctx, c.deps.Files, f)
		if err != nil {
			return nil, err
		}
		sizes[i] = size
		total += size
	}

	resp := engine.OKResponse()
	var base int64
	for i, f := range pending {
		if !tr.ShouldContinue() {
			return nil, context.Canceled
		}

		sum, err := c.copyFile(ctx, tr, dst, f, base, total)
		if err != nil {
			return nil, err
		}
		tr.MarkCompleted(f)
		resp.Header.Add(engine.ChecksumHeader, remoteName(f)+"="+sum)
		base += sizes[i]
	}

	tr.ReportProgress(total, total)
	return resp, nil
}

func (c *Copy) open(ctx context.Context, uri string) (provider.Provider, error) {
	if c.deps.OpenDestination != nil {
		return c.deps.OpenDestination(ctx, uri)
	}
	return provider.Open(ctx, uri, provider.Options{})
}

func (c *Copy) copyFile(ctx context.Context, tr *engine.Transfer, dst provider.Provider, f *engine.FileEntry, base, total int64) (string, error) {
	info, err := c.deps.Files.Stat(ctx, f.Path())
	if err != nil {
		return "", err
	}

	rc, err := c.deps.Files.OpenRead(ctx, f.Path())
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Path(), err)
	}
	defer rc.Close()

	w, err := dst.OpenWrite(ctx, remoteName(f), provider.WriteOptions{
		ContentType: contentType(f),
		ModTime:     info.ModTime(),
		Metadata:    map[string]string{"source": f.Path()},
	})
	if err != nil {
		return "", fmt.Errorf("open destination for %s: %w", f.Path(), err)
	}

	sum := engine.NewChecksumReader(rc)
	body := engine.NewTrackedReader(limit(ctx, sum, c.deps.Limiter), base, total, tr.ReportProgress)
	if _, err := c.deps.Buffers.CopyContext(ctx, w, body); err != nil {
		w.Close()
		return "", fmt.Errorf("copy %s: %w", f.Path(), err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finish %s: %w", f.Path(), err)
	}

	tr.Logger().Debug("file copied", "file", f.Path(), "bytes", sum.BytesRead())
	return sum.ChecksumHex(), nil
}

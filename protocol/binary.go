package protocol

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/franksops/gfupload/engine"
)

// Binary sends a single file as the raw request body. The CRC64 of the body
// follows it as an HTTP trailer.
type Binary struct {
	deps Deps
}

// Upload implements engine.Uploader.
func (b *Binary) Upload(ctx context.Context, tr *engine.Transfer) (*engine.Response, error) {
	p := tr.Params()
	if len(p.Files) != 1 {
		return nil, engine.Fatal(fmt.Errorf("binary upload needs exactly one file, got %d", len(p.Files)))
	}

	pending := tr.Pending()
	if len(pending) == 0 {
		return engine.OKResponse(), nil
	}
	f := pending[0]

	size, err := prepare(ctx, b.deps.Files, f)
	if err != nil {
		return nil, err
	}

	rc, err := b.deps.Files.OpenRead(ctx, f.Path())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path(), err)
	}
	defer rc.Close()

	method := p.Method
	if method == "" {
		method = http.MethodPost
	}

	header := buildHeader(p)
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", contentType(f))
	}

	sum := engine.NewChecksumReader(rc)
	body := engine.NewTrackedReader(limit(ctx, sum, b.deps.Limiter), 0, size, tr.ReportProgress)
	trailer := http.Header{engine.ChecksumHeader: nil}

	tr.Logger().Debug("sending file", "file", f.Path(), "bytes", size, "method", method)
	resp, err := send(ctx, b.deps.client(), request{
		method:  method,
		url:     p.Destination,
		header:  header,
		trailer: trailer,
		length:  -1,
		body: func(w io.Writer) error {
			if _, err := b.deps.Buffers.CopyContext(ctx, w, body); err != nil {
				return err
			}
			trailer.Set(engine.ChecksumHeader, sum.ChecksumHex())
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if resp.Successful() {
		tr.MarkAllCompleted()
	}
	return resp, nil
}

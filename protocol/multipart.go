package protocol

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/franksops/gfupload/engine"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Multipart posts every pending file in one multipart/form-data request,
// together with the task's form fields.
type Multipart struct {
	deps Deps
}

type part struct {
	file *engine.FileEntry
	size int64
}

// Upload implements engine.Uploader.
func (m *Multipart) Upload(ctx context.Context, tr *engine.Transfer) (*engine.Response, error) {
	p := tr.Params()
	pending := tr.Pending()
	if len(pending) == 0 {
		return engine.OKResponse(), nil
	}

	parts := make([]part, 0, len(pending))
	var total int64
	for _, f := range pending {
		if name, _ := f.Property(PropertyParamName); name == "" {
			return nil, engine.Fatal(fmt.Errorf("file %s has no %s", f.Path(), PropertyParamName))
		}
		size, err := prepare(ctx, m.deps.Files, f)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part{file: f, size: size})
		total += size
	}

	method := p.Method
	if method == "" {
		method = http.MethodPost
	}

	boundary := multipart.NewWriter(io.Discard).Boundary()
	header := buildHeader(p)
	header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	resp, err := send(ctx, m.deps.client(), request{
		method: method,
		url:    p.Destination,
		header: header,
		length: -1,
		body: func(w io.Writer) error {
			return m.write(ctx, tr, w, boundary, parts, total)
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

func (m *Multipart) write(ctx context.Context, tr *engine.Transfer, w io.Writer, boundary string, parts []part, total int64) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return engine.Fatal(err)
	}

	for _, field := range tr.Params().FormFields {
		if err := mw.WriteField(field.Name, field.Value); err != nil {
			return err
		}
	}

	var base int64
	for _, pt := range parts {
		if !tr.ShouldContinue() {
			return context.Canceled
		}
		if err := m.writeFile(ctx, tr, mw, pt, base, total); err != nil {
			return err
		}
		base += pt.size
	}

	return mw.Close()
}

func (m *Multipart) writeFile(ctx context.Context, tr *engine.Transfer, mw *multipart.Writer, pt part, base, total int64) error {
	f := pt.file
	paramName, _ := f.Property(PropertyParamName)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(paramName), quoteEscaper.Replace(remoteName(f))))
	h.Set("Content-Type", contentType(f))

	dst, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	rc, err := m.deps.Files.OpenRead(ctx, f.Path())
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path(), err)
	}
	defer rc.Close()

	body := engine.NewTrackedReader(limit(ctx, rc, m.deps.Limiter), base, total, tr.ReportProgress)
	n, err := m.deps.Buffers.CopyContext(ctx, dst, body)
	if err != nil {
		return err
	}
	if n != pt.size {
		return fmt.Errorf("file %s changed size during upload", f.Path())
	}
	return nil
}

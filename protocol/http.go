package protocol

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/franksops/gfupload/engine"
)

// maxResponseBody caps how much of a server reply is kept.
const maxResponseBody = 1 << 20

// HTTPConfig configures the client built by NewHTTPClient.
type HTTPConfig struct {
	Timeout time.Duration

	// OAuth2 client credentials. The client is unauthenticated when
	// TokenURL is empty.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewHTTPClient builds the client used by the HTTP protocols.
func NewHTTPClient(ctx context.Context, cfg HTTPConfig) *http.Client {
	if cfg.TokenURL == "" {
		return &http.Client{Timeout: cfg.Timeout}
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	client := cc.Client(ctx)
	client.Timeout = cfg.Timeout
	return client
}

// request describes one streamed HTTP upload.
type request struct {
	method  string
	url     string
	header  http.Header
	trailer http.Header
	length  int64
	body    func(w io.Writer) error
}

func buildHeader(p engine.Parameters) http.Header {
	h := make(http.Header, len(p.Headers)+1)
	for k, v := range p.Headers {
		h.Set(k, v)
	}
	return h
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return engine.Fatal(fmt.Errorf("invalid destination %q: %w", raw, err))
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return engine.Fatal(fmt.Errorf("invalid destination %q: not an http url", raw))
	}
	return nil
}

// send streams the request body through a pipe. The body is written on the
// calling goroutine, so progress is reported from the task's goroutine.
func send(ctx context.Context, client *http.Client, r request) (*engine.Response, error) {
	if err := checkURL(r.url); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, pr)
	if err != nil {
		return nil, engine.Fatal(fmt.Errorf("build request: %w", err))
	}
	req.Header = r.header
	req.ContentLength = r.length
	req.Trailer = r.trailer

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := client.Do(req)
		if err != nil {
			pr.CloseWithError(err)
		}
		done <- result{resp, err}
	}()

	werr := r.body(pw)
	pw.CloseWithError(werr)

	res := <-done
	if res.err != nil {
		if werr != nil {
			return nil, werr
		}
		return nil, fmt.Errorf("%s %s: %w", r.method, r.url, res.err)
	}
	defer res.resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if werr != nil {
		return nil, werr
	}

	return &engine.Response{
		Code:   res.resp.StatusCode,
		Body:   body,
		Header: res.resp.Header,
	}, nil
}

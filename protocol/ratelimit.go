package protocol

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurst bounds the limiter burst, and with it the size of a single read.
const maxBurst = 256 * 1024

// NewLimiter returns a limiter for bytesPerSecond, or nil when it is not positive.
func NewLimiter(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(min(bytesPerSecond, maxBurst))
	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// limit wraps r so reads wait for the limiter. It returns r when limiter is nil.
func limit(ctx context.Context, r io.Reader, limiter *rate.Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &limitedReader{ctx: ctx, r: r, limiter: limiter}
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if burst := l.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := l.r.Read(p)
	if n > 0 {
		if werr := l.limiter.WaitN(l.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

package engine

import (
	"io"
	"time"
)

// DefaultProgressInterval is the minimum time between two progress emissions.
const DefaultProgressInterval = 166 * time.Millisecond

// ProgressThrottle decides when a progress report is worth emitting.
type ProgressThrottle struct {
	interval time.Duration
	now      func() time.Time
	last     time.Time
}

// NewProgressThrottle creates a throttle that lets one report through per interval.
func NewProgressThrottle(interval time.Duration) *ProgressThrottle {
	if interval < 0 {
		interval = 0
	}
	return &ProgressThrottle{
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether a report of uploaded out of total bytes should be
// emitted. The final report (uploaded >= total) always passes.
func (pt *ProgressThrottle) Allow(uploaded, total int64) bool {
	now := pt.now()
	if uploaded < total && !pt.last.IsZero() && now.Sub(pt.last) < pt.interval {
		return false
	}
	pt.last = now
	return true
}

// Reset forgets the last emission so the next report passes.
func (pt *ProgressThrottle) Reset() {
	pt.last = time.Time{}
}

// TrackedReader wraps an io.Reader and reports progress as bytes are read
type TrackedReader struct {
	io.Reader
	report func(uploaded, total int64)

	base      int64
	total     int64
	bytesRead int64
}

// NewTrackedReader creates a TrackedReader. Reports are base plus the bytes
// read so far, so several readers can share one running total.
func NewTrackedReader(r io.Reader, base, total int64, report func(uploaded, total int64)) *TrackedReader {
	return &TrackedReader{
		Reader: r,
		report: report,
		base:   base,
		total:  total,
	}
}

// Read implements io.Reader and reports progress
func (tr *TrackedReader) Read(p []byte) (int, error) {
	n, err := tr.Reader.Read(p)
	if n > 0 {
		tr.bytesRead += int64(n)
		if tr.report != nil {
			tr.report(tr.base+tr.bytesRead, tr.total)
		}
	}
	return n, err
}

// BytesRead returns the number of bytes read through this reader
func (tr *TrackedReader) BytesRead() int64 {
	return tr.bytesRead
}

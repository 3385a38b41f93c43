package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Snapshot is an immutable point-in-time view of a task's progress.
type Snapshot struct {
	TaskID         string
	StartTime      time.Time
	TakenAt        time.Time
	UploadedBytes  int64
	TotalBytes     int64
	Attempts       int
	CompletedFiles []string
	PendingFiles   []string
}

// Retries returns how many attempts were made after the first one.
func (s Snapshot) Retries() int {
	if s.Attempts <= 1 {
		return 0
	}
	return s.Attempts - 1
}

// Elapsed returns the time between task start and the snapshot.
func (s Snapshot) Elapsed() time.Duration {
	if s.StartTime.IsZero() || s.TakenAt.Before(s.StartTime) {
		return 0
	}
	return s.TakenAt.Sub(s.StartTime)
}

// ElapsedString formats the elapsed time as "0s", "42s" or "3m 5s".
func (s Snapshot) ElapsedString() string {
	secs := int(s.Elapsed() / time.Second)
	minutes := secs / 60
	secs -= minutes * 60
	if minutes == 0 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", minutes, secs)
}

// UploadRate returns the average rate in bits per second.
func (s Snapshot) UploadRate() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.UploadedBytes) * 8 / elapsed
}

// UploadRateString formats the rate with SI scaling, e.g. "1.5 kbit/s".
func (s Snapshot) UploadRateString() string {
	rate := math.Floor(s.UploadRate())
	if rate < 1 {
		return "0 bit/s"
	}
	return humanize.SI(rate, "bit/s")
}

// ProgressPercent returns the integer progress between 0 and 100.
func (s Snapshot) ProgressPercent() int {
	if s.TotalBytes <= 0 {
		return 0
	}
	pct := int(s.UploadedBytes * 100 / s.TotalBytes)
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// TotalFiles returns the number of completed and pending files.
func (s Snapshot) TotalFiles() int {
	return len(s.CompletedFiles) + len(s.PendingFiles)
}

// CurrentFile returns the path most likely being transferred: the first
// pending file, or the last completed one once nothing is pending.
func (s Snapshot) CurrentFile() string {
	if len(s.PendingFiles) > 0 {
		return s.PendingFiles[0]
	}
	if len(s.CompletedFiles) > 0 {
		return s.CompletedFiles[len(s.CompletedFiles)-1]
	}
	return ""
}

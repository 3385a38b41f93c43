package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
)

// FormField is an extra form parameter sent alongside uploaded files.
type FormField struct {
	Name  string
	Value string
}

// Parameters is the immutable configuration of a single upload task.
type Parameters struct {
	// ID uniquely identifies the task. The service generates one when empty.
	ID string

	// Protocol names the uploader implementation (binary, multipart, copy).
	Protocol string

	// Destination is the server URL or provider URI files are sent to.
	Destination string

	// Method is the HTTP method used by HTTP based protocols.
	Method string

	// Headers are added to every HTTP request of the task.
	Headers map[string]string

	// FormFields are extra parameters for multipart requests.
	FormFields []FormField

	// Files are the files to upload, in order.
	Files []*FileEntry

	// MaxRetries is the number of extra attempts after the first failure.
	MaxRetries int

	// AutoDelete removes successfully uploaded files when the task completes.
	AutoDelete bool

	// Notification configures the presentation surface. Nil disables it.
	Notification *NotificationConfig
}

// Validate checks the parameters before a task is created.
func (p Parameters) Validate() error {
	if len(p.Files) == 0 {
		return fmt.Errorf("%w: no files to upload", ErrInvalidParameters)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidParameters)
	}
	for i, f := range p.Files {
		if f == nil || f.Path() == "" {
			return fmt.Errorf("%w: file %d has no path", ErrInvalidParameters, i)
		}
	}
	return nil
}

// Response is the outcome payload returned by a task body.
type Response struct {
	Code   int
	Body   []byte
	Header http.Header
}

// Successful reports whether the response code is in the 2xx or 3xx range.
func (r *Response) Successful() bool {
	return r != nil && r.Code >= 200 && r.Code < 400
}

// OKResponse is returned by bodies that have no server reply of their own.
func OKResponse() *Response {
	return &Response{Code: http.StatusOK, Header: make(http.Header)}
}

// Uploader is the task body. Upload performs one complete attempt; the
// context is cancelled when the task is cancelled.
type Uploader interface {
	Upload(ctx context.Context, t *Transfer) (*Response, error)
}

// UploaderFunc adapts a function to the Uploader interface.
type UploaderFunc func(ctx context.Context, t *Transfer) (*Response, error)

// Upload calls f(ctx, t).
func (f UploaderFunc) Upload(ctx context.Context, t *Transfer) (*Response, error) {
	return f(ctx, t)
}

// Transfer is the handle a task body uses to talk to its task. It must only
// be used from the goroutine running Upload.
type Transfer struct {
	task *Task
}

// ID returns the task id.
func (tr *Transfer) ID() string { return tr.task.params.ID }

// Params returns the task parameters.
func (tr *Transfer) Params() Parameters { return tr.task.params }

// Attempt returns the 1-based number of the running attempt.
func (tr *Transfer) Attempt() int { return tr.task.attempts }

// Pending returns the files not yet marked as completed.
func (tr *Transfer) Pending() []*FileEntry { return tr.task.ledger.Pending() }

// ShouldContinue reports false once cancellation was requested.
func (tr *Transfer) ShouldContinue() bool { return tr.task.shouldContinue() }

// Logger returns the task scoped logger.
func (tr *Transfer) Logger() *log.Logger { return tr.task.logger }

// ReportProgress records transferred bytes and emits a throttled progress event.
func (tr *Transfer) ReportProgress(uploaded, total int64) {
	tr.task.reportProgress(uploaded, total)
}

// MarkCompleted records f as successfully uploaded.
func (tr *Transfer) MarkCompleted(f *FileEntry) { tr.task.ledger.MarkCompleted(f) }

// MarkAllCompleted records every pending file as successfully uploaded.
func (tr *Transfer) MarkAllCompleted() { tr.task.ledger.MarkAllCompleted() }

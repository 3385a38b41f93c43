package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// FileSystem deletes uploaded files when a task asks for it.
type FileSystem interface {
	Delete(ctx context.Context, path string) error
}

// TaskOptions holds the collaborators of a task. Every field is optional.
type TaskOptions struct {
	Retry            RetryPolicy
	ProgressInterval time.Duration
	Logger           *log.Logger

	Delegates   *DelegateRegistry
	Broadcaster Broadcaster
	Recorder    Recorder
	FileSystem  FileSystem

	Presenter Presenter
	Indicator Indicator
	Icons     IconDecoder
	Counter   TaskCounter

	// OnFinished is called exactly once after the terminal event.
	OnFinished func(id string)
}

// Task drives one upload to completion, retrying failed attempts with
// exponential backoff until it succeeds, fails for good or is cancelled.
type Task struct {
	params   Parameters
	uploader Uploader
	policy   RetryPolicy
	logger   *log.Logger
	fs       FileSystem
	now      func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	running   atomic.Bool

	// owned by the goroutine running Run
	startTime     time.Time
	attempts      int
	delay         time.Duration
	uploadedBytes int64
	totalBytes    int64
	terminated    bool
	outcome       EventKind

	ledger   *Ledger
	throttle *ProgressThrottle
	notifier *notifier
	emitter  *emitter

	finishOnce sync.Once
	onFinished func(id string)
	done       chan struct{}
}

// NewTask creates a task. An empty id is replaced by a random UUID.
func NewTask(params Parameters, uploader Uploader, opts TaskOptions) (*Task, error) {
	if uploader == nil {
		return nil, fmt.Errorf("%w: no uploader", ErrInvalidParameters)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.ID == "" {
		params.ID = uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("task_id", params.ID)

	interval := opts.ProgressInterval
	if interval == 0 {
		interval = DefaultProgressInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &Task{
		params:   params,
		uploader: uploader,
		policy:   opts.Retry.normalized(),
		logger:   logger,
		fs:       opts.FileSystem,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		ledger:   NewLedger(params.Files),
		throttle: NewProgressThrottle(interval),
		notifier: &notifier{
			cfg:       params.Notification,
			presenter: opts.Presenter,
			indicator: opts.Indicator,
			icons:     opts.Icons,
			counter:   opts.Counter,
			logger:    logger,
			taskID:    params.ID,
		},
		emitter: &emitter{
			delegates:   opts.Delegates,
			broadcaster: opts.Broadcaster,
			recorder:    opts.Recorder,
			logger:      logger,
		},
		onFinished: opts.OnFinished,
		done:       make(chan struct{}),
	}
	return t, nil
}

// ID returns the task id.
func (t *Task) ID() string { return t.params.ID }

// Params returns the task parameters.
func (t *Task) Params() Parameters { return t.params }

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Outcome returns the terminal event kind. It is only meaningful once Done is closed.
func (t *Task) Outcome() EventKind { return t.outcome }

// Cancel asks the task to stop. It is safe to call from any goroutine and
// more than once. A running body sees its context cancelled.
func (t *Task) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		t.logger.Debug("cancellation requested")
		t.cancel()
	}
}

// Cancelled reports whether Cancel was called.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

func (t *Task) shouldContinue() bool { return !t.cancelled.Load() }

// Run executes the task on the calling goroutine. It returns after the
// terminal event was emitted. Cancelling ctx cancels the task. Only the first
// call does anything.
func (t *Task) Run(ctx context.Context) {
	if !t.running.CompareAndSwap(false, true) {
		return
	}
	stop := context.AfterFunc(ctx, t.Cancel)
	defer stop()
	defer t.finish()

	t.startTime = t.now()
	backoff := t.policy.Backoff(t.params.MaxRetries)

	for t.attempts <= t.params.MaxRetries && t.shouldContinue() {
		t.attempts++
		t.uploadedBytes = 0
		t.begin()

		resp, err := t.attempt()
		if err == nil {
			t.complete(resp)
			return
		}

		if !t.shouldContinue() {
			break
		}

		if IsFatal(err) {
			t.logger.Error("upload failed", "attempt", t.attempts, "err", err)
			t.fail(nil, err)
			return
		}

		delay, exhausted := backoff.Next()
		if exhausted || t.attempts > t.params.MaxRetries {
			t.logger.Error("upload failed, no retries left", "attempts", t.attempts, "err", err)
			t.fail(nil, err)
			return
		}

		t.delay = delay
		t.logger.Warn("upload failed, retrying",
			"attempt", t.attempts,
			"max_retries", t.params.MaxRetries,
			"wait", delay,
			"err", err,
		)
		sleep(t.ctx, delay, t.policy.PollInterval, func() bool { return !t.shouldContinue() })
	}

	t.logger.Info("upload cancelled", "attempts", t.attempts)
	t.terminate(EventCancelled, nil, nil)
}

// begin announces a new attempt.
func (t *Task) begin() {
	s := t.snapshot()
	t.emitter.emit(Event{Kind: EventProgress, TaskID: t.params.ID, Snapshot: s})
	t.notifier.started(s)
}

func (t *Task) attempt() (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("upload panicked: %v", r)
		}
	}()

	resp, err = t.uploader.Upload(t.ctx, &Transfer{task: t})
	if err == nil && resp == nil {
		resp = OKResponse()
	}
	return resp, err
}

func (t *Task) complete(resp *Response) {
	if !resp.Successful() {
		err := fmt.Errorf("%w: server replied %d", ErrUnsuccessfulResponse, resp.Code)
		t.logger.Error("upload rejected", "code", resp.Code)
		t.fail(resp, err)
		return
	}

	t.logger.Info("upload completed",
		"code", resp.Code,
		"attempts", t.attempts,
		"files", len(t.ledger.Completed()),
	)
	t.terminate(EventCompleted, resp, nil)

	if t.params.AutoDelete {
		t.deleteCompleted()
	}
}

func (t *Task) fail(resp *Response, err error) {
	t.terminate(EventError, resp, err)
}

// terminate emits the terminal event. Later calls are ignored.
func (t *Task) terminate(kind EventKind, resp *Response, err error) {
	if t.terminated {
		return
	}
	t.terminated = true
	t.outcome = kind

	s := t.snapshot()
	t.emitter.emit(Event{
		Kind:     kind,
		TaskID:   t.params.ID,
		Snapshot: s,
		Response: resp,
		Err:      err,
	})
	t.notifier.terminal(kind, s)
}

// deleteCompleted removes the uploaded files. Failures are only logged.
func (t *Task) deleteCompleted() {
	if t.fs == nil {
		return
	}

	ctx := context.WithoutCancel(t.ctx)
	var errs error
	for _, p := range t.ledger.Completed() {
		if err := t.fs.Delete(ctx, p); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete %s: %w", p, err))
		}
	}
	if errs != nil {
		t.logger.Warn("unable to delete uploaded files",
			"failed", len(multierr.Errors(errs)),
			"err", errs,
		)
	}
}

// finish runs the cleanup and the finished callback exactly once.
func (t *Task) finish() {
	t.finishOnce.Do(func() {
		t.notifier.cleanup()
		t.cancel()
		close(t.done)
		if t.onFinished != nil {
			t.onFinished(t.params.ID)
		}
	})
}

func (t *Task) reportProgress(uploaded, total int64) {
	if uploaded < t.uploadedBytes {
		uploaded = t.uploadedBytes
	}
	t.uploadedBytes = uploaded
	t.totalBytes = total

	if !t.throttle.Allow(uploaded, total) {
		return
	}

	s := t.snapshot()
	t.emitter.emit(Event{Kind: EventProgress, TaskID: t.params.ID, Snapshot: s})
	t.notifier.progress(s)
}

func (t *Task) snapshot() Snapshot {
	return Snapshot{
		TaskID:         t.params.ID,
		StartTime:      t.startTime,
		TakenAt:        t.now(),
		UploadedBytes:  t.uploadedBytes,
		TotalBytes:     t.totalBytes,
		Attempts:       t.attempts,
		CompletedFiles: t.ledger.Completed(),
		PendingFiles:   t.ledger.PendingPaths(),
	}
}

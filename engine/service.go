package engine

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ServiceConfig sizes the upload service.
type ServiceConfig struct {
	// MaxConcurrentUploads is the number of tasks running at the same time.
	MaxConcurrentUploads int

	// QueueSize is the number of tasks that may wait for a worker.
	QueueSize int

	Retry            RetryPolicy
	ProgressInterval time.Duration
}

// DefaultServiceConfig returns the stock service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxConcurrentUploads: 2,
		QueueSize:            128,
		Retry:                DefaultRetryPolicy(),
		ProgressInterval:     DefaultProgressInterval,
	}
}

// Collaborators are shared by every task of a service.
type Collaborators struct {
	Delegates   *DelegateRegistry
	Broadcaster Broadcaster
	Recorder    Recorder
	FileSystem  FileSystem
	Presenter   Presenter
	Indicator   Indicator
	Icons       IconDecoder
}

// Service hosts upload tasks on a pool of workers.
type Service struct {
	cfg    ServiceConfig
	deps   Collaborators
	logger *log.Logger

	queue TaskChannel
	pool  *WorkerPool

	mu        sync.Mutex
	tasks     map[string]*Task
	batch     []string
	outcomes  map[EventKind]int
	listeners []func(id string)
	stopped   bool
	wg        sync.WaitGroup
}

// NewService creates a service and starts its workers.
func NewService(ctx context.Context, cfg ServiceConfig, deps Collaborators, logger *log.Logger) *Service {
	def := DefaultServiceConfig()
	if cfg.MaxConcurrentUploads <= 0 {
		cfg.MaxConcurrentUploads = def.MaxConcurrentUploads
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Service{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		queue:  make(TaskChannel, cfg.QueueSize),
		tasks:    make(map[string]*Task),
		outcomes: make(map[EventKind]int),
	}
	s.pool = NewWorkerPool(ctx, s.queue, func(ctx context.Context, t *Task) {
		t.Run(ctx)
	})
	s.pool.SetWorkerCount(cfg.MaxConcurrentUploads)
	return s
}

// Start queues a new task and returns its id.
func (s *Service) Start(params Parameters, uploader Uploader) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	if params.ID == "" {
		params.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return "", ErrServiceStopped
	}
	if _, ok := s.tasks[params.ID]; ok {
		return "", ErrTaskExists
	}
	if len(s.queue) >= cap(s.queue) {
		return "", ErrQueueFull
	}

	task, err := NewTask(params, uploader, TaskOptions{
		Retry:            s.cfg.Retry,
		ProgressInterval: s.cfg.ProgressInterval,
		Logger:           s.logger,
		Delegates:        s.deps.Delegates,
		Broadcaster:      s.deps.Broadcaster,
		Recorder:         s.deps.Recorder,
		FileSystem:       s.deps.FileSystem,
		Presenter:        s.deps.Presenter,
		Indicator:        s.deps.Indicator,
		Icons:            s.deps.Icons,
		Counter:          s,
		OnFinished:       s.taskFinished,
	})
	if err != nil {
		return "", err
	}

	// a new batch starts whenever the service was idle
	if len(s.tasks) == 0 {
		s.batch = s.batch[:0]
		clear(s.outcomes)
	}
	s.tasks[params.ID] = task
	s.batch = append(s.batch, params.ID)
	s.wg.Add(1)

	if s.deps.Recorder != nil {
		s.deps.Recorder.Submitted(task.Params())
	}

	// only Start sends, under the lock, so this never blocks
	s.queue <- task
	s.logger.Debug("task queued", "task_id", params.ID, "files", len(params.Files))
	return params.ID, nil
}

// Cancel cancels a queued or running task. It reports whether the task was found.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	task, ok := s.tasks[id]
	s.mu.Unlock()
	if ok {
		task.Cancel()
	}
	return ok
}

// CancelAll cancels every task of the service.
func (s *Service) CancelAll() {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
}

// OnTaskFinished registers fn to be called once for every finished task.
func (s *Service) OnTaskFinished(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Active returns the ids of the tasks that have not finished yet.
func (s *Service) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tasks))
	for _, id := range s.batch {
		if _, ok := s.tasks[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// TaskIndex returns the 1-based position of a task in the current batch.
func (s *Service) TaskIndex(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.batch, id); i >= 0 {
		return i + 1
	}
	return len(s.batch)
}

// TotalTasks returns the number of tasks submitted since the service was last idle.
func (s *Service) TotalTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batch)
}

// Stats is a point-in-time view of the service load. The outcome counters
// cover the current batch.
type Stats struct {
	Workers int `json:"workers"`
	Running int `json:"running"`
	Queued  int `json:"queued"`
	Active  int `json:"active"`

	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Stats returns the current load of the service.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Active:    len(s.tasks),
		Completed: s.outcomes[EventCompleted],
		Failed:    s.outcomes[EventError],
		Cancelled: s.outcomes[EventCancelled],
	}
	s.mu.Unlock()

	st.Workers = s.pool.WorkerCount()
	st.Running = s.pool.Busy()
	st.Queued = len(s.queue)
	return st
}

// SetMaxConcurrentUploads resizes the worker pool.
func (s *Service) SetMaxConcurrentUploads(n int) {
	if n <= 0 {
		return
	}
	s.pool.SetWorkerCount(n)
}

// Wait blocks until every submitted task has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Stop refuses new tasks, cancels the known ones and waits for the workers.
// Tasks still in the queue are run so that they report cancellation.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.CancelAll()
	s.pool.Stop()

	for {
		select {
		case t := <-s.queue:
			t.Run(context.Background())
		default:
			s.logger.Debug("upload service stopped")
			return
		}
	}
}

func (s *Service) taskFinished(id string) {
	s.mu.Lock()
	if t, ok := s.tasks[id]; ok {
		s.outcomes[t.Outcome()]++
	}
	delete(s.tasks, id)
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(id)
	}
	s.wg.Done()
}

package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/franksops/gfupload/store"
)

// CheckpointConfig defines when a progress event is written to the journal
type CheckpointConfig struct {
	// BytesInterval triggers a save after this many bytes have been transferred
	BytesInterval int64
	// TimeInterval triggers a save after this much time has passed
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 10 * 1024 * 1024, // 10 MB
	TimeInterval:  5 * time.Second,
}

type checkpoint struct {
	bytes int64
	at    time.Time
}

// Journal records the history of tasks in a store. It implements Recorder.
// Write failures are logged and never affect the tasks.
type Journal struct {
	store  store.Store
	config CheckpointConfig
	logger *log.Logger
	now    func() time.Time

	mu          sync.Mutex
	checkpoints map[string]checkpoint
}

// NewJournal creates a Journal on top of s.
func NewJournal(s store.Store, config CheckpointConfig, logger *log.Logger) *Journal {
	if logger == nil {
		logger = log.Default()
	}
	return &Journal{
		store:       s,
		config:      config,
		logger:      logger,
		now:         time.Now,
		checkpoints: make(map[string]checkpoint),
	}
}

// Submitted records a new task as pending.
func (j *Journal) Submitted(p Parameters) {
	files := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		files = append(files, f.Path())
	}

	now := j.now()
	record := &store.TaskRecord{
		ID:          p.ID,
		Protocol:    p.Protocol,
		Destination: p.Destination,
		State:       store.StatePending,
		Files:       files,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.store.SaveTask(record); err != nil {
		j.logger.Warn("unable to journal task", "task_id", p.ID, "err", err)
	}
}

// Record updates the journal entry of the event's task.
func (j *Journal) Record(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var state store.TaskState
	switch e.Kind {
	case EventProgress:
		if !j.due(e) {
			return
		}
		state = store.StateInProgress
	case EventCompleted:
		state = store.StateCompleted
	case EventError:
		state = store.StateFailed
	case EventCancelled:
		state = store.StateCancelled
	default:
		return
	}

	if e.Kind.Terminal() {
		delete(j.checkpoints, e.TaskID)
	} else {
		j.checkpoints[e.TaskID] = checkpoint{bytes: e.Snapshot.UploadedBytes, at: j.now()}
	}

	record, err := j.store.GetTask(e.TaskID)
	if errors.Is(err, store.ErrTaskNotFound) {
		record = &store.TaskRecord{ID: e.TaskID, CreatedAt: e.Snapshot.StartTime}
	} else if err != nil {
		j.logger.Warn("unable to read journal", "task_id", e.TaskID, "err", err)
		return
	}

	record.State = state
	record.BytesTransferred = e.Snapshot.UploadedBytes
	record.TotalBytes = e.Snapshot.TotalBytes
	record.Attempts = e.Snapshot.Attempts
	record.CompletedFiles = e.Snapshot.CompletedFiles
	record.UpdatedAt = j.now()
	if e.Response != nil {
		record.ResponseCode = e.Response.Code
	}
	if e.Err != nil {
		record.Error = e.Err.Error()
	}

	if err := j.store.SaveTask(record); err != nil {
		j.logger.Warn("unable to journal task", "task_id", e.TaskID, "state", state, "err", err)
	}
}

// due reports whether a progress event passes the checkpoint criteria.
// The first event of a task and the first one of each new attempt always do.
func (j *Journal) due(e Event) bool {
	last, ok := j.checkpoints[e.TaskID]
	if !ok || e.Snapshot.UploadedBytes < last.bytes {
		return true
	}
	if e.Snapshot.UploadedBytes-last.bytes >= j.config.BytesInterval {
		return true
	}
	return j.now().Sub(last.at) >= j.config.TimeInterval
}

// Lookup returns the journal entry of a task.
func (j *Journal) Lookup(id string) (*store.TaskRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.store.GetTask(id)
}

// List returns every journal entry, oldest first.
func (j *Journal) List() ([]*store.TaskRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.store.ListTasks()
}

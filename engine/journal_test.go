package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gfupload/store"
)

type MockStore struct {
	Tasks map[string]*store.TaskRecord
	order []string
	Saves int
	Err   error
}

func NewMockStore() *MockStore {
	return &MockStore{Tasks: make(map[string]*store.TaskRecord)}
}

func (m *MockStore) SaveTask(task *store.TaskRecord) error {
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.Tasks[task.ID]; !ok {
		m.order = append(m.order, task.ID)
	}
	m.Tasks[task.ID] = task
	m.Saves++
	return nil
}

func (m *MockStore) GetTask(id string) (*store.TaskRecord, error) {
	task, ok := m.Tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task, nil
}

func (m *MockStore) ListTasks() ([]*store.TaskRecord, error) {
	out := make([]*store.TaskRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.Tasks[id])
	}
	return out, nil
}

func (m *MockStore) Close() error { return nil }

func newTestJournal(s store.Store) (*Journal, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	j := NewJournal(s, CheckpointConfig{BytesInterval: 1000, TimeInterval: 5 * time.Second}, quietLogger())
	j.now = clock.now
	return j, clock
}

func progressEvent(id string, uploaded int64) Event {
	return Event{
		Kind:   EventProgress,
		TaskID: id,
		Snapshot: Snapshot{
			TaskID:        id,
			UploadedBytes: uploaded,
			TotalBytes:    5000,
			Attempts:      1,
		},
	}
}

func TestJournalLifecycle(t *testing.T) {
	ms := NewMockStore()
	j, clock := newTestJournal(ms)

	j.Submitted(Parameters{
		ID:          "task-1",
		Protocol:    "multipart",
		Destination: "https://example.com/upload",
		Files:       entries("/a", "/b"),
	})

	record, err := j.Lookup("task-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatePending, record.State)
	assert.Equal(t, []string{"/a", "/b"}, record.Files)
	assert.Equal(t, "multipart", record.Protocol)

	j.Record(progressEvent("task-1", 0))
	assert.Equal(t, store.StateInProgress, record.State)
	assert.Equal(t, 2, ms.Saves)

	clock.advance(time.Second)
	j.Record(progressEvent("task-1", 10))
	assert.Equal(t, 2, ms.Saves, "neither bytes nor time threshold reached")

	j.Record(progressEvent("task-1", 1010))
	assert.Equal(t, 3, ms.Saves, "bytes threshold")
	assert.Equal(t, int64(1010), record.BytesTransferred)

	clock.advance(5 * time.Second)
	j.Record(progressEvent("task-1", 1020))
	assert.Equal(t, 4, ms.Saves, "time threshold")

	j.Record(progressEvent("task-1", 0))
	assert.Equal(t, 5, ms.Saves, "a new attempt restarts from zero")

	done := Event{
		Kind:     EventCompleted,
		TaskID:   "task-1",
		Response: &Response{Code: 201},
		Snapshot: Snapshot{
			TaskID:         "task-1",
			UploadedBytes:  5000,
			TotalBytes:     5000,
			Attempts:       2,
			CompletedFiles: []string{"/a", "/b"},
		},
	}
	j.Record(done)

	record, err = j.Lookup("task-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateCompleted, record.State)
	assert.Equal(t, 201, record.ResponseCode)
	assert.Equal(t, 2, record.Attempts)
	assert.Equal(t, []string{"/a", "/b"}, record.CompletedFiles)
	assert.Equal(t, clock.t, record.UpdatedAt)
	assert.Empty(t, record.Error)
}

func TestJournalFailureAndCancel(t *testing.T) {
	ms := NewMockStore()
	j, _ := newTestJournal(ms)

	j.Record(Event{Kind: EventError, TaskID: "failed", Err: errors.New("connection refused")})
	j.Record(Event{Kind: EventCancelled, TaskID: "cancelled"})

	failed, err := j.Lookup("failed")
	require.NoError(t, err, "a record is created for unknown tasks")
	assert.Equal(t, store.StateFailed, failed.State)
	assert.Equal(t, "connection refused", failed.Error)

	cancelled, err := j.Lookup("cancelled")
	require.NoError(t, err)
	assert.Equal(t, store.StateCancelled, cancelled.State)

	list, err := j.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "failed", list[0].ID)
	assert.Equal(t, "cancelled", list[1].ID)

	_, err = j.Lookup("missing")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestJournalStoreErrorsAreSwallowed(t *testing.T) {
	ms := NewMockStore()
	ms.Err = errors.New("disk full")
	j, _ := newTestJournal(ms)

	assert.NotPanics(t, func() {
		j.Submitted(Parameters{ID: "t", Files: entries("/a")})
		j.Record(progressEvent("t", 10))
		j.Record(Event{Kind: EventCompleted, TaskID: "t"})
	})
	assert.Zero(t, ms.Saves)
}

func TestJournalWithBoltStore(t *testing.T) {
	s, err := store.NewBoltStore(t.TempDir() + "/journal.db")
	require.NoError(t, err)
	defer s.Close()

	j, _ := newTestJournal(s)
	task := newHarness(t, Parameters{ID: "bolt", Files: entries("/a")}, UploaderFunc(func(ctx context.Context, tr *Transfer) (*Response, error) {
		tr.MarkAllCompleted()
		return nil, nil
	}), func(o *TaskOptions) { o.Recorder = j })

	j.Submitted(task.task.Params())
	task.run(t)

	record, err := j.Lookup("bolt")
	require.NoError(t, err)
	assert.Equal(t, store.StateCompleted, record.State)
	assert.Equal(t, []string{"/a"}, record.CompletedFiles)
	assert.Equal(t, 200, record.ResponseCode)
}

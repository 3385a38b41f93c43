package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// ErrTaskNotFound is returned when a task is not found in the journal.
	ErrTaskNotFound = errors.New("task not found")
)

var (
	tasksBucket = []byte("tasks")
)

// TaskState represents the current state of an upload task.
type TaskState string

const (
	StatePending    TaskState = "Pending"
	StateInProgress TaskState = "InProgress"
	StateCompleted  TaskState = "Completed"
	StateFailed     TaskState = "Failed"
	StateCancelled  TaskState = "Cancelled"
)

// Terminal reports whether no further transition can happen from s.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// TaskRecord is the journal entry of one upload task.
type TaskRecord struct {
	ID               string    `json:"id"`
	Protocol         string    `json:"protocol"`
	Destination      string    `json:"destination"`
	State            TaskState `json:"state"`
	Files            []string  `json:"files"`
	CompletedFiles   []string  `json:"completed_files,omitempty"`
	BytesTransferred int64     `json:"bytes_transferred"`
	TotalBytes       int64     `json:"total_bytes"`
	Attempts         int       `json:"attempts"`
	ResponseCode     int       `json:"response_code,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store defines the interface for recording task history.
type Store interface {
	SaveTask(task *TaskRecord) error
	GetTask(id string) (*TaskRecord, error)
	// ListTasks returns every record, oldest first.
	ListTasks() ([]*TaskRecord, error)
	Close() error
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tasksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tasks bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveTask saves a task record.
func (s *BoltStore) SaveTask(task *TaskRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(tasksBucket)

		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		if err := b.Put([]byte(task.ID), data); err != nil {
			return fmt.Errorf("failed to put task: %w", err)
		}
		return nil
	})
}

// GetTask retrieves a task record.
func (s *BoltStore) GetTask(id string) (*TaskRecord, error) {
	var task TaskRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(tasksBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrTaskNotFound
		}

		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &task, nil
}

// ListTasks returns every task record, oldest first.
func (s *BoltStore) ListTasks() ([]*TaskRecord, error) {
	var tasks []*TaskRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(tasksBucket).ForEach(func(k, v []byte) error {
			var task TaskRecord
			if err := json.Unmarshal(v, &task); err != nil {
				return fmt.Errorf("failed to unmarshal task %s: %w", k, err)
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortByCreation(tasks)
	return tasks, nil
}

// Close closes the underlying store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func sortByCreation(tasks []*TaskRecord) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

// Open opens the journal store for the named driver ("bolt" or "sqlite").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "bolt":
		return NewBoltStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown journal driver %q", driver)
	}
}

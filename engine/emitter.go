package engine

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// EventKind identifies the kind of status event.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventError     EventKind = "error"
	EventCancelled EventKind = "cancelled"
)

// Terminal reports whether the kind ends a task.
func (k EventKind) Terminal() bool {
	return k == EventCompleted || k == EventError || k == EventCancelled
}

// Event is a status update of a single task.
type Event struct {
	Kind     EventKind
	TaskID   string
	Snapshot Snapshot

	// Response is set for completed and error events when the body returned one.
	Response *Response

	// Err is the failure of an error event.
	Err error
}

// Delegate receives the events of one task directly.
type Delegate interface {
	OnProgress(s Snapshot)
	OnCompleted(s Snapshot, resp *Response)
	OnError(s Snapshot, resp *Response, err error)
	OnCancelled(s Snapshot)
}

// DelegateRegistry maps task ids to delegates. It is safe for concurrent use.
type DelegateRegistry struct {
	mu        sync.RWMutex
	delegates map[string]Delegate
}

// NewDelegateRegistry creates an empty registry.
func NewDelegateRegistry() *DelegateRegistry {
	return &DelegateRegistry{delegates: make(map[string]Delegate)}
}

// Register sets the delegate of a task, replacing any previous one.
func (r *DelegateRegistry) Register(taskID string, d Delegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegates[taskID] = d
}

// Unregister removes the delegate of a task.
func (r *DelegateRegistry) Unregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.delegates, taskID)
}

// Lookup returns the delegate of a task.
func (r *DelegateRegistry) Lookup(taskID string) (Delegate, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.delegates[taskID]
	return d, ok
}

// Broadcaster delivers events that have no delegate.
type Broadcaster interface {
	Publish(e Event)
}

// Recorder observes every event of every task, whatever the routing.
type Recorder interface {
	Submitted(p Parameters)
	Record(e Event)
}

// Bus is an in-process Broadcaster. Subscribers never block publishers.
type Bus struct {
	logger *log.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	taskID string
	ch     chan Event
}

// NewBus creates a bus. Dropped events are logged at debug level.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[int]subscription),
	}
}

// Subscribe returns a channel of events for taskID, or for every task when
// taskID is empty. The returned function removes the subscription and closes
// the channel.
func (b *Bus) Subscribe(taskID string, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{taskID: taskID, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish implements Broadcaster.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.taskID != "" && sub.taskID != e.TaskID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.logger.Debug("dropping event for slow subscriber", "task_id", e.TaskID, "kind", e.Kind)
		}
	}
}

// emitter routes the events of one task.
type emitter struct {
	delegates   *DelegateRegistry
	broadcaster Broadcaster
	recorder    Recorder
	logger      *log.Logger
}

func (em *emitter) emit(e Event) {
	if em.recorder != nil {
		em.recorder.Record(e)
	}

	if d, ok := em.delegates.Lookup(e.TaskID); ok {
		em.callDelegate(d, e)
		return
	}

	if em.broadcaster != nil {
		em.broadcaster.Publish(e)
	}
}

func (em *emitter) callDelegate(d Delegate, e Event) {
	defer func() {
		if r := recover(); r != nil {
			em.logger.Error("delegate panicked", "kind", e.Kind, "panic", fmt.Sprint(r))
		}
	}()

	switch e.Kind {
	case EventProgress:
		d.OnProgress(e.Snapshot)
	case EventCompleted:
		d.OnCompleted(e.Snapshot, e.Response)
	case EventError:
		d.OnError(e.Snapshot, e.Response, e.Err)
	case EventCancelled:
		d.OnCancelled(e.Snapshot)
	}
}

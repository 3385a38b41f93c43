package engine

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDelegate collects the events it receives.
type recordingDelegate struct {
	mu     sync.Mutex
	kinds  []EventKind
	errs   []error
	codes  []int
	panics bool
}

func (d *recordingDelegate) add(k EventKind, resp *Response, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kinds = append(d.kinds, k)
	if err != nil {
		d.errs = append(d.errs, err)
	}
	if resp != nil {
		d.codes = append(d.codes, resp.Code)
	}
	if d.panics {
		panic("delegate blew up")
	}
}

func (d *recordingDelegate) OnProgress(s Snapshot) { d.add(EventProgress, nil, nil) }
func (d *recordingDelegate) OnCompleted(s Snapshot, resp *Response) {
	d.add(EventCompleted, resp, nil)
}
func (d *recordingDelegate) OnError(s Snapshot, resp *Response, err error) {
	d.add(EventError, resp, err)
}
func (d *recordingDelegate) OnCancelled(s Snapshot) { d.add(EventCancelled, nil, nil) }

func (d *recordingDelegate) Kinds() []EventKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]EventKind(nil), d.kinds...)
}

// eventLog is a Broadcaster and Recorder keeping everything in memory.
type eventLog struct {
	mu        sync.Mutex
	submitted []Parameters
	events    []Event
}

func (l *eventLog) Publish(e Event) { l.Record(e) }

func (l *eventLog) Submitted(p Parameters) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitted = append(l.submitted, p)
}

func (l *eventLog) Record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) Kinds() []EventKind {
	var out []EventKind
	for _, e := range l.Events() {
		out = append(out, e.Kind)
	}
	return out
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestEventKindTerminal(t *testing.T) {
	assert.False(t, EventProgress.Terminal())
	assert.True(t, EventCompleted.Terminal())
	assert.True(t, EventError.Terminal())
	assert.True(t, EventCancelled.Terminal())
}

func TestDelegateRegistry(t *testing.T) {
	r := NewDelegateRegistry()
	d := &recordingDelegate{}

	_, ok := r.Lookup("t1")
	assert.False(t, ok)

	r.Register("t1", d)
	got, ok := r.Lookup("t1")
	require.True(t, ok)
	assert.Same(t, d, got)

	r.Unregister("t1")
	_, ok = r.Lookup("t1")
	assert.False(t, ok)

	var nilRegistry *DelegateRegistry
	_, ok = nilRegistry.Lookup("t1")
	assert.False(t, ok)
}

func TestBusSubscribe(t *testing.T) {
	bus := NewBus(quietLogger())

	all, unsubAll := bus.Subscribe("", 4)
	one, unsubOne := bus.Subscribe("t1", 4)
	defer unsubAll()

	bus.Publish(Event{Kind: EventProgress, TaskID: "t1"})
	bus.Publish(Event{Kind: EventProgress, TaskID: "t2"})

	assert.Equal(t, "t1", (<-all).TaskID)
	assert.Equal(t, "t2", (<-all).TaskID)
	assert.Equal(t, "t1", (<-one).TaskID)
	assert.Empty(t, one)

	unsubOne()
	unsubOne()
	_, open := <-one
	assert.False(t, open, "unsubscribe closes the channel")

	bus.Publish(Event{Kind: EventCompleted, TaskID: "t1"})
	assert.Equal(t, EventCompleted, (<-all).Kind)
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus(quietLogger())
	ch, unsub := bus.Subscribe("", 1)
	defer unsub()

	bus.Publish(Event{Kind: EventProgress, TaskID: "t1"})
	bus.Publish(Event{Kind: EventCompleted, TaskID: "t1"})

	assert.Equal(t, EventProgress, (<-ch).Kind)
	assert.Empty(t, ch)
}

func TestEmitterRouting(t *testing.T) {
	registry := NewDelegateRegistry()
	d := &recordingDelegate{}
	registry.Register("with-delegate", d)

	broadcast := &eventLog{}
	recorder := &eventLog{}
	em := &emitter{delegates: registry, broadcaster: broadcast, recorder: recorder, logger: quietLogger()}

	failure := errors.New("boom")
	em.emit(Event{Kind: EventProgress, TaskID: "with-delegate"})
	em.emit(Event{Kind: EventError, TaskID: "with-delegate", Response: &Response{Code: 500}, Err: failure})
	em.emit(Event{Kind: EventCompleted, TaskID: "other"})

	assert.Equal(t, []EventKind{EventProgress, EventError}, d.Kinds())
	assert.Equal(t, []error{failure}, d.errs)
	assert.Equal(t, []int{500}, d.codes)

	assert.Equal(t, []EventKind{EventCompleted}, broadcast.Kinds(), "broadcast only without delegate")
	assert.Equal(t, []EventKind{EventProgress, EventError, EventCompleted}, recorder.Kinds(), "recorder sees everything")
}

func TestEmitterRecoversDelegatePanic(t *testing.T) {
	registry := NewDelegateRegistry()
	d := &recordingDelegate{panics: true}
	registry.Register("t1", d)
	em := &emitter{delegates: registry, logger: quietLogger()}

	assert.NotPanics(t, func() {
		em.emit(Event{Kind: EventCancelled, TaskID: "t1"})
	})
	assert.Equal(t, []EventKind{EventCancelled}, d.Kinds())
}

func TestEmitterWithoutCollaborators(t *testing.T) {
	em := &emitter{logger: quietLogger()}
	assert.NotPanics(t, func() {
		em.emit(Event{Kind: EventProgress, TaskID: "t1"})
	})
}

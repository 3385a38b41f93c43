package engine

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presenterCall struct {
	op     string
	handle Handle
	note   Notification
}

type fakePresenter struct {
	mu    sync.Mutex
	next  Handle
	calls []presenterCall
}

func (p *fakePresenter) Show(n Notification) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.calls = append(p.calls, presenterCall{op: "show", handle: p.next, note: n})
	return p.next, nil
}

func (p *fakePresenter) Update(h Handle, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, presenterCall{op: "update", handle: h, note: n})
	return nil
}

func (p *fakePresenter) Cancel(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, presenterCall{op: "cancel", handle: h})
	return nil
}

func (p *fakePresenter) Calls() []presenterCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]presenterCall(nil), p.calls...)
}

func (p *fakePresenter) ops() []string {
	var out []string
	for _, c := range p.Calls() {
		out = append(out, c.op)
	}
	return out
}

type fakeIndicator struct {
	mu     sync.Mutex
	shown  []IndicatorModel
	hidden []time.Duration
}

func (i *fakeIndicator) Show(m IndicatorModel) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.shown = append(i.shown, m)
}

func (i *fakeIndicator) Hide(after time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.hidden = append(i.hidden, after)
}

type fakeIcons struct {
	decoded []string
	err     error
}

func (f *fakeIcons) DecodeScaled(path string, width, height int) (image.Image, error) {
	f.decoded = append(f.decoded, path)
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, width, height)), nil
}

type fixedCounter struct {
	index, total int
}

func (c fixedCounter) TaskIndex(string) int { return c.index }
func (c fixedCounter) TotalTasks() int      { return c.total }

func testNotificationConfig() *NotificationConfig {
	return &NotificationConfig{
		Progress: StatusConfig{
			Title:     "Uploading [[CURRENT_TASK_INDEX]]/[[TOTAL_TASKS]]",
			Message:   "[[PROGRESS]]% at [[UPLOAD_RATE]]",
			Icon:      "upload",
			LargeIcon: "/icons/up.png",
			LargeIconSize: Dimensions{
				Width: 64, Height: 64,
			},
		},
		Completed:       StatusConfig{Title: "Done", Message: "[[UPLOADED_FILES]] files in [[ELAPSED_TIME]]"},
		Error:           StatusConfig{Title: "Failed", Message: "upload failed"},
		Cancelled:       StatusConfig{Title: "Cancelled", Message: "cancelled", AutoClear: true},
		RingToneEnabled: true,
		HighChannel:     "starting",
		LowChannel:      "uploads",
	}
}

func TestSelectChannel(t *testing.T) {
	assert.Equal(t, HighPriority, SelectChannel(Snapshot{TotalBytes: 0}))
	assert.Equal(t, HighPriority, SelectChannel(Snapshot{TotalBytes: 99}))
	assert.Equal(t, LowPriority, SelectChannel(Snapshot{TotalBytes: 100}))
	assert.Equal(t, LowPriority, SelectChannel(Snapshot{TotalBytes: 10, CompletedFiles: []string{"/a"}}))

	assert.Equal(t, "high", HighPriority.String())
	assert.Equal(t, "low", LowPriority.String())
}

func newTestNotifier(cfg *NotificationConfig) (*notifier, *fakePresenter, *fakeIndicator, *fakeIcons) {
	p := &fakePresenter{}
	ind := &fakeIndicator{}
	icons := &fakeIcons{}
	return &notifier{
		cfg:       cfg,
		presenter: p,
		indicator: ind,
		icons:     icons,
		counter:   fixedCounter{index: 2, total: 3},
		logger:    quietLogger(),
		taskID:    "t1",
	}, p, ind, icons
}

func TestNotifierLifecycle(t *testing.T) {
	cfg := testNotificationConfig()
	cfg.Completed.ClearOnAction = true
	n, p, ind, icons := newTestNotifier(cfg)

	s := snapshotAt(0, 0, 0)
	n.started(s)

	s = snapshotAt(time.Second, 500, 1000)
	n.progress(s)

	s = snapshotAt(2*time.Second, 1000, 1000)
	s.CompletedFiles = []string{"/a", "/b"}
	n.terminal(EventCompleted, s)
	n.cleanup()

	calls := p.Calls()
	require.Equal(t, []string{"show", "update", "cancel", "show"}, p.ops())

	started := calls[0].note
	assert.Equal(t, HighPriority, started.Channel)
	assert.Equal(t, "starting", started.ChannelName)
	assert.True(t, started.Indeterminate)
	assert.True(t, started.Ongoing)
	assert.Equal(t, -1, started.Progress)
	assert.Equal(t, "Uploading 2/3", started.Title)
	assert.NotNil(t, started.LargeIcon)

	progress := calls[1]
	assert.Equal(t, calls[0].handle, progress.handle, "progress updates the started notification")
	assert.Equal(t, LowPriority, progress.note.Channel)
	assert.Equal(t, "uploads", progress.note.ChannelName)
	assert.Equal(t, 50, progress.note.Progress)
	assert.Equal(t, "50% at 4 kbit/s", progress.note.Body)
	assert.Equal(t, started.When, progress.note.When)

	assert.Equal(t, calls[0].handle, calls[2].handle)

	done := calls[3].note
	assert.Equal(t, "Done", done.Title)
	assert.Equal(t, "2 files in 2s", done.Body)
	assert.Equal(t, LowPriority, done.Channel)
	assert.True(t, done.Sound)
	assert.True(t, done.AutoCancel)
	assert.True(t, done.ClearOnAction)
	assert.False(t, done.Ongoing)

	assert.Equal(t, []string{"/icons/up.png"}, icons.decoded, "icon decoded once")

	require.Len(t, ind.shown, 2)
	assert.Equal(t, IndicatorModel{
		TaskID: "t1", Title: "Uploading 2/3", Message: "50% at 4 kbit/s",
		Uploaded: 500, Total: 1000, Icon: "upload",
	}, ind.shown[0])
	assert.Equal(t, IndicatorModel{
		TaskID: "t1", Title: "Done", Message: "2 files in 2s",
		Uploaded: 1000, Total: 1000,
	}, ind.shown[1], "the indicator ends on the final state")
	assert.Equal(t, []time.Duration{IndicatorHideDelay}, ind.hidden)
}

func TestNotifierAutoClear(t *testing.T) {
	n, p, _, _ := newTestNotifier(testNotificationConfig())

	n.started(snapshotAt(0, 0, 0))
	n.terminal(EventCancelled, snapshotAt(time.Second, 0, 0))

	assert.Equal(t, []string{"show", "cancel"}, p.ops())
}

func TestNotifierEmptyTerminalMessage(t *testing.T) {
	cfg := testNotificationConfig()
	cfg.Error.Message = ""
	n, p, _, _ := newTestNotifier(cfg)

	n.terminal(EventError, snapshotAt(time.Second, 0, 0))

	assert.Empty(t, p.ops(), "nothing shown and no handle to cancel")
}

func TestNotifierNoProgressMessage(t *testing.T) {
	cfg := testNotificationConfig()
	cfg.Progress.Message = ""
	n, p, ind, _ := newTestNotifier(cfg)

	n.started(snapshotAt(0, 0, 0))
	n.progress(snapshotAt(time.Second, 10, 100))
	n.terminal(EventError, snapshotAt(time.Second, 10, 100))

	assert.Equal(t, []string{"show"}, p.ops(), "only the terminal notification")
	require.Len(t, ind.shown, 1, "progress without a message is not indicated")
	assert.Equal(t, "upload failed", ind.shown[0].Message)
}

func TestNotifierTerminalIndicatorWithoutPresenter(t *testing.T) {
	n, _, ind, _ := newTestNotifier(testNotificationConfig())
	n.presenter = nil

	n.progress(snapshotAt(time.Second, 50, 100))
	n.terminal(EventError, snapshotAt(2*time.Second, 50, 100))
	n.cleanup()

	require.Len(t, ind.shown, 2)
	assert.Equal(t, "Failed", ind.shown[1].Title)
	assert.Equal(t, "upload failed", ind.shown[1].Message)
	assert.Equal(t, []time.Duration{IndicatorHideDelay}, ind.hidden)
}

func TestNotifierTerminalEmptyMessageKeepsIndicator(t *testing.T) {
	cfg := testNotificationConfig()
	cfg.Completed.Message = ""
	n, _, ind, _ := newTestNotifier(cfg)

	n.progress(snapshotAt(time.Second, 50, 100))
	n.terminal(EventCompleted, snapshotAt(2*time.Second, 100, 100))

	require.Len(t, ind.shown, 1)
	assert.Equal(t, "50% at 400 bit/s", ind.shown[0].Message)
}

func TestNotifierTerminalChannel(t *testing.T) {
	n, p, _, _ := newTestNotifier(testNotificationConfig())

	n.terminal(EventError, snapshotAt(time.Second, 10, 50))

	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, HighPriority, calls[0].note.Channel, "small upload with nothing completed")
	assert.Equal(t, "starting", calls[0].note.ChannelName)
	assert.False(t, calls[0].note.AutoCancel)
}

func TestNotifierDisabled(t *testing.T) {
	n, p, ind, _ := newTestNotifier(nil)

	n.started(snapshotAt(0, 0, 0))
	n.progress(snapshotAt(time.Second, 10, 100))
	n.terminal(EventCompleted, snapshotAt(time.Second, 100, 100))

	assert.Empty(t, p.ops())
	assert.Empty(t, ind.shown)

	var nilNotifier *notifier
	assert.NotPanics(t, func() {
		nilNotifier.progress(Snapshot{})
		nilNotifier.cleanup()
	})
}

func TestNotifierIconFailure(t *testing.T) {
	n, p, _, icons := newTestNotifier(testNotificationConfig())
	icons.err = errors.New("corrupt image")

	n.started(snapshotAt(0, 0, 0))
	n.progress(snapshotAt(time.Second, 10, 100))

	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.Nil(t, calls[0].note.LargeIcon)
	assert.Len(t, icons.decoded, 1, "a failed decode is not retried for the same path")
}

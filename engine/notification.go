package engine

import (
	"image"
	"time"

	"github.com/charmbracelet/log"
)

// Channel is a presentation channel.
type Channel int

const (
	// LowPriority is the ambient channel used once an upload is under way.
	LowPriority Channel = iota
	// HighPriority is the interruptive channel used while an upload starts.
	HighPriority
)

func (c Channel) String() string {
	if c == HighPriority {
		return "high"
	}
	return "low"
}

// highPriorityThreshold is the total byte count below which an upload with
// no completed file is still considered to be starting.
const highPriorityThreshold = 100

// SelectChannel picks the channel for a progress update.
func SelectChannel(s Snapshot) Channel {
	if len(s.CompletedFiles) == 0 && s.TotalBytes < highPriorityThreshold {
		return HighPriority
	}
	return LowPriority
}

// IndicatorHideDelay is how long the indicator stays up after a terminal event.
const IndicatorHideDelay = 3500 * time.Millisecond

// Dimensions is a target size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// Action is a button shown with a notification.
type Action struct {
	Icon   string
	Title  string
	Target string
}

// StatusConfig is the presentation of one task state.
type StatusConfig struct {
	Title     string
	Message   string
	Icon      string
	IconColor string

	// LargeIcon is the path of an image shown next to the message.
	LargeIcon string
	// LargeIconSize is the size the large icon is scaled to fit.
	LargeIconSize Dimensions

	Actions []Action

	// AutoClear removes the notification as soon as the state is reached.
	AutoClear bool
	// ClearOnAction removes the notification when one of its actions is used.
	ClearOnAction bool
}

// NotificationConfig configures the presentation of a task.
type NotificationConfig struct {
	Progress  StatusConfig
	Completed StatusConfig
	Error     StatusConfig
	Cancelled StatusConfig

	// RingToneEnabled plays a sound with terminal notifications.
	RingToneEnabled bool

	HighChannel string
	LowChannel  string
}

func (c *NotificationConfig) status(kind EventKind) StatusConfig {
	switch kind {
	case EventCompleted:
		return c.Completed
	case EventError:
		return c.Error
	case EventCancelled:
		return c.Cancelled
	default:
		return c.Progress
	}
}

// Notification is what a Presenter shows.
type Notification struct {
	Channel     Channel
	ChannelName string

	Title string
	Body  string

	// Progress is the percentage shown in the progress bar, -1 for none.
	Progress      int
	Indeterminate bool
	Ongoing       bool

	Icon      string
	IconColor string
	LargeIcon image.Image
	Actions   []Action

	Sound         bool
	AutoCancel    bool
	ClearOnAction bool
	When          time.Time
}

// Handle identifies a shown notification.
type Handle int

// Presenter is the persistent notification surface.
type Presenter interface {
	Show(n Notification) (Handle, error)
	Update(h Handle, n Notification) error
	Cancel(h Handle) error
}

// IndicatorModel is the content of the transient indicator.
type IndicatorModel struct {
	TaskID   string
	Title    string
	Message  string
	Uploaded int64
	Total    int64
	Icon     string
}

// Indicator is an optional transient on-screen progress indicator.
type Indicator interface {
	Show(m IndicatorModel)
	Hide(after time.Duration)
}

// IconDecoder loads an image scaled to fit the given size.
type IconDecoder interface {
	DecodeScaled(path string, width, height int) (image.Image, error)
}

// TaskCounter tells a task where it stands among the tasks of its runtime.
type TaskCounter interface {
	TaskIndex(id string) int
	TotalTasks() int
}

// notifier owns the presentation state of one task.
type notifier struct {
	cfg       *NotificationConfig
	presenter Presenter
	indicator Indicator
	icons     IconDecoder
	counter   TaskCounter
	logger    *log.Logger

	taskID    string
	handle    Handle
	hasHandle bool
	createdAt time.Time

	iconPath string
	icon     image.Image
}

func (n *notifier) enabled() bool {
	return n != nil && n.cfg != nil && n.presenter != nil
}

func (n *notifier) render(template string, s Snapshot) string {
	index, total := 1, 1
	if n.counter != nil {
		index = n.counter.TaskIndex(n.taskID)
		total = n.counter.TotalTasks()
	}
	return Render(template, s, index, total)
}

func (n *notifier) largeIcon(sc StatusConfig) image.Image {
	if n.icons == nil || sc.LargeIcon == "" {
		return nil
	}
	if sc.LargeIcon == n.iconPath {
		return n.icon
	}

	n.iconPath = sc.LargeIcon
	img, err := n.icons.DecodeScaled(sc.LargeIcon, sc.LargeIconSize.Width, sc.LargeIconSize.Height)
	if err != nil {
		n.logger.Debug("unable to decode icon", "path", sc.LargeIcon, "err", err)
		img = nil
	}
	n.icon = img
	return img
}

func (n *notifier) base(sc StatusConfig, s Snapshot) Notification {
	return Notification{
		Title:         n.render(sc.Title, s),
		Body:          n.render(sc.Message, s),
		Progress:      -1,
		Icon:          sc.Icon,
		IconColor:     sc.IconColor,
		LargeIcon:     n.largeIcon(sc),
		Actions:       sc.Actions,
		ClearOnAction: sc.ClearOnAction,
		When:          n.createdAt,
	}
}

func (n *notifier) channelName(c Channel) string {
	if c == HighPriority {
		return n.cfg.HighChannel
	}
	return n.cfg.LowChannel
}

// started shows the indeterminate notification of a new attempt.
func (n *notifier) started(s Snapshot) {
	if !n.enabled() || n.cfg.Progress.Message == "" {
		return
	}
	if n.createdAt.IsZero() {
		n.createdAt = s.TakenAt
	}

	note := n.base(n.cfg.Progress, s)
	note.Channel = HighPriority
	note.ChannelName = n.channelName(HighPriority)
	note.Indeterminate = true
	note.Ongoing = true
	n.show(note)
}

// progress updates the progress notification and the indicator.
func (n *notifier) progress(s Snapshot) {
	if n == nil || n.cfg == nil || n.cfg.Progress.Message == "" {
		return
	}
	n.indicate(n.cfg.Progress, s)

	if !n.enabled() {
		return
	}

	note := n.base(n.cfg.Progress, s)
	note.Channel = SelectChannel(s)
	note.ChannelName = n.channelName(note.Channel)
	note.Progress = s.ProgressPercent()
	note.Ongoing = true
	n.show(note)
}

// terminal replaces the progress notification with the final one.
func (n *notifier) terminal(kind EventKind, s Snapshot) {
	if n == nil || n.cfg == nil {
		return
	}

	sc := n.cfg.status(kind)
	if sc.Message != "" {
		n.indicate(sc, s)
	}

	if !n.enabled() {
		return
	}

	if n.hasHandle {
		if err := n.presenter.Cancel(n.handle); err != nil {
			n.logger.Warn("unable to cancel notification", "err", err)
		}
		n.hasHandle = false
	}

	if sc.Message == "" || sc.AutoClear {
		return
	}

	note := n.base(sc, s)
	note.Channel = SelectChannel(s)
	note.ChannelName = n.channelName(note.Channel)
	note.Sound = n.cfg.RingToneEnabled
	note.AutoCancel = sc.ClearOnAction
	if _, err := n.presenter.Show(note); err != nil {
		n.logger.Warn("unable to show notification", "kind", kind, "err", err)
	}
}

// indicate puts the given state on the transient indicator.
func (n *notifier) indicate(sc StatusConfig, s Snapshot) {
	if n.indicator == nil {
		return
	}
	n.indicator.Show(IndicatorModel{
		TaskID:   n.taskID,
		Title:    n.render(sc.Title, s),
		Message:  n.render(sc.Message, s),
		Uploaded: s.UploadedBytes,
		Total:    s.TotalBytes,
		Icon:     sc.Icon,
	})
}

// cleanup hides the indicator once the task is over.
func (n *notifier) cleanup() {
	if n != nil && n.indicator != nil {
		n.indicator.Hide(IndicatorHideDelay)
	}
}

func (n *notifier) show(note Notification) {
	if n.hasHandle {
		if err := n.presenter.Update(n.handle, note); err != nil {
			n.logger.Warn("unable to update notification", "err", err)
		}
		return
	}

	h, err := n.presenter.Show(note)
	if err != nil {
		n.logger.Warn("unable to show notification", "err", err)
		return
	}
	n.handle = h
	n.hasHandle = true
}

package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/franksops/gfupload/engine"
)

// TaskRow is the on-screen state of one upload task
type TaskRow struct {
	TaskID   string
	File     string
	Files    int
	Uploaded int64
	Total    int64
	Progress float64 // 0.0 to 1.0
	BytesSec float64
	Attempts int
	State    engine.EventKind
	Err      string
}

// Active reports whether the task has not reached a terminal state.
func (r *TaskRow) Active() bool {
	return !r.State.Terminal()
}

// UIState represents the aggregated state for the TUI
type UIState struct {
	Tasks []*TaskRow
	index map[string]*TaskRow

	ActiveWorkers int
	MaxWorkers    int

	// Status is the transient indicator line, nil when hidden.
	Status *engine.IndicatorModel

	// Resize is called with the new worker count after +/- was pressed.
	Resize func(workers int)

	Done bool
}

// NewUIState creates an empty state.
func NewUIState(workers int) *UIState {
	return &UIState{
		index:         make(map[string]*TaskRow),
		ActiveWorkers: workers,
		MaxWorkers:    workers,
	}
}

// Apply folds a task event into the state.
func (s *UIState) Apply(e engine.Event) {
	if s.index == nil {
		s.index = make(map[string]*TaskRow)
	}
	row, ok := s.index[e.TaskID]
	if !ok {
		row = &TaskRow{TaskID: e.TaskID}
		s.index[e.TaskID] = row
		s.Tasks = append(s.Tasks, row)
	}

	snap := e.Snapshot
	row.File = snap.CurrentFile()
	row.Files = snap.TotalFiles()
	row.Uploaded = snap.UploadedBytes
	row.Total = snap.TotalBytes
	row.Progress = float64(snap.ProgressPercent()) / 100
	row.BytesSec = snap.UploadRate() / 8
	row.Attempts = snap.Attempts
	row.State = e.Kind
	if e.Err != nil {
		row.Err = e.Err.Error()
	}
	if e.Kind == engine.EventCompleted {
		row.Progress = 1
	}
}

// Totals returns the summed bytes and throughput of every task.
func (s *UIState) Totals() (uploaded, total int64, bytesSec float64) {
	for _, r := range s.Tasks {
		uploaded += r.Uploaded
		total += r.Total
		if r.Active() {
			bytesSec += r.BytesSec
		}
	}
	return uploaded, total, bytesSec
}

// TUIModel implements the tea.Model interface
type TUIModel struct {
	state    *UIState
	spinner  spinner.Model
	progress progress.Model
	rowBar   progress.Model
	viewport viewport.Model

	width  int
	height int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	streamStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// EventMsg carries a task event into the TUI
type EventMsg struct {
	Event engine.Event
}

// IndicatorMsg shows the status line
type IndicatorMsg struct {
	Model engine.IndicatorModel
}

// HideIndicatorMsg hides the status line
type HideIndicatorMsg struct{}

// DoneMsg is sent once every task has finished
type DoneMsg struct{}

// WorkerCountMsg is sent when modifying the worker count
type WorkerCountMsg int

func NewTUIModel(initialState *UIState) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())
	rowBar := progress.New(progress.WithDefaultGradient())

	return TUIModel{
		state:        initialState,
		spinner:      s,
		progress:     prog,
		rowBar:       rowBar,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

// State returns the state rendered by the model.
func (m TUIModel) State() *UIState {
	return m.state
}

func (m TUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "+", "=":
			return m, func() tea.Msg { return WorkerCountMsg(1) }
		case "-":
			return m, func() tea.Msg { return WorkerCountMsg(-1) }
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(msg.Width-14, 10)
		m.rowBar.Width = max(msg.Width-rowColumnsWidth, 10)

		headerHeight := 5
		footerHeight := 3
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerHeight-footerHeight, 1))

	case EventMsg:
		m.state.Apply(msg.Event)

	case IndicatorMsg:
		status := msg.Model
		m.state.Status = &status

	case HideIndicatorMsg:
		m.state.Status = nil

	case DoneMsg:
		m.state.Done = true

	case WorkerCountMsg:
		m.state.ActiveWorkers = min(max(m.state.ActiveWorkers+int(msg), 1), m.state.MaxWorkers)
		if m.state.Resize != nil {
			m.state.Resize(m.state.ActiveWorkers)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder

	header := fmt.Sprintf("%s gfupload %s", m.spinner.View(), m.titleStyle.Render("Background Upload Engine"))
	sb.WriteString(header + "\n")

	uploaded, total, bytesSec := m.state.Totals()
	var percent float64
	if total > 0 {
		percent = min(float64(uploaded)/float64(total), 1)
	}

	opsInfo := fmt.Sprintf("ETA: %s | Workers: %d/%d | %s / %s",
		formatETA(percent, bytesSec/1000, total, uploaded),
		m.state.ActiveWorkers, m.state.MaxWorkers,
		humanize.IBytes(uint64(uploaded)), humanize.IBytes(uint64(total)))

	sb.WriteString(m.infoStyle.Render(opsInfo) + "\n")
	sb.WriteString(m.progress.ViewAs(percent) + "\n\n")

	sb.WriteString("Tasks:\n")
	var rows strings.Builder

	if len(m.state.Tasks) == 0 {
		rows.WriteString(m.infoStyle.Render("Waiting for uploads..."))
	}
	for _, r := range m.state.Tasks {
		rows.WriteString(m.renderRow(r) + "\n")
	}

	m.viewport.SetContent(rows.String())
	sb.WriteString(m.viewport.View())

	if st := m.state.Status; st != nil {
		sb.WriteString("\n" + m.streamStyle.Render(st.Title) + " " + st.Message)
	}

	help := m.helpStyle.Render("q/ctrl+c: quit • +/-: adjust workers")
	if m.state.Done {
		help = m.successStyle.Render("All uploads finished!") + " Press 'q' to exit."
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

// rowColumnsWidth is what a task row needs besides its progress bar:
// separators, the speed column, the truncated path and the attempt counter.
const rowColumnsWidth = 3 + 12 + 3 + pathWidth + 14

const pathWidth = 40

func (m TUIModel) renderRow(r *TaskRow) string {
	file := truncatePath(r.File, pathWidth)

	switch r.State {
	case engine.EventCompleted:
		return fmt.Sprintf("%s | %s | %s", m.successStyle.Render("done"), humanize.IBytes(uint64(r.Uploaded)), file)
	case engine.EventError:
		return fmt.Sprintf("%s | %s | %s", m.errorStyle.Render("failed"), file, r.Err)
	case engine.EventCancelled:
		return fmt.Sprintf("%s | %s", m.infoStyle.Render("cancelled"), file)
	}

	attempt := ""
	if r.Attempts > 1 {
		attempt = fmt.Sprintf(" (attempt %d)", r.Attempts)
	}

	// Format: [===       ] 30% | 45 MiB/s | /path/to/file
	return fmt.Sprintf("%s | %-12s | %s%s",
		m.rowBar.ViewAs(r.Progress), m.streamStyle.Render(formatSpeed(r.BytesSec)), file, attempt)
}

func truncatePath(p string, n int) string {
	if len(p) > n {
		return "..." + p[len(p)-(n-3):]
	}
	return p
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

func formatETA(progress float64, bytesPerMs float64, totalBytes, completedBytes int64) string {
	if progress == 0 || bytesPerMs <= 0 || totalBytes == 0 {
		return "Calculating..."
	}

	remainingBytes := totalBytes - completedBytes
	if remainingBytes <= 0 {
		return "0s"
	}

	remainingMs := float64(remainingBytes) / bytesPerMs
	d := time.Duration(remainingMs) * time.Millisecond

	if d.Hours() > 24 {
		return "> 1d"
	}

	return d.Round(time.Second).String()
}

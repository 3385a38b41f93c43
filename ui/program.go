package ui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/franksops/gfupload/engine"
)

// ensure interface is implemented
var _ engine.Indicator = (*Program)(nil)

// Program runs the TUI and feeds it with task events. It doubles as the
// engine's transient indicator.
type Program struct {
	tea *tea.Program

	mu        sync.Mutex
	hideTimer *time.Timer
}

// NewProgram wraps a bubbletea program around model.
func NewProgram(model TUIModel, opts ...tea.ProgramOption) *Program {
	return &Program{tea: tea.NewProgram(model, opts...)}
}

// Run blocks until the TUI exits.
func (p *Program) Run() error {
	_, err := p.tea.Run()
	return err
}

// Follow forwards events to the TUI until the channel closes or ctx is done.
func (p *Program) Follow(ctx context.Context, events <-chan engine.Event) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				p.tea.Send(EventMsg{Event: e})
			}
		}
	}()
}

// Show implements engine.Indicator.
func (p *Program) Show(m engine.IndicatorModel) {
	p.mu.Lock()
	if p.hideTimer != nil {
		p.hideTimer.Stop()
		p.hideTimer = nil
	}
	p.mu.Unlock()

	p.tea.Send(IndicatorMsg{Model: m})
}

// Hide implements engine.Indicator.
func (p *Program) Hide(after time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hideTimer != nil {
		p.hideTimer.Stop()
	}
	p.hideTimer = time.AfterFunc(after, func() {
		p.tea.Send(HideIndicatorMsg{})
	})
}

// Finish tells the TUI that every task is over.
func (p *Program) Finish() {
	p.tea.Send(DoneMsg{})
}

// Quit stops the TUI.
func (p *Program) Quit() {
	p.tea.Quit()
}

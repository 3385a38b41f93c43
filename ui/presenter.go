package ui

import (
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/franksops/gfupload/engine"
)

// ensure interface is implemented
var _ engine.Presenter = (*LogPresenter)(nil)

// LogPresenter shows notifications as log lines, for headless runs.
type LogPresenter struct {
	logger *log.Logger
	next   atomic.Int64
}

// NewLogPresenter creates a LogPresenter writing to logger.
func NewLogPresenter(logger *log.Logger) *LogPresenter {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPresenter{logger: logger.WithPrefix("notify")}
}

func (p *LogPresenter) fields(n engine.Notification) []any {
	kv := []any{"channel", n.Channel, "title", n.Title}
	if n.Indeterminate {
		kv = append(kv, "progress", "indeterminate")
	} else if n.Progress >= 0 {
		kv = append(kv, "progress", n.Progress)
	}
	if n.Sound {
		kv = append(kv, "sound", true)
	}
	if len(n.Actions) > 0 {
		kv = append(kv, "actions", len(n.Actions))
	}
	return kv
}

// Show implements engine.Presenter.
func (p *LogPresenter) Show(n engine.Notification) (engine.Handle, error) {
	h := engine.Handle(p.next.Add(1))
	p.logger.Info(n.Body, append(p.fields(n), "id", int(h))...)
	return h, nil
}

// Update implements engine.Presenter.
func (p *LogPresenter) Update(h engine.Handle, n engine.Notification) error {
	p.logger.Debug(n.Body, append(p.fields(n), "id", int(h))...)
	return nil
}

// Cancel implements engine.Presenter.
func (p *LogPresenter) Cancel(h engine.Handle) error {
	p.logger.Debug("dismissed", "id", int(h))
	return nil
}

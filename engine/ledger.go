package engine

// Ledger tracks which files of a task were uploaded. A path is either
// pending or completed, never both.
type Ledger struct {
	completed []string
	done      map[string]struct{}
	pending   []*FileEntry
}

// NewLedger creates a ledger with every file pending. The slice is copied.
func NewLedger(files []*FileEntry) *Ledger {
	pending := make([]*FileEntry, len(files))
	copy(pending, files)
	return &Ledger{
		done:    make(map[string]struct{}),
		pending: pending,
	}
}

// MarkCompleted moves f from pending to completed. Marking a path that is
// already completed does nothing.
func (l *Ledger) MarkCompleted(f *FileEntry) {
	if f == nil {
		return
	}
	if _, ok := l.done[f.Path()]; ok {
		return
	}
	l.done[f.Path()] = struct{}{}
	l.completed = append(l.completed, f.Path())
	l.removePending(f.Path())
}

// MarkAllCompleted marks every pending file as completed in pending order.
func (l *Ledger) MarkAllCompleted() {
	for _, f := range l.pending {
		if _, ok := l.done[f.Path()]; ok {
			continue
		}
		l.done[f.Path()] = struct{}{}
		l.completed = append(l.completed, f.Path())
	}
	l.pending = l.pending[:0]
}

// Completed returns a copy of the completed paths in completion order.
func (l *Ledger) Completed() []string {
	out := make([]string, len(l.completed))
	copy(out, l.completed)
	return out
}

// Pending returns a copy of the pending entries.
func (l *Ledger) Pending() []*FileEntry {
	out := make([]*FileEntry, len(l.pending))
	copy(out, l.pending)
	return out
}

// PendingPaths returns the paths of the pending entries.
func (l *Ledger) PendingPaths() []string {
	out := make([]string, 0, len(l.pending))
	for _, f := range l.pending {
		out = append(out, f.Path())
	}
	return out
}

// removePending drops every pending entry with the given path, so duplicate
// entries never leave a completed path behind in the pending set.
func (l *Ledger) removePending(p string) {
	kept := l.pending[:0]
	for _, f := range l.pending {
		if f.Path() != p {
			kept = append(kept, f)
		}
	}
	for i := len(kept); i < len(l.pending); i++ {
		l.pending[i] = nil
	}
	l.pending = kept
}

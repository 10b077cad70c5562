package api

// Resources counts the live handles held by every extension.
type Resources struct {
	OutputChannels        int
	Terminals             int
	StatusBarItems        int
	WebviewPanels         int
	DiagnosticCollections int
	SourceControls        int
	FileWatchers          int
	DebugSessions         int
	TaskExecutions        int
}

// Total returns the number of live handles of any kind.
func (r Resources) Total() int {
	return r.OutputChannels + r.Terminals + r.StatusBarItems + r.WebviewPanels +
		r.DiagnosticCollections + r.SourceControls + r.FileWatchers +
		r.DebugSessions + r.TaskExecutions
}

// counter returns the field of r counting handle's kind.
func (r *Resources) counter(handle attachable) *int {
	switch handle.(type) {
	case *OutputChannel:
		return &r.OutputChannels
	case *Terminal:
		return &r.Terminals
	case *StatusBarItem:
		return &r.StatusBarItems
	case *WebviewPanel:
		return &r.WebviewPanels
	case *DiagnosticCollection:
		return &r.DiagnosticCollections
	case *SourceControlHandle:
		return &r.SourceControls
	case *FileSystemWatcher:
		return &r.FileWatchers
	case *DebugSession:
		return &r.DebugSessions
	case *TaskExecution:
		return &r.TaskExecutions
	}
	return nil
}

// Resources returns a snapshot of the live handle counts.
func (h *Host) Resources() Resources {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

// adjust moves the live count of handle's kind by delta.
func (h *Host) adjust(handle attachable, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := h.live.counter(handle); n != nil {
		*n += delta
	}
}

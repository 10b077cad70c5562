package api

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dshills/exthost/internal/logging"
)

// FileSystemWatcher delivers changes below the workspace folders whose
// path matches a glob.
type FileSystemWatcher struct {
	handle

	glob    string
	roots   []string
	fn      func(FileEvent)
	watcher *fsnotify.Watcher
	logger  *log.Logger

	delivered atomic.Int64

	closeCh chan struct{}
}

// NewFileSystemWatcher creates an unattached watcher over roots and every
// directory below them.
func NewFileSystemWatcher(owner, glob string, roots []string, fn func(FileEvent), n Notifier, logger *log.Logger) (*FileSystemWatcher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &FileSystemWatcher{
		handle:  newHandle(owner, n),
		glob:    glob,
		roots:   roots,
		fn:      fn,
		watcher: fsw,
		logger:  logger,
		closeCh: make(chan struct{}),
	}
	for _, root := range roots {
		w.watchRecursive(root)
	}

	go w.processLoop()
	return w, nil
}

// Glob returns the pattern the watcher filters on.
func (w *FileSystemWatcher) Glob() string { return w.glob }

// Delivered returns how many events were passed to the listener.
func (w *FileSystemWatcher) Delivered() int64 { return w.delivered.Load() }

// watchRecursive adds root and every directory below it.
func (w *FileSystemWatcher) watchRecursive(root string) {
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && skippedDirs[d.Name()] {
			return filepath.SkipDir
		}
		if addErr := w.watcher.Add(p); addErr != nil {
			w.logger.Debug("watch failed", "path", p, "error", addErr)
		}
		return nil
	})
}

func (w *FileSystemWatcher) processLoop() {
	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "owner", w.owner, "error", err)
		}
	}
}

func (w *FileSystemWatcher) handleFSEvent(ev fsnotify.Event) {
	kind, ok := convertOp(ev.Op)
	if !ok {
		return
	}

	if kind == FileCreated {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.watchRecursive(ev.Name)
		}
	}

	rel, ok := w.relative(ev.Name)
	if !ok || !matchGlob(w.glob, rel) {
		return
	}

	fe := FileEvent{Kind: kind, URI: FileURI(ev.Name)}
	w.notify(TopicFileChanged, fe)
	w.deliver(fe)
}

// deliver calls the listener, containing panics to this event.
func (w *FileSystemWatcher) deliver(fe FileEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("file watcher listener panicked", "owner", w.owner, "panic", r)
		}
	}()
	if w.IsDisposed() {
		return
	}
	w.fn(fe)
	w.delivered.Add(1)
}

// relative returns name relative to the first root containing it.
func (w *FileSystemWatcher) relative(name string) (string, bool) {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, name)
		if err != nil || rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}

// convertOp maps fsnotify operations onto file event kinds. Chmod-only
// events are dropped.
func convertOp(op fsnotify.Op) (FileEventKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return FileCreated, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return FileDeleted, true
	case op.Has(fsnotify.Write):
		return FileChanged, true
	default:
		return 0, false
	}
}

// Dispose stops watching.
func (w *FileSystemWatcher) Dispose() error { return w.dispose(w.close) }

func (w *FileSystemWatcher) close() {
	if !w.markDisposed() {
		return
	}
	// No wait for processLoop: close may run inside the listener.
	close(w.closeCh)
	if err := w.watcher.Close(); err != nil {
		w.logger.Debug("close file watcher", "error", err)
	}
}

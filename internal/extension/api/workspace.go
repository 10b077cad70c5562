package api

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/event"
	"github.com/dshills/exthost/internal/extension/security"
)

// skippedDirs are never descended into by FindFiles.
var skippedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
}

var errFindLimit = errors.New("find limit reached")

type workspaceAPI struct{ h *Host }

func (w workspaceAPI) Folders() []WorkspaceFolder {
	w.h.mu.RLock()
	defer w.h.mu.RUnlock()
	return slices.Clone(w.h.folders)
}

func (w workspaceAPI) Configuration(section string) Configuration {
	w.h.mu.RLock()
	defer w.h.mu.RUnlock()

	values := make(map[string]any)
	for k, v := range w.h.config {
		switch {
		case section == "":
			values[k] = cloneValue(v)
		case hasSectionPrefix(k, section):
			values[k[len(section)+1:]] = cloneValue(v)
		}
	}
	return configView{values: values}
}

func (w workspaceAPI) FindFiles(ctx context.Context, pattern string, max int) ([]URI, error) {
	if _, err := w.h.acquire(ctx, security.GroupWorkspace, "workspace.findFiles"); err != nil {
		return nil, err
	}
	if pattern == "" {
		return nil, invalid("empty pattern")
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, invalid("bad pattern %q", pattern)
	}
	if max < 0 {
		return nil, invalid("negative max %d", max)
	}

	var out []URI
	for _, folder := range w.Folders() {
		root := folder.URI.FSPath()
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable entries are skipped.
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				if p != root && skippedDirs[d.Name()] {
					return fs.SkipDir
				}
				return nil
			}
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil {
				return nil
			}
			if matchGlob(pattern, filepath.ToSlash(rel)) {
				out = append(out, FileURI(p))
				if max > 0 && len(out) >= max {
					return errFindLimit
				}
			}
			return nil
		})
		if errors.Is(err, errFindLimit) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// matchGlob matches rel against pattern. Patterns without a slash match
// the base name at any depth.
func matchGlob(pattern, rel string) bool {
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, path.Base(rel))
		return ok
	}
	ok, _ := path.Match(pattern, rel)
	return ok
}

func (w workspaceAPI) OnDidChangeConfiguration(ctx context.Context, fn func(ConfigurationChangeEvent)) (disposable.Disposable, error) {
	owner, err := w.h.acquire(ctx, security.GroupWorkspace, "workspace.onDidChangeConfiguration")
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, invalid("nil listener")
	}

	sub, err := w.h.events.Subscribe(TopicConfiguration, func(_ context.Context, ev event.Event) {
		if change, ok := ev.Payload.(ConfigurationChangeEvent); ok {
			fn(ConfigurationChangeEvent{Keys: slices.Clone(change.Keys)})
		}
	})
	if err != nil {
		return nil, err
	}
	return w.h.retain(owner, sub)
}

func (w workspaceAPI) CreateFileSystemWatcher(ctx context.Context, glob string, fn func(FileEvent)) (*FileSystemWatcher, error) {
	owner, err := w.h.acquire(ctx, security.GroupWorkspace, "workspace.createFileSystemWatcher")
	if err != nil {
		return nil, err
	}
	if glob == "" {
		return nil, invalid("empty glob")
	}
	if _, err := path.Match(glob, ""); err != nil {
		return nil, invalid("bad glob %q", glob)
	}
	if fn == nil {
		return nil, invalid("nil listener")
	}

	roots := make([]string, 0)
	for _, f := range w.Folders() {
		roots = append(roots, f.URI.FSPath())
	}
	watcher, err := NewFileSystemWatcher(owner, glob, roots, fn, w.h, w.h.logger)
	if err != nil {
		return nil, err
	}
	if err := w.h.track(owner, watcher, watcher.close); err != nil {
		watcher.close()
		return nil, err
	}
	return watcher, nil
}

// configView is a read-only copy of one configuration section.
type configView struct {
	values map[string]any
}

func (c configView) Get(key string, def any) any {
	if v, ok := c.values[key]; ok {
		return cloneValue(v)
	}
	return def
}

func (c configView) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

func (c configView) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Workspace = workspaceAPI{}

// cloneValue copies the container types configuration values come in.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

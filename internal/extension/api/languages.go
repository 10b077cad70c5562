package api

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/extension/security"
)

type providerEntry struct {
	id       string
	owner    string
	kind     ProviderKind
	selector DocumentSelector
	provider any
}

type languagesAPI struct{ h *Host }

func (l languagesAPI) RegisterProvider(ctx context.Context, kind ProviderKind, selector DocumentSelector, provider any) (disposable.Disposable, error) {
	owner, err := l.h.acquire(ctx, security.GroupLanguages, "languages.registerProvider")
	if err != nil {
		return nil, err
	}
	if err := checkProvider(kind, provider); err != nil {
		return nil, err
	}
	if err := selector.Validate(); err != nil {
		return nil, err
	}

	entry := &providerEntry{
		id:       uuid.NewString(),
		owner:    owner,
		kind:     kind,
		selector: slices.Clone(selector),
		provider: provider,
	}
	l.h.mu.Lock()
	l.h.providers = append(l.h.providers, entry)
	l.h.mu.Unlock()
	l.h.Notify(TopicProviderChanged, owner, ProviderEvent{Kind: kind, Selector: slices.Clone(selector)})

	return l.h.retain(owner, disposable.FuncNoErr(func() {
		l.h.mu.Lock()
		l.h.providers = slices.DeleteFunc(l.h.providers, func(e *providerEntry) bool { return e.id == entry.id })
		l.h.mu.Unlock()
		l.h.Notify(TopicProviderChanged, owner, ProviderEvent{Kind: kind, Selector: slices.Clone(entry.selector), Removed: true})
	}))
}

func (l languagesAPI) CreateDiagnosticCollection(ctx context.Context, name string) (*DiagnosticCollection, error) {
	owner, err := l.h.acquire(ctx, security.GroupLanguages, "languages.createDiagnosticCollection")
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "diagnostics-" + uuid.NewString()[:8]
	}

	dc := NewDiagnosticCollection(owner, name, l.h)
	if err := l.h.track(owner, dc, dc.close); err != nil {
		return nil, err
	}
	return dc, nil
}

func (l languagesAPI) Languages() []string {
	seen := make(map[string]struct{}, len(knownLanguages))
	for _, id := range knownLanguages {
		seen[id] = struct{}{}
	}
	l.h.mu.RLock()
	for _, e := range l.h.providers {
		for _, f := range e.selector {
			if f.Language != "" && f.Language != "*" {
				seen[f.Language] = struct{}{}
			}
		}
	}
	l.h.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ProvidersFor returns the providers of kind selecting doc, in
// registration order. It is called by the host core.
func (h *Host) ProvidersFor(kind ProviderKind, doc TextDocument) []any {
	entries := h.matching(kind, doc)
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.provider
	}
	return out
}

func (h *Host) matching(kind ProviderKind, doc TextDocument) []*providerEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*providerEntry
	for _, e := range h.providers {
		if e.kind == kind && e.selector.Matches(doc) {
			out = append(out, e)
		}
	}
	return out
}

// ProvideCompletionItems merges the completion items of every matching
// provider. A failing provider does not hide the results of the others.
// Each provider runs under the owner that registered it.
func (h *Host) ProvideCompletionItems(ctx context.Context, doc TextDocument, pos Position) ([]CompletionItem, error) {
	providers := h.matching(ProviderCompletion, doc)
	if len(providers) == 0 {
		return nil, ErrNoProvider
	}

	var (
		items []CompletionItem
		errs  []error
	)
	for _, p := range providers {
		got, err := callProvider(func() ([]CompletionItem, error) {
			return p.provider.(CompletionProvider).ProvideCompletionItems(WithOwner(ctx, p.owner), doc, pos)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, got...)
	}
	if len(items) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

// ProvideHover returns the first hover a matching provider produces.
func (h *Host) ProvideHover(ctx context.Context, doc TextDocument, pos Position) (*Hover, error) {
	providers := h.matching(ProviderHover, doc)
	if len(providers) == 0 {
		return nil, ErrNoProvider
	}

	var errs []error
	for _, p := range providers {
		hover, err := callProvider(func() (*Hover, error) {
			return p.provider.(HoverProvider).ProvideHover(WithOwner(ctx, p.owner), doc, pos)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if hover != nil {
			return hover, nil
		}
	}
	return nil, errors.Join(errs...)
}

// callProvider runs fn, turning a panic into an error.
func callProvider[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return fn()
}

var _ Languages = languagesAPI{}

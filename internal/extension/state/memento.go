// Package state provides the key/value stores handed to extensions as
// workspace and global state.
//
// A Memento keeps its values as a single JSON document. Values go in through
// Update and come back in their JSON shape: numbers as float64, objects as
// map[string]any and arrays as []any. Nothing is written to disk.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrEmptyKey is returned when updating with an empty key.
var ErrEmptyKey = errors.New("state key is empty")

// Memento is a concurrency-safe JSON-backed key/value store.
type Memento struct {
	mu  sync.RWMutex
	doc string
}

// NewMemento creates an empty store.
func NewMemento() *Memento {
	return &Memento{doc: "{}"}
}

// escapeKey turns a key into a gjson/sjson path that addresses exactly
// one top-level member.
func escapeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (m *Memento) lookup(key string) gjson.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return gjson.Get(m.doc, escapeKey(key))
}

// Get returns the value stored under key, or def if there is none.
func (m *Memento) Get(key string, def any) any {
	r := m.lookup(key)
	if !r.Exists() {
		return def
	}
	return r.Value()
}

// GetString returns the string under key, or def.
func (m *Memento) GetString(key, def string) string {
	r := m.lookup(key)
	if !r.Exists() {
		return def
	}
	return r.String()
}

// GetInt returns the integer under key, or def.
func (m *Memento) GetInt(key string, def int64) int64 {
	r := m.lookup(key)
	if !r.Exists() {
		return def
	}
	return r.Int()
}

// GetBool returns the boolean under key, or def.
func (m *Memento) GetBool(key string, def bool) bool {
	r := m.lookup(key)
	if !r.Exists() {
		return def
	}
	return r.Bool()
}

// Has reports whether key holds a value.
func (m *Memento) Has(key string) bool {
	return m.lookup(key).Exists()
}

// Update stores value under key. A nil value deletes the key.
func (m *Memento) Update(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	path := escapeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		doc string
		err error
	)
	if value == nil {
		doc, err = sjson.Delete(m.doc, path)
	} else {
		doc, err = sjson.Set(m.doc, path, value)
	}
	if err != nil {
		return fmt.Errorf("update %q: %w", key, err)
	}
	m.doc = doc
	return nil
}

// Keys returns every stored key sorted.
func (m *Memento) Keys() []string {
	m.mu.RLock()
	doc := m.doc
	m.mu.RUnlock()

	var keys []string
	gjson.Parse(doc).ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (m *Memento) Len() int {
	return len(m.Keys())
}

// JSON returns a snapshot of the whole document.
func (m *Memento) JSON() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc
}

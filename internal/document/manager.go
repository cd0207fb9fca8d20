// Package document tracks the text of documents open in the editor.
package document

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotOpen is returned for a URI that is not open.
var ErrNotOpen = errors.New("document: not open")

// Document is an open document's text at a version.
type Document struct {
	URI     string
	Path    string
	Version int32
	Text    string
}

// Manager holds the open documents keyed by URI.
type Manager struct {
	mu   sync.Mutex
	docs map[string]*Document
}

// NewManager creates an initialized Manager.
func NewManager() *Manager {
	return &Manager{docs: make(map[string]*Document)}
}

// Open stores a document. Opening an open URI replaces it.
func (m *Manager) Open(uri string, version int32, text string) Document {
	doc := &Document{URI: uri, Path: URIToPath(uri), Version: version, Text: text}
	m.mu.Lock()
	m.docs[uri] = doc
	m.mu.Unlock()
	return *doc
}

// Get returns the current state of uri.
func (m *Manager) Get(uri string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[uri]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}
	return *doc, nil
}

// Update applies content change events in order.
func (m *Manager) Update(uri string, version int32, changes []any) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[uri]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}
	text := doc.Text
	for _, change := range changes {
		next, ok := ApplyChange(text, change)
		if !ok {
			return Document{}, fmt.Errorf("unexpected change event type %T", change)
		}
		text = next
	}
	doc.Text = text
	doc.Version = version
	return *doc, nil
}

// Replace sets the full text of an open document, as sent on save.
func (m *Manager) Replace(uri, text string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[uri]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}
	doc.Text = text
	return *doc, nil
}

// Close forgets uri.
func (m *Manager) Close(uri string) {
	m.mu.Lock()
	delete(m.docs, uri)
	m.mu.Unlock()
}

// All returns every open document ordered by URI.
func (m *Manager) All() []Document {
	m.mu.Lock()
	out := make([]Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, *doc)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// ByPath returns the open document for a file path.
func (m *Manager) ByPath(path string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.docs {
		if doc.Path == path {
			return *doc, true
		}
	}
	return Document{}, false
}

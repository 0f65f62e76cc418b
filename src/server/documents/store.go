// Package documents tracks the open-document state one session has
// announced to its language server, plus the last diagnostics the server
// pushed per file. It never touches the filesystem; callers hand it text.
package documents

import (
	"sync"

	"go.lsp.dev/protocol"

	"lsmcp/src/internal/errors"
)

// Document is one file the server has been told about via didOpen.
type Document struct {
	URI        string
	LanguageID string
	Version    int32
	Text       string
}

// Store owns a session's open documents and diagnostics cache. It is
// private to one session and dropped wholesale on shutdown.
type Store struct {
	mu          sync.RWMutex
	docs        map[string]Document
	diagnostics map[string][]protocol.Diagnostic
}

func NewStore() *Store {
	return &Store{
		docs:        make(map[string]Document),
		diagnostics: make(map[string][]protocol.Diagnostic),
	}
}

// Open registers uri with version 1. Opening an already-open URI changes
// nothing and reports opened=false, so the caller knows not to resend
// didOpen: servers expect exactly one open per document lifecycle.
func (s *Store) Open(uri, languageID, text string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, exists := s.docs[uri]; exists {
		return doc, false
	}

	doc := Document{
		URI:        uri,
		LanguageID: languageID,
		Version:    1,
		Text:       text,
	}
	s.docs[uri] = doc
	return doc, true
}

// Get returns the tracked state of uri.
func (s *Store) Get(uri string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, exists := s.docs[uri]
	return doc, exists
}

// IsOpen reports whether uri has been opened and not yet closed.
func (s *Store) IsOpen(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.docs[uri]
	return exists
}

// Update replaces the stored text and advances the version. A version of 0
// means "next": the stored version plus one. Supplying an explicit version
// lower than the current one is rejected, servers rely on monotonicity.
func (s *Store) Update(uri, text string, version int32) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[uri]
	if !exists {
		return Document{}, errors.NewDocumentError(uri, "cannot update a document that is not open")
	}

	if version == 0 {
		version = doc.Version + 1
	} else if version <= doc.Version {
		return Document{}, errors.NewDocumentError(uri, "document version must increase")
	}

	doc.Version = version
	doc.Text = text
	s.docs[uri] = doc
	return doc, nil
}

// Close forgets uri and its cached diagnostics. Closing an unopened URI is
// a no-op reported through the return value.
func (s *Store) Close(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[uri]; !exists {
		return false
	}
	delete(s.docs, uri)
	delete(s.diagnostics, uri)
	return true
}

// SetDiagnostics replaces the cached diagnostics for uri wholesale. Each
// publishDiagnostics push carries the complete current set for the file, so
// merging would resurrect fixed findings.
func (s *Store) SetDiagnostics(uri string, diags []protocol.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics[uri] = diags
}

// Diagnostics returns the most recent diagnostics push for uri. ok=false
// means the server has not published for this file yet, which is different
// from an empty (clean) publish.
func (s *Store) Diagnostics(uri string) ([]protocol.Diagnostic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	diags, exists := s.diagnostics[uri]
	return diags, exists
}

// OpenURIs lists the currently open documents.
func (s *Store) OpenURIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	return uris
}

// Reset drops every document and cached diagnostic. Called when the owning
// session shuts down.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]Document)
	s.diagnostics = make(map[string][]protocol.Diagnostic)
}

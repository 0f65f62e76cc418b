package server

import (
	"context"
	"path/filepath"
	"sync"

	"lsmcp/src/internal/common"
	"lsmcp/src/internal/errors"
	"lsmcp/src/internal/types"
)

// sessionKey identifies one session: a project root plus a language. The
// same root can host sessions for several languages side by side.
type sessionKey struct {
	root     string
	language string
}

// Registry owns every live session and the notion of the most recently
// initialized ("active") one. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*Session
	active   *Session

	// newSession is swappable so tests can wire sessions to a fake process
	// manager.
	newSession func(language, rootPath string, config types.ClientConfig) *Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:   make(map[sessionKey]*Session),
		newSession: NewSession,
	}
}

func registryKey(rootPath, language string) sessionKey {
	return sessionKey{root: filepath.Clean(rootPath), language: language}
}

// Initialize returns the Ready session for (rootPath, language), starting a
// new one when none exists. The session becomes active only once Ready, so
// a concurrent Active call never observes a half-initialized session.
func (r *Registry) Initialize(ctx context.Context, rootPath, language string, config types.ClientConfig) (*Session, error) {
	key := registryKey(rootPath, language)

	r.mu.Lock()
	if existing, ok := r.sessions[key]; ok {
		if existing.State() == StateReady {
			r.active = existing
			r.mu.Unlock()
			return existing, nil
		}
		// A terminated session stays dead; replace it.
		delete(r.sessions, key)
	}
	session := r.newSession(language, key.root, config)
	r.mu.Unlock()

	if err := session.Start(ctx); err != nil {
		return nil, errors.WrapWithContext("initialize session", err)
	}

	r.mu.Lock()
	// Another Initialize may have raced us to Ready; keep the winner and
	// fold the loser back down.
	if winner, ok := r.sessions[key]; ok && winner.State() == StateReady {
		r.active = winner
		r.mu.Unlock()
		_ = session.Shutdown(ctx)
		return winner, nil
	}
	r.sessions[key] = session
	r.active = session
	r.mu.Unlock()

	return session, nil
}

// Active returns the most recently initialized session.
func (r *Registry) Active() (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return nil, errors.NewStateError("active session lookup", StateUninitialized.String())
	}
	return r.active, nil
}

// SessionFor returns the session for (rootPath, language), if any.
func (r *Registry) SessionFor(rootPath, language string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[registryKey(rootPath, language)]
	return s, ok
}

// Sessions snapshots all registered sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// ShutdownAll stops every session in parallel. A failing shutdown is logged
// and does not stop the others from being torn down.
func (r *Registry) ShutdownAll(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[sessionKey]*Session)
	r.active = nil
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Shutdown(ctx); err != nil {
				common.LSPLogger.Error("Failed to shut down %s session for %s: %v", s.Language(), s.RootPath(), err)
			}
		}(s)
	}
	wg.Wait()
}

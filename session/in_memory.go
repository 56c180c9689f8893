package session

import (
	"context"
	"sync"

	"github.com/refreshapp/refresh/core"
)

// InMemoryStore is a volatile SessionStore implementation keyed by the full
// (app, user, session) triple. It is safe for concurrent access and best
// suited for tests or ephemeral demo servers. Each returned session is cloned
// to prevent external mutation of internal state; AppendEvent serializes the
// delta-merge and history append under the store lock so readers never
// observe one without the other.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[core.SessionKey]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[core.SessionKey]*core.Session)}
}

// Create adds a new session with the given initial state. Returns
// core.ErrSessionExists when the key is already taken.
func (s *InMemoryStore) Create(_ context.Context, key core.SessionKey, initial map[string]any) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; ok {
		return nil, core.ErrSessionExists
	}
	sess := core.NewSession(key, initial)
	s.sessions[key] = sess
	return sess.Clone(), nil
}

// Get returns a clone of an existing session or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(_ context.Context, key core.SessionKey) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// CreateOrLoad returns the existing session for key or atomically creates one
// with the initial state. Both lookup and insert happen under one lock so two
// racing callers converge on a single session.
func (s *InMemoryStore) CreateOrLoad(_ context.Context, key core.SessionKey, initial map[string]any) (*core.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess.Clone(), false, nil
	}
	sess := core.NewSession(key, initial)
	s.sessions[key] = sess
	return sess.Clone(), true, nil
}

// AppendEvent folds the event into the identified session: its state delta is
// merged and the event appended atomically.
func (s *InMemoryStore) AppendEvent(_ context.Context, key core.SessionKey, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return core.ErrSessionNotFound
	}
	sess.ApplyEvent(ev)
	return nil
}

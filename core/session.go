package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Sentinel errors returned by SessionStore implementations.
var (
	// ErrSessionExists is returned by Create when the key is already taken.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned when no session exists for the key.
	ErrSessionNotFound = errors.New("session not found")
)

// SessionKey identifies a session by the (application, user, session) triple.
// All three components participate in identity: the same session id under a
// different user id names a different session.
type SessionKey struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Session is a conversational container tracking mutable key/value state plus
// an ordered event history. It is safe for concurrent access.
//
// Contract:
//   - State is only ever mutated by applying event state deltas, so the
//     current state always equals the initial state folded with every delta
//     in event order
//   - GetEvents returns a defensive copy to avoid external mutation
//   - GetConversationHistory filters events to user/assistant/tool roles and
//     excludes partial streaming fragments
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	Key        SessionKey     `json:"key"`
	State      map[string]any `json:"state"`
	Events     []Event        `json:"events"`
	Created    time.Time      `json:"created"`
	LastUpdate time.Time      `json:"last_update"`
	mu         sync.RWMutex
}

// NewSession creates an empty session for the given key with a copy of the
// provided initial state (nil is fine).
func NewSession(key SessionKey, initial map[string]any) *Session {
	now := time.Now().UTC()
	state := make(map[string]any, len(initial))
	for k, v := range initial {
		state[k] = v
	}
	return &Session{Key: key, State: state, Events: []Event{}, Created: now, LastUpdate: now}
}

// ID returns the session id component of the key.
func (s *Session) ID() string { return s.Key.SessionID }

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// GetStateString returns the state value for key coerced to string, or ""
// when absent or not a string.
func (s *Session) GetStateString(key string) string {
	v, ok := s.GetState(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// ApplyEvent folds the event into the session: its state delta is merged into
// State, the event is appended to history and LastUpdate is bumped from the
// event timestamp. This is the only mutation path; stores call it while
// holding their own per-session serialization.
func (s *Session) ApplyEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range ev.Actions.StateDelta {
		s.State[k] = v
	}
	s.Events = append(s.Events, ev)
	if ev.Timestamp.After(s.LastUpdate) {
		s.LastUpdate = ev.Timestamp
	}
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// GetConversationHistory returns filtered events suitable for providing
// conversational context to models (excludes partials and non-conversational roles).
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := map[string]bool{"user": true, "assistant": true, "tool": true}
	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil || !allowed[ev.Content.Role] {
			continue
		}
		if ev.Partial != nil && *ev.Partial {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// StateSnapshot returns a shallow copy of the current state map.
func (s *Session) StateSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]any, len(s.State))
	for k, v := range s.State {
		snap[k] = v
	}
	return snap
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		Key:        s.Key,
		State:      make(map[string]any, len(s.State)),
		Events:     make([]Event, len(s.Events)),
		Created:    s.Created,
		LastUpdate: s.LastUpdate,
	}
	for k, v := range s.State {
		clone.State[k] = v
	}
	copy(clone.Events, s.Events)
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
// Implementations must serialize AppendEvent per session key so that the
// delta-merge and the history append are atomic with respect to readers.
type SessionStore interface {
	// Create adds a new session. ErrSessionExists if the key is taken.
	Create(ctx context.Context, key SessionKey, initial map[string]any) (*Session, error)
	// Get returns the session for key. ErrSessionNotFound if absent.
	Get(ctx context.Context, key SessionKey) (*Session, error)
	// CreateOrLoad returns the existing session for key or atomically creates
	// one with the initial state. The bool reports whether it was created.
	CreateOrLoad(ctx context.Context, key SessionKey, initial map[string]any) (*Session, bool, error)
	// AppendEvent folds the event into the identified session.
	AppendEvent(ctx context.Context, key SessionKey, event Event) error
}

package core

import (
	"context"

	"github.com/refreshapp/refresh/logging"
)

type testLogger struct{}

func (l testLogger) Debug(string, ...any) {}
func (l testLogger) Info(string, ...any)  {}
func (l testLogger) Warn(string, ...any)  {}
func (l testLogger) Error(string, ...any) {}
func (l testLogger) Fatal(string, ...any) {}

var testKey = SessionKey{AppName: "RefreshApp", UserID: "u-1", SessionID: "s-1"}

// mockSessionStore is a minimal in-package store used by context tests.
type mockSessionStore struct{ sessions map[SessionKey]*Session }

func (m *mockSessionStore) get(key SessionKey) *Session {
	if m.sessions == nil {
		m.sessions = map[SessionKey]*Session{}
	}
	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := NewSession(key, nil)
	m.sessions[key] = s
	return s
}

func (m *mockSessionStore) Create(_ context.Context, key SessionKey, initial map[string]any) (*Session, error) {
	if m.sessions != nil {
		if _, ok := m.sessions[key]; ok {
			return nil, ErrSessionExists
		}
	}
	s := m.get(key)
	for k, v := range initial {
		s.State[k] = v
	}
	return s, nil
}

func (m *mockSessionStore) Get(_ context.Context, key SessionKey) (*Session, error) {
	return m.get(key), nil
}

func (m *mockSessionStore) CreateOrLoad(ctx context.Context, key SessionKey, initial map[string]any) (*Session, bool, error) {
	if m.sessions != nil {
		if s, ok := m.sessions[key]; ok {
			return s, false, nil
		}
	}
	s, err := m.Create(ctx, key, initial)
	return s, true, err
}

func (m *mockSessionStore) AppendEvent(_ context.Context, key SessionKey, ev Event) error {
	m.get(key).ApplyEvent(ev)
	return nil
}

func newRunContextForTest() (*RunContext, chan Event) {
	emit := make(chan Event, 5)
	resume := make(chan struct{}, 5)
	store := &mockSessionStore{}
	sess := store.get(testKey)
	rc := NewRunContext(
		context.Background(), testKey, "inv-x",
		AgentInfo{Name: "agent1", Type: "test"},
		Content{Role: "user", Parts: []Part{TextPart{Text: "hi"}}},
		0, emit, resume, sess, store, logging.NoOpLogger{},
	)
	return rc, emit
}

// Package testutil contains small fixtures shared by package tests: seeded
// session stores and pre-wired tool contexts. It deliberately depends only on
// the standard testing package so every test suite can use it regardless of
// its assertion style.
package testutil

import (
	"context"
	"testing"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/logging"
	"github.com/refreshapp/refresh/session"
)

// SeededStore returns an in-memory session store holding one session under
// key with the given initial state.
func SeededStore(t *testing.T, key core.SessionKey, state map[string]any) *session.InMemoryStore {
	t.Helper()
	store := session.NewInMemoryStore()
	if _, err := store.Create(context.Background(), key, state); err != nil {
		t.Fatalf("seed session %v: %v", key, err)
	}
	return store
}

// ToolContext builds a tool context bound to the session stored under key.
// The emit and resume channels are buffered so direct tool invocations never
// block on a runner pump.
func ToolContext(t *testing.T, store core.SessionStore, key core.SessionKey, agentName string) *core.ToolContext {
	t.Helper()
	sess, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("load session %v: %v", key, err)
	}

	emit := make(chan core.Event, 16)
	resume := make(chan struct{}, 16)
	rc := core.NewRunContext(
		context.Background(), key, "inv-test",
		core.AgentInfo{Name: agentName, Type: "test"},
		core.Content{}, 0, emit, resume, sess, store, logging.NoOpLogger{},
	)
	return core.NewToolContext(rc, "fc-test")
}

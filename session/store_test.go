package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/refreshapp/refresh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ core.SessionStore = (*InMemoryStore)(nil)
	_ core.SessionStore = (*SQLiteStore)(nil)
)

func testKey(id string) core.SessionKey {
	return core.SessionKey{AppName: "RefreshApp", UserID: "student-1", SessionID: id}
}

// runStoreSuite exercises the SessionStore contract shared by all backends.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) core.SessionStore) {
	ctx := context.Background()

	t.Run("create then duplicate", func(t *testing.T) {
		store := newStore(t)
		key := testKey("s-1")

		sess, err := store.Create(ctx, key, map[string]any{"login_status": "False"})
		require.NoError(t, err)
		assert.Equal(t, "False", sess.GetStateString("login_status"))

		_, err = store.Create(ctx, key, nil)
		assert.ErrorIs(t, err, core.ErrSessionExists)
	})

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, testKey("absent"))
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("create or load", func(t *testing.T) {
		store := newStore(t)
		key := testKey("s-2")

		sess, created, err := store.CreateOrLoad(ctx, key, map[string]any{"student_id": "0"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "0", sess.GetStateString("student_id"))

		// Second call loads, and must not reset state mutated in between.
		require.NoError(t, store.AppendEvent(ctx, key,
			core.NewStateDeltaEvent("inv-1", "system", map[string]any{"student_id": "42"})))

		sess, created, err = store.CreateOrLoad(ctx, key, map[string]any{"student_id": "0"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "42", sess.GetStateString("student_id"))
	})

	t.Run("append folds delta atomically", func(t *testing.T) {
		store := newStore(t)
		key := testKey("s-3")
		_, err := store.Create(ctx, key, map[string]any{"login_status": "False"})
		require.NoError(t, err)

		ev := core.NewMessageEvent("login_agent", "you are in")
		ev.InvocationID = "inv-1"
		ev.Actions.StateDelta = map[string]any{"login_status": "True", "guid": "g-1"}
		require.NoError(t, store.AppendEvent(ctx, key, ev))

		sess, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "True", sess.GetStateString("login_status"))
		assert.Equal(t, "g-1", sess.GetStateString("guid"))

		events := sess.GetEvents()
		require.Len(t, events, 1)
		assert.Equal(t, "login_agent", events[0].Author)
		assert.Equal(t, "you are in", events[0].Text())
	})

	t.Run("append to missing session", func(t *testing.T) {
		store := newStore(t)
		err := store.AppendEvent(ctx, testKey("absent"), core.NewMessageEvent("a", "b"))
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("triple keying isolates users", func(t *testing.T) {
		store := newStore(t)
		keyA := core.SessionKey{AppName: "RefreshApp", UserID: "u-a", SessionID: "shared"}
		keyB := core.SessionKey{AppName: "RefreshApp", UserID: "u-b", SessionID: "shared"}

		_, err := store.Create(ctx, keyA, map[string]any{"who": "a"})
		require.NoError(t, err)
		_, err = store.Create(ctx, keyB, map[string]any{"who": "b"})
		require.NoError(t, err)

		a, err := store.Get(ctx, keyA)
		require.NoError(t, err)
		b, err := store.Get(ctx, keyB)
		require.NoError(t, err)
		assert.Equal(t, "a", a.GetStateString("who"))
		assert.Equal(t, "b", b.GetStateString("who"))
	})

	t.Run("state replay equals fold", func(t *testing.T) {
		store := newStore(t)
		key := testKey("s-replay")
		initial := map[string]any{"login_status": "False", "student_id": "0", "guid": "0"}
		_, err := store.Create(ctx, key, initial)
		require.NoError(t, err)

		deltas := []map[string]any{
			{"student_id": "7"},
			{"guid": "g-9"},
			{"login_status": "True", "activity": "questions"},
		}
		for i, d := range deltas {
			ev := core.NewStateDeltaEvent("inv-1", "system", d)
			require.NoError(t, store.AppendEvent(ctx, key, ev), "delta %d", i)
		}

		sess, err := store.Get(ctx, key)
		require.NoError(t, err)

		replay := map[string]any{}
		for k, v := range initial {
			replay[k] = v
		}
		for _, ev := range sess.GetEvents() {
			for k, v := range ev.Actions.StateDelta {
				replay[k] = v
			}
		}
		assert.Equal(t, replay, sess.StateSnapshot())
	})
}

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) core.SessionStore {
		return NewInMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) core.SessionStore {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestSQLiteStore_EventRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := testKey("rt")
	_, err = store.Create(ctx, key, nil)
	require.NoError(t, err)

	call := core.NewFunctionCallEvent("router", "check_login_status", `{}`)
	call.InvocationID = "inv-rt"
	require.NoError(t, store.AppendEvent(ctx, key, call))

	resp := core.NewFunctionResponseEvent("router", "fc-1", "check_login_status",
		map[string]any{"logged_in": false}, nil)
	resp.InvocationID = "inv-rt"
	require.NoError(t, store.AppendEvent(ctx, key, resp))

	sess, err := store.Get(ctx, key)
	require.NoError(t, err)
	events := sess.GetEvents()
	require.Len(t, events, 2)

	calls := events[0].GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "check_login_status", calls[0].Name)

	resps := events[1].GetFunctionResponses()
	require.Len(t, resps, 1)
	assert.Equal(t, "fc-1", resps[0].ID)
}

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/refreshapp/refresh/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	app_name     TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	state        TEXT NOT NULL DEFAULT '{}',
	created      TIMESTAMP NOT NULL,
	last_update  TIMESTAMP NOT NULL,
	PRIMARY KEY (app_name, user_id, session_id)
);

CREATE TABLE IF NOT EXISTS events (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	app_name     TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	event_id     TEXT NOT NULL,
	payload      TEXT NOT NULL,
	ts           TIMESTAMP NOT NULL,
	FOREIGN KEY (app_name, user_id, session_id)
		REFERENCES sessions (app_name, user_id, session_id)
);

CREATE INDEX IF NOT EXISTS idx_events_session
	ON events (app_name, user_id, session_id, seq);
`

// SQLiteStore is a durable SessionStore backed by a SQLite database file.
// Session state and events live in separate tables; AppendEvent runs the
// delta-merge and the event insert inside one transaction, additionally
// guarded by a process-wide mutex so concurrent appends to the same session
// serialize instead of failing on SQLITE_BUSY.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create inserts a new session row. Returns core.ErrSessionExists when the
// triple is already present.
func (s *SQLiteStore) Create(ctx context.Context, key core.SessionKey, initial map[string]any) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx, key, initial)
}

func (s *SQLiteStore) createLocked(ctx context.Context, key core.SessionKey, initial map[string]any) (*core.Session, error) {
	if initial == nil {
		initial = map[string]any{}
	}
	stateJSON, err := json.Marshal(initial)
	if err != nil {
		return nil, fmt.Errorf("marshal initial state: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (app_name, user_id, session_id, state, created, last_update)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.AppName, key.UserID, key.SessionID, string(stateJSON), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, core.ErrSessionExists
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return core.NewSession(key, initial), nil
}

// Get loads the session row plus its full event history.
func (s *SQLiteStore) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, key)
}

func (s *SQLiteStore) getLocked(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state, created, last_update FROM sessions
		 WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID,
	)

	var stateJSON string
	var created, lastUpdate time.Time
	if err := row.Scan(&stateJSON, &created, &lastUpdate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("query session: %w", err)
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}

	sess := core.NewSession(key, nil)
	sess.State = state
	sess.Created = created
	sess.LastUpdate = lastUpdate

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events
		 WHERE app_name = ? AND user_id = ? AND session_id = ?
		 ORDER BY seq`,
		key.AppName, key.UserID, key.SessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := decodeEvent([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		sess.Events = append(sess.Events, ev)
	}

	return sess, rows.Err()
}

// CreateOrLoad returns the existing session or creates a fresh one, holding
// the store lock across the lookup and insert so racing requests converge.
func (s *SQLiteStore) CreateOrLoad(ctx context.Context, key core.SessionKey, initial map[string]any) (*core.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(ctx, key)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, core.ErrSessionNotFound) {
		return nil, false, err
	}

	sess, err = s.createLocked(ctx, key, initial)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// AppendEvent merges the event's state delta into the session row and inserts
// the event payload inside one transaction.
func (s *SQLiteStore) AppendEvent(ctx context.Context, key core.SessionKey, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT state FROM sessions
		 WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID,
	)
	var stateJSON string
	if err := row.Scan(&stateJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrSessionNotFound
		}
		return fmt.Errorf("load state: %w", err)
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return fmt.Errorf("unmarshal state: %w", err)
	}
	for k, v := range ev.Actions.StateDelta {
		state[k] = v
	}
	merged, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET state = ?, last_update = ?
		 WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		string(merged), ev.Timestamp, key.AppName, key.UserID, key.SessionID,
	); err != nil {
		return fmt.Errorf("update state: %w", err)
	}

	payload, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (app_name, user_id, session_id, event_id, payload, ts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.AppName, key.UserID, key.SessionID, ev.ID, string(payload), ev.Timestamp,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text;
	// matching the message avoids importing driver internals.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

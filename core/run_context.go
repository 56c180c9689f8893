package core

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/refreshapp/refresh/logging"
)

// RunContext carries execution state and helpers for an agent run. It
// encapsulates the mutable, per-invocation execution scope passed to an
// Agent's Run method:
//   - The ambient cancellation Context
//   - Identifiers (session Key, InvocationID, Agent info)
//   - Input user Content
//   - Emission / resumption coordination channels
//   - The backing SessionStore and a working Session snapshot
//   - A pending StateDelta buffer and a Branch label for nested flows
//
// State mutations performed via SetState accumulate in StateDelta until
// EmitEvent attaches them to the next event; session state itself only
// changes when the runner appends that event to the store.
type RunContext struct {
	Context       context.Context
	Key           SessionKey
	InvocationID  string
	Agent         AgentInfo
	UserContent   Content
	MaxModelCalls int
	Emit          chan<- Event
	Resume        <-chan struct{}
	SessionStore  SessionStore
	Limiter       *ModelLimiter
	Session       *Session
	StateDelta    map[string]any
	Branch        string

	// deltaMu guards StateDelta; tools in a parallel batch stage state
	// concurrently.
	deltaMu sync.Mutex

	*loggerAdapter
}

// NewRunContext constructs a RunContext with an empty state delta buffer.
func NewRunContext(
	ctx context.Context,
	key SessionKey,
	invocationID string,
	agent AgentInfo,
	userContent Content,
	maxModelCalls int,
	emit chan<- Event,
	resume <-chan struct{},
	sess *Session,
	store SessionStore,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		Key:           key,
		InvocationID:  invocationID,
		Agent:         agent,
		UserContent:   userContent,
		MaxModelCalls: maxModelCalls,
		Emit:          emit,
		Resume:        resume,
		Session:       sess,
		SessionStore:  store,
		Limiter:       NewModelLimiter(maxModelCalls),
		StateDelta:    map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState returns a staged (delta) value if present, else the persisted
// session value.
func (rc *RunContext) GetState(k string) (any, bool) {
	rc.deltaMu.Lock()
	v, ok := rc.StateDelta[k]
	rc.deltaMu.Unlock()
	if ok {
		return v, true
	}

	if rc.Session != nil {
		return rc.Session.GetState(k)
	}

	return nil, false
}

// GetStateString is GetState coerced to string, "" when absent.
func (rc *RunContext) GetStateString(k string) string {
	v, ok := rc.GetState(k)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// SetState stages a state mutation in the in-memory delta buffer.
func (rc *RunContext) SetState(k string, v any) {
	rc.deltaMu.Lock()
	rc.StateDelta[k] = v
	rc.deltaMu.Unlock()
}

// ApplyStateDelta merges all pairs from d into the staged StateDelta.
func (rc *RunContext) ApplyStateDelta(d map[string]any) {
	rc.deltaMu.Lock()
	maps.Copy(rc.StateDelta, d)
	rc.deltaMu.Unlock()
}

// RefreshSession reloads the session snapshot from the SessionStore so the
// context observes events appended since the last load.
func (rc *RunContext) RefreshSession() error {
	if rc.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	s, err := rc.SessionStore.Get(rc.Context, rc.Key)
	if err != nil {
		return err
	}

	rc.Session = s

	return nil
}

// GetSessionHistory returns all historical events for the session.
func (rc *RunContext) GetSessionHistory() []Event {
	if rc.Session == nil {
		return []Event{}
	}

	return rc.Session.GetEvents()
}

// GetAgentName returns the logical agent name for this invocation.
func (rc *RunContext) GetAgentName() string { return rc.Agent.Name }

// Clone returns a shallow copy with a deep-copied delta buffer.
func (rc *RunContext) Clone() *RunContext {
	c := &RunContext{
		Context:       rc.Context,
		Key:           rc.Key,
		InvocationID:  rc.InvocationID,
		Agent:         rc.Agent,
		UserContent:   rc.UserContent,
		MaxModelCalls: rc.MaxModelCalls,
		Emit:          rc.Emit,
		Resume:        rc.Resume,
		SessionStore:  rc.SessionStore,
		Limiter:       rc.Limiter,
		Session:       rc.Session,
		StateDelta:    map[string]any{},
		Branch:        rc.Branch,
		loggerAdapter: rc.loggerAdapter,
	}

	rc.deltaMu.Lock()
	maps.Copy(c.StateDelta, rc.StateDelta)
	rc.deltaMu.Unlock()

	return c
}

// WithBranch clones the context and sets the Branch label.
func (rc *RunContext) WithBranch(b string) *RunContext {
	c := rc.Clone()
	c.Branch = b
	return c
}

// NewChildContext derives a context for a nested execution path (agent used
// as a tool, transferred-to sub-agent) with fresh coordination channels and
// an empty delta buffer.
func (rc *RunContext) NewChildContext(emit chan<- Event, resume <-chan struct{}, branch string) *RunContext {
	finalBranch := rc.Branch
	if branch != "" {
		finalBranch = branch
	}

	return &RunContext{
		Context:       rc.Context,
		Key:           rc.Key,
		InvocationID:  rc.InvocationID,
		Agent:         rc.Agent,
		UserContent:   rc.UserContent,
		MaxModelCalls: rc.MaxModelCalls,
		Emit:          emit,
		Resume:        resume,
		SessionStore:  rc.SessionStore,
		Limiter:       rc.Limiter,
		Session:       rc.Session,
		StateDelta:    map[string]any{},
		Branch:        finalBranch,
		loggerAdapter: rc.loggerAdapter,
	}
}

// EmitEvent merges the pending StateDelta into the event and emits it. The
// buffer is cleared only after a successful emit so a cancelled send does not
// lose staged state. Partial events are never persisted, so they carry no
// delta and leave the buffer staged for the next non-partial emit.
func (rc *RunContext) EmitEvent(ev Event) error {
	if len(ev.InvocationID) == 0 {
		ev.InvocationID = rc.InvocationID
	}

	if ev.IsPartial() {
		select {
		case <-rc.Context.Done():
			return rc.Context.Err()
		case rc.Emit <- ev:
		}
		return nil
	}

	rc.deltaMu.Lock()
	if len(rc.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		maps.Copy(ev.Actions.StateDelta, rc.StateDelta)
	}
	rc.deltaMu.Unlock()

	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
	}

	rc.deltaMu.Lock()
	rc.StateDelta = map[string]any{}
	rc.deltaMu.Unlock()

	return nil
}

// WaitForResume blocks until the runner signals that the previously emitted
// event has been persisted, or until context cancellation.
func (rc *RunContext) WaitForResume() error {
	if rc.Resume == nil {
		return nil
	}

	select {
	case <-rc.Resume:
		return nil
	case <-rc.Context.Done():
		return rc.Context.Err()
	}
}

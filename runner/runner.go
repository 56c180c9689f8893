package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/logging"
	"github.com/refreshapp/refresh/session"
)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// MaxConcurrentInvocations limits concurrent agent invocations; Run
	// fails fast when the limit is reached.
	MaxConcurrentInvocations int
	// EventBufferSize sets channel buffering for event streams.
	EventBufferSize int
	// MaxModelCalls limits the number of model calls per invocation.
	MaxModelCalls int
	// SessionStore persists sessions; defaults to in-memory.
	SessionStore core.SessionStore
	// Logger receives orchestration logs.
	Logger logging.Logger
}

// Runner coordinates agent execution: loads the session, builds the run
// context, streams events, and persists every non-partial event before
// resuming the producer. Public methods are safe for concurrent use.
type Runner struct {
	agent core.Agent

	eventBufferSize int
	maxModelCalls   int

	sessionStore core.SessionStore
	logger       logging.Logger

	slots chan struct{}

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

var _ core.Runner = (*Runner)(nil)

// New constructs a Runner for the given root agent with optional overrides.
func New(agent core.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentInvocations: 10,
		EventBufferSize:          100,
		MaxModelCalls:            100,
		SessionStore:             session.NewInMemoryStore(),
		Logger:                   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		agent:           agent,
		eventBufferSize: opts.EventBufferSize,
		maxModelCalls:   opts.MaxModelCalls,
		sessionStore:    opts.SessionStore,
		logger:          opts.Logger,
		slots:           make(chan struct{}, opts.MaxConcurrentInvocations),
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// SessionStore exposes the runner's session store so callers sharing the
// runner (the HTTP front door, tools) operate on the same persistence.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// Run starts an asynchronous invocation for the session identified by key.
// The user content is appended to the session before the agent starts, so
// the conversation history the agent sees always includes the triggering
// message.
func (r *Runner) Run(
	ctx context.Context,
	key core.SessionKey,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	select {
	case r.slots <- struct{}{}:
	default:
		return "", nil, nil, fmt.Errorf("too many concurrent invocations")
	}

	release := func() { <-r.slots }

	sess, err := r.sessionStore.Get(ctx, key)
	if err != nil {
		release()
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	invocationID := core.NewID()

	userEvent := core.NewUserContentEvent(invocationID, &userContent)
	if err := r.sessionStore.AppendEvent(ctx, key, userEvent); err != nil {
		release()
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}
	if sess, err = r.sessionStore.Get(ctx, key); err != nil {
		release()
		return "", nil, nil, fmt.Errorf("failed to reload session: %w", err)
	}

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event, r.eventBufferSize)
	resumeCh := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[invocationID] = cancel
	r.mu.Unlock()

	runCtx := core.NewRunContext(
		ctx,
		key,
		invocationID,
		core.AgentInfo{Name: r.agent.Name(), Type: "root"},
		userContent,
		r.maxModelCalls,
		agentEmit,
		resumeCh,
		sess,
		r.sessionStore,
		r.logger,
	)

	r.logger.Info("runner.invocation.start",
		"invocation_id", invocationID,
		"agent", r.agent.Name(),
		"app", key.AppName,
		"user_id", key.UserID,
		"session_id", key.SessionID,
	)

	go func() {
		defer close(agentEmit)

		if err := r.agent.Run(runCtx); err != nil {
			select {
			case <-runCtx.Done():
			case errorsCh <- fmt.Errorf("agent execution failed: %w", err):
			}
		}
	}()

	go func() {
		defer func() {
			close(eventsCh)
			close(errorsCh)
			cancel()
			r.mu.Lock()
			delete(r.activeRuns, invocationID)
			r.mu.Unlock()
			release()
		}()

		r.processEvents(runCtx, key, agentEmit, resumeCh, eventsCh, errorsCh)
	}()

	return invocationID, eventsCh, errorsCh, nil
}

// RunSync executes an invocation to completion and returns the collected
// non-partial events. It is the blocking convenience used by the HTTP front
// door, which only needs the final response text.
func (r *Runner) RunSync(ctx context.Context, key core.SessionKey, userContent core.Content) ([]core.Event, error) {
	_, eventsCh, errorsCh, err := r.Run(ctx, key, userContent)
	if err != nil {
		return nil, err
	}

	var events []core.Event
	for ev := range eventsCh {
		if !ev.IsPartial() {
			events = append(events, ev)
		}
	}

	if err, ok := <-errorsCh; ok && err != nil {
		return events, err
	}

	return events, nil
}

// Cancel requests cooperative termination of an in-flight invocation.
func (r *Runner) Cancel(invocationID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[invocationID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("invocation %s not found", invocationID)
	}

	cancel()

	return nil
}

// processEvents is the persistence pump: it folds every non-partial event
// into the session via AppendEvent (which merges the event's state delta),
// forwards it to the consumer, and only then resumes the producer. This
// ordering guarantees an agent never observes its own unpersisted event.
func (r *Runner) processEvents(
	runCtx *core.RunContext,
	key core.SessionKey,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
) {
	for {
		select {
		case <-runCtx.Done():
			return
		case ev, ok := <-agentEmit:
			if !ok {
				return
			}

			if !ev.IsPartial() {
				if err := r.sessionStore.AppendEvent(runCtx.Context, key, ev); err != nil {
					select {
					case <-runCtx.Done():
					case errorsCh <- fmt.Errorf("failed to append event to session: %w", err):
					}
					return
				}
			}

			r.logEventActions(key, ev)

			select {
			case <-runCtx.Done():
				return
			case eventsCh <- ev:
			}

			if !ev.IsPartial() {
				select {
				case <-runCtx.Done():
					return
				case resumeCh <- struct{}{}:
				}
			}
		}
	}
}

func (r *Runner) logEventActions(key core.SessionKey, ev core.Event) {
	if ev.Actions.TransferToAgent != nil && *ev.Actions.TransferToAgent != "" {
		r.logger.Debug("runner.event.transfer", "target", *ev.Actions.TransferToAgent, "session_id", key.SessionID)
	}
	if ev.Actions.Escalate != nil && *ev.Actions.Escalate {
		r.logger.Debug("runner.event.escalate", "session_id", key.SessionID)
	}
}

package core

import "context"

// Runner defines the minimal orchestration contract for executing a root
// agent within a conversational session.
//
// Semantics and guarantees:
//   - Event ordering: events emitted within a single invocation are delivered
//     in the order produced by the underlying agent pipeline, and each event
//     is appended to the session before the producer is resumed.
//   - Channel lifecycle: the returned events channel is closed after the
//     invocation completes (success, error, or cancellation). The error
//     channel carries at most one terminal error then closes.
//   - Cancellation: context cancellation or explicit Cancel(invocationID)
//     stops further event emission and triggers cleanup.
//   - Partial events: implementations may emit partial events; consumers
//     should rely on IsPartial() to decide persistence or display strategy.
type Runner interface {
	// Run initiates an asynchronous agent execution bound to the session key
	// using the provided userContent as the starting input. It returns:
	//   invocationID - stable identifier for cancellation / tracking
	//   eventsCh     - ordered stream of events (closed on completion)
	//   errorsCh     - terminal error channel (size 1, closed after send/none)
	// The immediate error return covers startup failures (e.g. session load).
	Run(ctx context.Context, key SessionKey, userContent Content) (string, <-chan Event, <-chan error, error)

	// Cancel requests cooperative termination of an in-flight invocation.
	// It must be idempotent; cancelling an unknown or already finished
	// invocation returns an error describing the condition.
	Cancel(invocationID string) error
}

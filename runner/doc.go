// Package runner orchestrates agent invocations against a session store.
//
// The Runner is the single entry point for executing a conversation turn:
// it loads the session, appends the triggering user message, builds the run
// context, and starts the root agent in its own goroutine. Events emitted by
// agents flow through a persistence pump that appends every non-partial
// event to the session (folding its state delta) before the producer is
// resumed, so conversation state is always durable when an agent observes
// its own output.
//
// Run is asynchronous and returns event and error channels; RunSync wraps it
// for callers that just need the completed turn, such as the HTTP handler.
// In-flight invocations can be terminated with Cancel.
package runner

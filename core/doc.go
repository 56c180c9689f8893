// Package core provides the foundational domain types, interfaces and
// execution contexts shared across the application. It defines:
//
//   - Agents (units of autonomous / orchestrated work)
//   - Sessions (triple-keyed conversational containers whose state is the
//     fold of every event's state delta)
//   - Events (immutable communication + orchestration records)
//   - RunContext / ToolContext (scoped execution and tool sandboxing)
//   - The SessionStore persistence contract
//
// The package intentionally keeps implementation concerns (persistence
// backends, concrete agents, model adapters) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core

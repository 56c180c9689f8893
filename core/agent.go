package core

// Agent is the interface implemented by every conversational participant in
// the application, from the router down to the question scorer.
//
// Agents receive input through a RunContext, process it asynchronously, and
// emit events to communicate results and state changes back to the Runner.
// The interface supports hierarchical multi-agent trees through the
// sub-agent management methods; delegation between siblings happens via the
// TransferToAgent event action.
//
// Implementations must:
//   - Respect context cancellation for graceful shutdown
//   - Emit events through the provided RunContext
//   - Wait for the resume signal after each emission so session persistence
//     stays ordered
type Agent interface {
	Name() string
	Description() string
	Run(rc *RunContext) error
	SetSubAgents(children ...Agent) error
	SubAgents() []Agent
	Parent() Agent
	FindAgent(name string) Agent
}

// AgentInfo carries identifying details about an agent used in contexts and
// events. Name is the external identifier; Type categorizes the
// implementation (e.g. "router", "worker").
type AgentInfo struct{ Name, Type string }

// Package flow implements the execution pipeline that turns an agent's
// configuration into model turns. A flow drives the request -> model ->
// tool loop: it assembles the model request through pluggable request
// processors, streams the model response as events, executes any function
// calls, and repeats until the agent produces a final response, transfers
// control, or escalates.
package flow

import (
	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/model"
	"github.com/refreshapp/refresh/tool"
)

// Flow drives one complete agent invocation. Run emits events through the
// RunContext and blocks until the invocation reaches a terminal state
// (final response, transfer, escalation, cancellation, or error).
type Flow interface {
	Run(runCtx *core.RunContext) error
}

// FlowAgent is the view of an agent a flow needs to operate. It exposes the
// agent's model, instructions, tool registry, and delegation capabilities
// without coupling flows to a concrete agent implementation.
type FlowAgent interface {
	// GetName returns the agent's display name.
	GetName() string

	// GetModel returns the language model the flow should call.
	GetModel() model.Model

	// ResolveInstructions returns the raw system instructions for this turn,
	// before session-state template rendering.
	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// GetTools returns the tools exposed to the model for function calling.
	GetTools() map[string]tool.Tool

	// GetSubAgents returns the agents this agent may transfer control to.
	GetSubAgents() []core.Agent

	// IsStreamingEnabled reports whether partial model chunks are forwarded
	// as partial events.
	IsStreamingEnabled() bool

	// IsTransferEnabled reports whether the transfer_to_agent tool is
	// injected for this agent.
	IsTransferEnabled() bool

	// GetOutputKey returns the session state key that receives the final
	// response text, or "" when no capture is configured.
	GetOutputKey() string

	// MaxHistoryMessages returns the conversation history window size.
	MaxHistoryMessages() int

	// ExecuteTool runs a named tool. Implementations wrap the call with any
	// registered hooks.
	ExecuteTool(toolCtx *core.ToolContext, toolName string, args string) (any, error)

	// TransferToAgent hands the invocation to a named sub-agent.
	TransferToAgent(runCtx *core.RunContext, agentName string) error
}

// RequestProcessor mutates the model request before it is sent.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before model execution.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// ResponseProcessor inspects each model response chunk before it becomes an
// event.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse handles a model response chunk.
	ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error
}

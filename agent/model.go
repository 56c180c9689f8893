package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/flow"
	"github.com/refreshapp/refresh/model"
	"github.com/refreshapp/refresh/tool"
)

// ModelAgentOptions configures a ModelAgent instance. Use functional options
// with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Description        string
	Instruction        Instruction
	EnableStreaming    bool
	ToolTimeout        time.Duration
	OutputKey          string
	MaxHistoryMessages int
	AllowTransfer      bool
	Tools              map[string]tool.Tool
	Hooks              *HookSet
}

// ModelAgent is the conversational agent implementation: it binds a language
// model, an instruction, a tool registry, and optional sub-agents into a
// core.Agent driven by the flow package.
//
// The agent supports:
//   - Instruction templates rendered against session state
//   - Function calling with schema-validated tools
//   - Streaming partial responses
//   - Saving the final response under an output key in session state
//   - Delegation to sub-agents via the transfer_to_agent tool
//   - Before/after hooks around the run and around each tool call
type ModelAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	tools              map[string]tool.Tool
	enableStreaming    bool
	toolTimeout        time.Duration
	outputKey          string
	maxHistoryMessages int
	allowTransfer      bool
	hooks              *HookSet
}

// NewModelAgent creates a model-backed agent. Defaults: streaming off, 15s
// tool timeout, 20-message history window, transfer enabled, empty tool
// registry.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful assistant.", name)),
		ToolTimeout:        15 * time.Second,
		MaxHistoryMessages: 20,
		AllowTransfer:      true,
		Tools:              make(map[string]tool.Tool),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent:          NewBaseAgent(name),
		llm:                llm,
		instruction:        opts.Instruction,
		enableStreaming:    opts.EnableStreaming,
		toolTimeout:        opts.ToolTimeout,
		outputKey:          opts.OutputKey,
		maxHistoryMessages: opts.MaxHistoryMessages,
		allowTransfer:      opts.AllowTransfer,
		tools:              opts.Tools,
		hooks:              opts.Hooks,
	}

	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}

	// Transfer-enabled agents advertise transfer_to_agent to the model, so
	// the implementation must be callable through ExecuteTool as well.
	if opts.AllowTransfer {
		tr := tool.NewTransferToAgentTool()
		if _, ok := a.tools[tr.Name()]; !ok {
			a.tools[tr.Name()] = tr
		}
	}

	return a
}

// RegisterTool adds a tool to the agent's capability set.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools to the agent's capability set.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// UnregisterTool removes a tool. Returns true if it was registered.
func (a *ModelAgent) UnregisterTool(name string) bool {
	if _, exists := a.tools[name]; exists {
		delete(a.tools, name)
		return true
	}
	return false
}

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// GetTool retrieves a specific tool by name.
func (a *ModelAgent) GetTool(name string) (tool.Tool, bool) {
	t, exists := a.tools[name]
	return t, exists
}

// Hooks returns the agent's hook registry, creating it on first use.
func (a *ModelAgent) Hooks() *HookSet {
	if a.hooks == nil {
		a.hooks = NewHookSet()
	}
	return a.hooks
}

// FlowAgent interface implementation.

// GetName returns the agent's display name.
func (a *ModelAgent) GetName() string { return a.Name() }

// GetModel returns the language model instance.
func (a *ModelAgent) GetModel() model.Model { return a.llm }

// GetTools returns a copy of the registered tool map.
func (a *ModelAgent) GetTools() map[string]tool.Tool {
	tools := make(map[string]tool.Tool, len(a.tools))
	for name, t := range a.tools {
		tools[name] = t
	}
	return tools
}

// GetSubAgents returns the child agents available for transfer.
func (a *ModelAgent) GetSubAgents() []core.Agent { return a.SubAgents() }

// IsStreamingEnabled returns whether streaming responses are enabled.
func (a *ModelAgent) IsStreamingEnabled() bool { return a.enableStreaming }

// IsTransferEnabled returns whether agent transfer is enabled.
func (a *ModelAgent) IsTransferEnabled() bool { return a.allowTransfer }

// GetOutputKey returns the session state key for saving responses.
func (a *ModelAgent) GetOutputKey() string { return a.outputKey }

// MaxHistoryMessages returns the conversation history window size.
func (a *ModelAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// ResolveInstructions produces the system prompt by resolving the static or
// dynamic instruction source. Template rendering against session state
// happens downstream in the flow.
func (a *ModelAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return a.instruction.Resolve(runCtx)
}

// ExecuteTool deserializes JSON arguments and invokes the named tool,
// bracketed by the before/after tool hooks and bounded by the tool timeout.
func (a *ModelAgent) ExecuteTool(toolCtx *core.ToolContext, toolName string, args string) (any, error) {
	impl, exists := a.tools[toolName]
	if !exists {
		return nil, fmt.Errorf("tool %s not found", toolName)
	}

	argsMap := make(map[string]any)
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	ctx := toolCtx.Context()

	if err := a.hooks.Run(ctx, &HookContext{
		Type:      HookBeforeTool,
		AgentName: a.Name(),
		ToolCtx:   toolCtx,
		Tool:      toolName,
		Args:      args,
	}); err != nil {
		return nil, err
	}

	result, err := a.callWithTimeout(toolCtx, impl, argsMap)

	if hookErr := a.hooks.Run(ctx, &HookContext{
		Type:      HookAfterTool,
		AgentName: a.Name(),
		ToolCtx:   toolCtx,
		Tool:      toolName,
		Args:      args,
		Result:    result,
		Err:       err,
	}); hookErr != nil && err == nil {
		err = hookErr
	}

	return result, err
}

// callWithTimeout runs the tool, bounding it by the configured timeout and
// the invocation context. A timed-out tool goroutine is abandoned; tools are
// expected to watch their context for long operations.
func (a *ModelAgent) callWithTimeout(toolCtx *core.ToolContext, impl tool.Tool, args map[string]any) (any, error) {
	type toolResult struct {
		value any
		err   error
	}

	if a.toolTimeout <= 0 {
		return impl.Call(toolCtx, args)
	}

	resCh := make(chan toolResult, 1)
	go func() {
		value, err := impl.Call(toolCtx, args)
		resCh <- toolResult{value: value, err: err}
	}()

	timer := time.NewTimer(a.toolTimeout)
	defer timer.Stop()

	select {
	case r := <-resCh:
		return r.value, r.err
	case <-timer.C:
		return nil, fmt.Errorf("tool %s timed out after %s", impl.Name(), a.toolTimeout)
	case <-toolCtx.Context().Done():
		return nil, toolCtx.Context().Err()
	}
}

// TransferToAgent delegates execution to a named descendant agent using the
// same emit/resume channels and session, under a child branch label.
func (a *ModelAgent) TransferToAgent(runCtx *core.RunContext, agentName string) error {
	target := a.FindAgent(agentName)
	if target == nil {
		return fmt.Errorf("agent %q not found in hierarchy", agentName)
	}

	branched := runCtx.WithBranch(buildBranchPath(runCtx.Branch, agentName))

	return target.Run(branched)
}

// Run implements core.Agent: it selects a flow matching the agent's
// capabilities and drives it to completion, bracketed by the agent hooks.
func (a *ModelAgent) Run(runCtx *core.RunContext) error {
	runCtx.LogDebug("agent.run.start", "agent", a.Name(), "invocation_id", runCtx.InvocationID)

	if err := a.hooks.Run(runCtx.Context, &HookContext{
		Type:      HookBeforeAgent,
		AgentName: a.Name(),
		RunCtx:    runCtx,
	}); err != nil {
		return err
	}

	fl := flow.NewSelector().SelectFlow(a)
	runCtx.LogDebug("agent.flow.selected", "agent", a.Name(), "flow", fmt.Sprintf("%T", fl))

	runErr := fl.Run(runCtx)

	if hookErr := a.hooks.Run(runCtx.Context, &HookContext{
		Type:      HookAfterAgent,
		AgentName: a.Name(),
		RunCtx:    runCtx,
		Err:       runErr,
	}); hookErr != nil && runErr == nil {
		runErr = hookErr
	}

	if runErr != nil {
		runCtx.LogError("agent.run.error", "agent", a.Name(), "error", runErr.Error())
		return runErr
	}

	runCtx.LogDebug("agent.run.complete", "agent", a.Name())

	return nil
}

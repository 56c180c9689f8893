package agent

import (
	"context"
	"fmt"

	"github.com/refreshapp/refresh/core"
)

// HookType identifies a lifecycle point where hooks run.
type HookType string

const (
	// HookBeforeAgent runs before an agent's model loop starts. An error
	// aborts the run.
	HookBeforeAgent HookType = "before_agent"

	// HookAfterAgent runs after an agent's model loop finishes, whether or
	// not it succeeded.
	HookAfterAgent HookType = "after_agent"

	// HookBeforeTool runs before a tool executes. An error blocks the tool
	// and becomes its result error.
	HookBeforeTool HookType = "before_tool"

	// HookAfterTool runs after a tool executes, with access to its result
	// and error.
	HookAfterTool HookType = "after_tool"
)

// HookContext carries the execution details visible to a hook. Fields are
// populated according to the hook type: tool hooks see ToolCtx, Tool, Args
// and (after execution) Result and Err; agent hooks see RunCtx and, after the
// run, Err.
type HookContext struct {
	Type      HookType
	AgentName string
	RunCtx    *core.RunContext
	ToolCtx   *core.ToolContext
	Tool      string
	Args      string
	Result    any
	Err       error
}

// Hook is an execution lifecycle observer. Execute runs synchronously on the
// invocation path, so implementations should be fast and must not panic.
type Hook interface {
	// Type returns the lifecycle point this hook handles.
	Type() HookType
	// Execute performs the hook logic. For before-hooks a returned error
	// aborts the guarded operation.
	Execute(ctx context.Context, hookCtx *HookContext) error
}

// FunctionHook wraps a plain function as a Hook.
type FunctionHook struct {
	hookType HookType
	fn       func(ctx context.Context, hookCtx *HookContext) error
}

// NewFunctionHook creates a function-based hook for the given lifecycle point.
func NewFunctionHook(hookType HookType, fn func(ctx context.Context, hookCtx *HookContext) error) *FunctionHook {
	return &FunctionHook{hookType: hookType, fn: fn}
}

// Type returns the lifecycle point this hook handles.
func (h *FunctionHook) Type() HookType { return h.hookType }

// Execute calls the wrapped function.
func (h *FunctionHook) Execute(ctx context.Context, hookCtx *HookContext) error {
	return h.fn(ctx, hookCtx)
}

// HookSet is an ordered registry of hooks keyed by lifecycle point. Register
// hooks during agent construction; execution order follows registration
// order. HookSet is not safe for concurrent registration, but running hooks
// concurrently after setup is fine.
type HookSet struct {
	hooks map[HookType][]Hook
}

// NewHookSet returns an empty hook registry.
func NewHookSet() *HookSet {
	return &HookSet{hooks: make(map[HookType][]Hook)}
}

// Register adds a hook at its declared lifecycle point.
func (s *HookSet) Register(h Hook) {
	s.hooks[h.Type()] = append(s.hooks[h.Type()], h)
}

// RegisterFunc is shorthand for Register(NewFunctionHook(t, fn)).
func (s *HookSet) RegisterFunc(t HookType, fn func(ctx context.Context, hookCtx *HookContext) error) {
	s.Register(NewFunctionHook(t, fn))
}

// Run executes every hook registered for the given type in order. The first
// error stops the chain.
func (s *HookSet) Run(ctx context.Context, hookCtx *HookContext) error {
	if s == nil {
		return nil
	}
	for _, h := range s.hooks[hookCtx.Type] {
		if err := h.Execute(ctx, hookCtx); err != nil {
			return fmt.Errorf("%s hook failed: %w", hookCtx.Type, err)
		}
	}
	return nil
}

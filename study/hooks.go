package study

import (
	"context"

	"github.com/refreshapp/refresh/agent"
	"github.com/refreshapp/refresh/logging"
)

// NewLoggingHooks returns the hook set shared by every agent in the graph:
// it logs agent turn boundaries and each tool call with its result status,
// keyed by session so operators can trace a conversation end to end.
func NewLoggingHooks(logger logging.Logger) *agent.HookSet {
	hooks := agent.NewHookSet()

	hooks.RegisterFunc(agent.HookBeforeAgent, func(_ context.Context, hc *agent.HookContext) error {
		logger.Info("study.agent.start",
			"agent", hc.AgentName,
			"invocation_id", hc.RunCtx.InvocationID,
			"session_id", hc.RunCtx.Key.SessionID,
		)
		return nil
	})

	hooks.RegisterFunc(agent.HookAfterAgent, func(_ context.Context, hc *agent.HookContext) error {
		if hc.Err != nil {
			logger.Error("study.agent.failed",
				"agent", hc.AgentName,
				"invocation_id", hc.RunCtx.InvocationID,
				"error", hc.Err.Error(),
			)
			return nil
		}
		logger.Info("study.agent.done",
			"agent", hc.AgentName,
			"invocation_id", hc.RunCtx.InvocationID,
		)
		return nil
	})

	hooks.RegisterFunc(agent.HookBeforeTool, func(_ context.Context, hc *agent.HookContext) error {
		logger.Info("study.tool.call",
			"agent", hc.AgentName,
			"tool", hc.Tool,
			"args", hc.Args,
			"session_id", hc.ToolCtx.SessionID(),
		)
		return nil
	})

	hooks.RegisterFunc(agent.HookAfterTool, func(_ context.Context, hc *agent.HookContext) error {
		status := "success"
		if hc.Err != nil {
			status = "error"
		} else if m, ok := hc.Result.(map[string]any); ok {
			if s, ok := m["status"].(string); ok {
				status = s
			}
		}
		logger.Info("study.tool.result",
			"agent", hc.AgentName,
			"tool", hc.Tool,
			"status", status,
		)
		return nil
	})

	return hooks
}

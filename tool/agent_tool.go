package tool

import (
	"fmt"

	"github.com/refreshapp/refresh/core"
)

// AgentTool exposes a whole agent as a callable tool. The calling agent sees
// a single function taking a request string; under the hood the wrapped agent
// runs a full nested turn against the same session and the tool result is its
// final response text.
//
// Unlike transfer_to_agent, control returns to the caller: the wrapped agent
// never becomes the active conversation partner.
type AgentTool struct {
	agent       core.Agent
	description string
}

// NewAgentTool wraps the given agent. The tool name is the agent name and the
// description defaults to the agent's own description.
func NewAgentTool(agent core.Agent) *AgentTool {
	return &AgentTool{agent: agent, description: agent.Description()}
}

func (t *AgentTool) Name() string { return t.agent.Name() }

func (t *AgentTool) Description() string { return t.description }

func (t *AgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{
				"type":        "string",
				"description": "The request to forward to the agent",
			},
		},
		"required": []string{"request"},
	}
}

// Call runs the wrapped agent in a child context with its own event pump.
// Events produced by the nested turn are folded into the session through the
// same store append path the runner uses, so state deltas written by the
// nested agent are persisted before the caller resumes.
func (t *AgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	request, _ := args["request"].(string)
	if request == "" {
		return nil, NewToolError(t.Name(), "missing required field 'request'", "VALIDATION_ERROR")
	}

	parent := tc.InternalRunContext()

	childEmit := make(chan core.Event)
	childResume := make(chan struct{})
	child := parent.NewChildContext(childEmit, childResume, parent.Branch+"."+t.agent.Name())
	child.UserContent = core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: request}}}

	runErr := make(chan error, 1)
	go func() {
		defer close(childEmit)
		runErr <- t.agent.Run(child)
	}()

	var finalText string
	for ev := range childEmit {
		// Partial events stream through without persistence and without a
		// resume; the producer only waits after non-partial emissions.
		if ev.IsPartial() {
			continue
		}

		if err := parent.SessionStore.AppendEvent(parent.Context, parent.Key, ev); err != nil {
			return nil, fmt.Errorf("append nested event: %w", err)
		}
		if err := child.RefreshSession(); err != nil {
			return nil, err
		}
		if ev.IsFinalResponse() && ev.Text() != "" {
			finalText = ev.Text()
		}

		select {
		case childResume <- struct{}{}:
		case <-parent.Context.Done():
			return nil, parent.Context.Err()
		}
	}

	if err := <-runErr; err != nil {
		return nil, err
	}

	// Keep the caller's snapshot in sync with the nested appends.
	if err := parent.RefreshSession(); err != nil {
		return nil, err
	}

	return map[string]any{"response": finalText}, nil
}

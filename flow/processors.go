package flow

import (
	"fmt"
	"sort"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/internal/util"
	"github.com/refreshapp/refresh/model"
)

// InstructionsProcessor resolves the agent's system instructions and renders
// them against the current session state, so instruction templates can
// reference keys like {{.login_status}}.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets the rendered system instructions on the request.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instructions: %w", err)
	}

	runCtx.LogDebug("flow.instructions.resolved", "agent", agent.GetName(), "length", len(instructions))

	if runCtx.Session != nil {
		rendered, err := util.RenderTemplate(instructions, runCtx.Session.StateSnapshot())
		if err != nil {
			return fmt.Errorf("failed to render instructions template: %w", err)
		}
		req.Instructions = rendered
		return nil
	}

	req.Instructions = instructions

	return nil
}

// ContentsProcessor assembles the model conversation from session history.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest builds request contents from the session's conversation
// history, trimmed to the agent's history window. When no session is
// available the current user content is used directly.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	var contents []core.Content

	if runCtx.Session != nil {
		events := runCtx.Session.GetConversationHistory()
		if window := agent.MaxHistoryMessages(); window > 0 && len(events) > window {
			events = events[len(events)-window:]
		}

		for _, ev := range events {
			if ev.Content != nil && len(ev.Content.Parts) > 0 {
				contents = append(contents, *ev.Content)
			}
		}
	}

	if len(contents) == 0 && len(runCtx.UserContent.Parts) > 0 {
		contents = append(contents, runCtx.UserContent)
	}

	req.Contents = contents

	return nil
}

// ToolDefinitionsProcessor exposes the agent's registered tools to the model.
type ToolDefinitionsProcessor struct{}

// NewToolDefinitionsProcessor creates a new tool definitions processor.
func NewToolDefinitionsProcessor() *ToolDefinitionsProcessor { return &ToolDefinitionsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolDefinitionsProcessor) Name() string { return "tool_definitions" }

// ProcessRequest appends a function definition for every registered tool.
// The transfer tool is skipped: TransferToolInjector advertises it with the
// reachable sub-agents enumerated, which this generic definition lacks.
func (p *ToolDefinitionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	tools := agent.GetTools()

	names := make([]string, 0, len(tools))
	for name := range tools {
		if name == transferToolName {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := tools[name]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	req.Tools = append(req.Tools, defs...)

	return nil
}

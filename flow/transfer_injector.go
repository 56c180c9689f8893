package flow

import (
	"fmt"
	"strings"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/model"
)

const transferToolName = "transfer_to_agent"

// TransferToolInjector adds the transfer_to_agent tool definition to the
// request when the agent has transfer enabled and at least one sub-agent.
// The definition's description enumerates the reachable sub-agents so the
// model can pick a valid target.
type TransferToolInjector struct{}

// NewTransferToolInjector creates a new transfer tool injector.
func NewTransferToolInjector() *TransferToolInjector { return &TransferToolInjector{} }

// Name returns the processor's identifier.
func (p *TransferToolInjector) Name() string { return "transfer_tool_injector" }

// ProcessRequest injects the transfer tool definition. It is idempotent:
// repeated calls never add a duplicate definition.
func (p *TransferToolInjector) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	if !agent.IsTransferEnabled() {
		return nil
	}

	subAgents := agent.GetSubAgents()
	if len(subAgents) == 0 {
		return nil
	}

	for _, td := range req.Tools {
		if td.Function.Name == transferToolName {
			return nil
		}
	}

	var sb strings.Builder
	sb.WriteString("Transfer the conversation to another agent. Available agents:\n")
	names := make([]string, 0, len(subAgents))
	for _, sub := range subAgents {
		names = append(names, sub.Name())
		fmt.Fprintf(&sb, "- %s: %s\n", sub.Name(), sub.Description())
	}

	req.Tools = append(req.Tools, model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        transferToolName,
			Description: sb.String(),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"agent": map[string]any{
						"type":        "string",
						"description": "Name of the agent to transfer to.",
						"enum":        names,
					},
				},
				"required": []string{"agent"},
			},
		},
	})

	runCtx.LogDebug("flow.transfer_tool.injected", "agent", agent.GetName(), "targets", len(names))

	return nil
}

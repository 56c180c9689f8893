package flow

import (
	"context"
	"testing"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/model"
	"github.com/refreshapp/refresh/tool"
)

func TestInstructionsProcessor_RendersSessionState(t *testing.T) {
	agent := &testFlowAgent{
		name:         "router",
		instructions: "Login status is {{.login_status}}.",
	}
	fx := newFlowFixture(t, "hi")

	req := &model.Request{}
	if err := NewInstructionsProcessor().ProcessRequest(fx.runCtx, req, agent); err != nil {
		t.Fatalf("process: %v", err)
	}
	if req.Instructions != "Login status is False." {
		t.Fatalf("template not rendered: %q", req.Instructions)
	}
}

func TestInstructionsProcessor_NoSession(t *testing.T) {
	agent := &testFlowAgent{name: "router", instructions: "plain"}
	fx := newFlowFixture(t, "hi")
	fx.runCtx.Session = nil

	req := &model.Request{}
	if err := NewInstructionsProcessor().ProcessRequest(fx.runCtx, req, agent); err != nil {
		t.Fatalf("process: %v", err)
	}
	if req.Instructions != "plain" {
		t.Fatalf("unexpected instructions: %q", req.Instructions)
	}
}

func TestContentsProcessor_HistoryWindow(t *testing.T) {
	agent := &testFlowAgent{name: "router", maxHistory: 2}
	fx := newFlowFixture(t, "first")

	ctx := context.Background()
	for _, msg := range []string{"second", "third"} {
		if err := fx.store.AppendEvent(ctx, flowTestKey, core.NewUserMessageEvent("inv-1", msg)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := fx.runCtx.RefreshSession(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	req := &model.Request{}
	if err := NewContentsProcessor().ProcessRequest(fx.runCtx, req, agent); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(req.Contents) != 2 {
		t.Fatalf("expected window of 2, got %d contents", len(req.Contents))
	}
	lastText := req.Contents[len(req.Contents)-1].Parts[0].(core.TextPart).Text
	if lastText != "third" {
		t.Fatalf("expected newest message last, got %q", lastText)
	}
}

func TestContentsProcessor_FallsBackToUserContent(t *testing.T) {
	agent := &testFlowAgent{name: "router"}
	fx := newFlowFixture(t, "hello")
	fx.runCtx.Session = nil

	req := &model.Request{}
	if err := NewContentsProcessor().ProcessRequest(fx.runCtx, req, agent); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(req.Contents) != 1 || req.Contents[0].Role != "user" {
		t.Fatalf("expected user content fallback, got %+v", req.Contents)
	}
}

func TestToolDefinitionsProcessor_SortedDefinitions(t *testing.T) {
	mkTool := func(name string) tool.Tool {
		return tool.NewFunctionTool(name, "desc",
			map[string]any{"type": "object", "properties": map[string]any{}},
			func(*core.ToolContext, map[string]any) (any, error) { return nil, nil })
	}
	agent := &testFlowAgent{
		name: "router",
		tools: map[string]tool.Tool{
			"zeta":              mkTool("zeta"),
			"alpha":             mkTool("alpha"),
			"mid":               mkTool("mid"),
			"transfer_to_agent": tool.NewTransferToAgentTool(),
		},
	}
	fx := newFlowFixture(t, "hi")

	req := &model.Request{}
	if err := NewToolDefinitionsProcessor().ProcessRequest(fx.runCtx, req, agent); err != nil {
		t.Fatalf("process: %v", err)
	}
	// transfer_to_agent is left to the injector, which enumerates targets.
	if len(req.Tools) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(req.Tools))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if req.Tools[i].Function.Name != want {
			t.Fatalf("definitions not sorted: %+v", req.Tools)
		}
	}
}

func TestProcessorNames(t *testing.T) {
	if NewInstructionsProcessor().Name() != "instructions" {
		t.Errorf("unexpected instructions processor name")
	}
	if NewContentsProcessor().Name() != "contents" {
		t.Errorf("unexpected contents processor name")
	}
	if NewToolDefinitionsProcessor().Name() != "tool_definitions" {
		t.Errorf("unexpected tool definitions processor name")
	}
}

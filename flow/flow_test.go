package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/logging"
	"github.com/refreshapp/refresh/model"
	"github.com/refreshapp/refresh/session"
	"github.com/refreshapp/refresh/tool"
)

var flowTestKey = core.SessionKey{AppName: "RefreshApp", UserID: "u-flow", SessionID: "s-flow"}

// stubAgent satisfies core.Agent for sub-agent listings in transfer tests.
type stubAgent struct{ name, description string }

func (a *stubAgent) Name() string                     { return a.name }
func (a *stubAgent) Description() string              { return a.description }
func (a *stubAgent) Run(*core.RunContext) error       { return nil }
func (a *stubAgent) SetSubAgents(...core.Agent) error { return nil }
func (a *stubAgent) SubAgents() []core.Agent          { return nil }
func (a *stubAgent) Parent() core.Agent               { return nil }
func (a *stubAgent) FindAgent(string) core.Agent      { return nil }

// testFlowAgent implements FlowAgent over a model and a tool registry.
type testFlowAgent struct {
	name         string
	llm          model.Model
	instructions string
	tools        map[string]tool.Tool
	subAgents    []core.Agent
	streaming    bool
	transfer     bool
	outputKey    string
	maxHistory   int
	transfers    []string
}

func (a *testFlowAgent) GetName() string           { return a.name }
func (a *testFlowAgent) GetModel() model.Model     { return a.llm }
func (a *testFlowAgent) GetTools() map[string]tool.Tool {
	if a.tools == nil {
		return map[string]tool.Tool{}
	}
	return a.tools
}
func (a *testFlowAgent) GetSubAgents() []core.Agent { return a.subAgents }
func (a *testFlowAgent) IsStreamingEnabled() bool   { return a.streaming }
func (a *testFlowAgent) IsTransferEnabled() bool    { return a.transfer }
func (a *testFlowAgent) GetOutputKey() string       { return a.outputKey }
func (a *testFlowAgent) MaxHistoryMessages() int {
	if a.maxHistory == 0 {
		return 50
	}
	return a.maxHistory
}

func (a *testFlowAgent) ResolveInstructions(*core.RunContext) (string, error) {
	return a.instructions, nil
}

func (a *testFlowAgent) ExecuteTool(toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := a.tools[toolName]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", toolName)
	}
	argMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}
	return impl.Call(toolCtx, argMap)
}

func (a *testFlowAgent) TransferToAgent(_ *core.RunContext, agentName string) error {
	a.transfers = append(a.transfers, agentName)
	return nil
}

// flowFixture wires a run context backed by an in-memory store.
type flowFixture struct {
	runCtx *core.RunContext
	emit   chan core.Event
	resume chan struct{}
	store  core.SessionStore
}

func newFlowFixture(t *testing.T, userText string) *flowFixture {
	t.Helper()
	ctx := context.Background()
	store := session.NewInMemoryStore()
	if _, err := store.Create(ctx, flowTestKey, map[string]any{"login_status": "False"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := store.AppendEvent(ctx, flowTestKey, core.NewUserMessageEvent("inv-1", userText)); err != nil {
		t.Fatalf("append user event: %v", err)
	}
	sess, err := store.Get(ctx, flowTestKey)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}

	emit := make(chan core.Event, 32)
	resume := make(chan struct{}, 1)
	userContent := core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: userText}}}
	rc := core.NewRunContext(
		ctx, flowTestKey, "inv-1",
		core.AgentInfo{Name: "tester", Type: "test"},
		userContent, 10, emit, resume, sess, store, logging.NoOpLogger{},
	)

	return &flowFixture{runCtx: rc, emit: emit, resume: resume, store: store}
}

// runFlow drives f to completion while acting as the runner: every
// non-partial event is persisted and acknowledged with a resume signal.
func (fx *flowFixture) runFlow(t *testing.T, f Flow) ([]core.Event, error) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- f.Run(fx.runCtx) }()

	var events []core.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-fx.emit:
			events = append(events, ev)
			if !ev.IsPartial() {
				if err := fx.store.AppendEvent(context.Background(), flowTestKey, ev); err != nil {
					t.Fatalf("append event: %v", err)
				}
				fx.resume <- struct{}{}
			}
		case err := <-done:
			for {
				select {
				case ev := <-fx.emit:
					events = append(events, ev)
				default:
					return events, err
				}
			}
		case <-timeout:
			t.Fatalf("flow did not finish; %d events so far", len(events))
		}
	}
}

func lastNonPartial(events []core.Event) *core.Event {
	for i := len(events) - 1; i >= 0; i-- {
		if !events[i].IsPartial() {
			return &events[i]
		}
	}
	return nil
}

func TestBaseFlow_FinalTextResponse(t *testing.T) {
	llm := model.NewMockModel("flow-test", "mock")
	llm.AddResponse("hello", "hi there")
	agent := &testFlowAgent{name: "greeter", llm: llm, instructions: "You greet."}

	fx := newFlowFixture(t, "hello")
	events, err := fx.runFlow(t, NewSingleAgentFlow(agent))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	final := lastNonPartial(events)
	if final == nil {
		t.Fatalf("no final event emitted")
	}
	if !final.IsFinalResponse() {
		t.Fatalf("expected final response, got %+v", final)
	}
	if got := final.Text(); got != "hi there" {
		t.Fatalf("unexpected final text %q", got)
	}
	if final.TurnComplete == nil || !*final.TurnComplete {
		t.Fatalf("final event not marked turn complete")
	}
}

func TestBaseFlow_ToolCallLoop(t *testing.T) {
	called := false
	echo := tool.NewFunctionTool("echo", "echoes input", map[string]any{
		"type":       "object",
		"properties": map[string]any{"message": map[string]any{"type": "string"}},
		"required":   []string{"message"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		called = true
		return map[string]any{"echoed": args["message"]}, nil
	})

	llm := model.NewMockModel("flow-test", "mock")
	llm.EnqueueToolCall("echo", `{"message":"ping"}`)
	llm.EnqueueResponse(model.Response{
		Content:      core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: "done"}}},
		FinishReason: "stop",
	})

	agent := &testFlowAgent{
		name:  "worker",
		llm:   llm,
		tools: map[string]tool.Tool{"echo": echo},
	}

	fx := newFlowFixture(t, "use the tool")
	events, err := fx.runFlow(t, NewSingleAgentFlow(agent))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !called {
		t.Fatalf("tool was not executed")
	}

	var sawCall, sawResponse bool
	for _, ev := range events {
		if len(ev.GetFunctionCalls()) > 0 {
			sawCall = true
		}
		if len(ev.GetFunctionResponses()) > 0 {
			sawResponse = true
		}
	}
	if !sawCall || !sawResponse {
		t.Fatalf("expected function call and response events (call=%v response=%v)", sawCall, sawResponse)
	}

	final := lastNonPartial(events)
	if final == nil || final.Text() != "done" {
		t.Fatalf("expected final text 'done'")
	}

	// The second model turn must include the tool response in its contents.
	reqs := llm.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(reqs))
	}
	foundToolContent := false
	for _, c := range reqs[1].Contents {
		if c.Role == "tool" {
			foundToolContent = true
		}
	}
	if !foundToolContent {
		t.Fatalf("second request missing tool response content")
	}
}

func TestBaseFlow_StreamingPartials(t *testing.T) {
	llm := model.NewMockModel("flow-test", "mock")
	llm.AddResponse("hi", "ok")
	agent := &testFlowAgent{name: "streamer", llm: llm, streaming: true}

	fx := newFlowFixture(t, "hi")
	events, err := fx.runFlow(t, NewSingleAgentFlow(agent))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	partials := 0
	for _, ev := range events {
		if ev.IsPartial() {
			partials++
		}
	}
	if partials != 2 {
		t.Fatalf("expected 2 partial events for 'ok', got %d", partials)
	}
	final := lastNonPartial(events)
	if final == nil || final.Text() != "ok" {
		t.Fatalf("missing aggregated final event")
	}
}

func TestBaseFlow_OutputKeyCapturesFinalText(t *testing.T) {
	llm := model.NewMockModel("flow-test", "mock")
	llm.AddResponse("hello", "captured answer")
	agent := &testFlowAgent{name: "capturer", llm: llm, outputKey: "last_answer"}

	fx := newFlowFixture(t, "hello")
	events, err := fx.runFlow(t, NewSingleAgentFlow(agent))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	final := lastNonPartial(events)
	if final == nil {
		t.Fatalf("no final event")
	}
	if got := final.Actions.StateDelta["last_answer"]; got != "captured answer" {
		t.Fatalf("output key not captured, delta: %+v", final.Actions.StateDelta)
	}

	sess, err := fx.store.Get(context.Background(), flowTestKey)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got := sess.GetStateString("last_answer"); got != "captured answer" {
		t.Fatalf("state not folded, got %q", got)
	}
}

func TestBaseFlow_ModelErrorSurfacesAsEvent(t *testing.T) {
	llm := model.NewMockModel("flow-test", "mock")
	agent := &testFlowAgent{name: "broken", llm: llm}

	fx := newFlowFixture(t, "anything")
	// Empty contents triggers the mock's error path.
	fx.runCtx.Session = core.NewSession(flowTestKey, nil)
	fx.runCtx.SessionStore = nil
	fx.runCtx.UserContent = core.Content{}

	events, err := fx.runFlow(t, NewSingleAgentFlow(agent))
	if err == nil {
		t.Fatalf("expected error from flow")
	}

	final := lastNonPartial(events)
	if final == nil || final.ErrorMessage == nil {
		t.Fatalf("expected error event, got %+v", final)
	}
}

func TestBaseFlow_ModelCallLimit(t *testing.T) {
	llm := model.NewMockModel("flow-test", "mock")
	llm.AddResponse("hi", "ok")
	agent := &testFlowAgent{name: "limited", llm: llm}

	fx := newFlowFixture(t, "hi")
	limited := core.NewModelLimiter(2)
	_ = limited.Increment()
	_ = limited.Increment()
	fx.runCtx.Limiter = limited

	_, err := fx.runFlow(t, NewSingleAgentFlow(agent))
	if err == nil {
		t.Fatalf("expected limiter error")
	}
}

func TestBaseFlow_TransferRequestedByTool(t *testing.T) {
	transferTool := tool.NewFunctionTool("handoff", "hands off",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			tc.TransferToAgent("activity")
			return "transferring", nil
		})

	llm := model.NewMockModel("flow-test", "mock")
	llm.EnqueueToolCall("handoff", `{}`)

	agent := &testFlowAgent{
		name:      "router",
		llm:       llm,
		tools:     map[string]tool.Tool{"handoff": transferTool},
		transfer:  true,
		subAgents: []core.Agent{&stubAgent{name: "activity", description: "runs activities"}},
	}

	fx := newFlowFixture(t, "start my activity")
	_, err := fx.runFlow(t, NewMultiAgentFlow(agent))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(agent.transfers) != 1 || agent.transfers[0] != "activity" {
		t.Fatalf("expected transfer to activity, got %v", agent.transfers)
	}
}

func TestSelector_PicksFlowByCapabilities(t *testing.T) {
	isolated := &testFlowAgent{name: "solo"}
	if _, ok := NewSelector().SelectFlow(isolated).(*SingleAgentFlow); !ok {
		t.Fatalf("expected SingleAgentFlow for isolated agent")
	}

	parent := &testFlowAgent{name: "root", transfer: true, subAgents: []core.Agent{&stubAgent{name: "child"}}}
	if _, ok := NewSelector().SelectFlow(parent).(*MultiAgentFlow); !ok {
		t.Fatalf("expected MultiAgentFlow for delegating agent")
	}
}

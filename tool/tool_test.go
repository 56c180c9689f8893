package tool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/internal/util"
	"github.com/refreshapp/refresh/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")

	req, _ := schema["required"].([]string)
	if req == nil { // reflection may produce []any
		ifaceReq, _ := schema["required"].([]any)
		for _, v := range ifaceReq {
			req = append(req, v.(string))
		}
	}
	assert.ElementsMatch(t, []string{"a"}, req)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror JSON decoded schema shape
		"required": []any{"x"},
	}

	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "x", vErr.Field)

	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	assert.Error(t, err)
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Message, "expected type integer")
}

// -------------------- Test fixtures --------------------

type memStore struct {
	mu       sync.Mutex
	sessions map[core.SessionKey]*core.Session
}

func newMemStore() *memStore {
	return &memStore{sessions: map[core.SessionKey]*core.Session{}}
}

func (s *memStore) Create(_ context.Context, key core.SessionKey, initial map[string]any) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; ok {
		return nil, core.ErrSessionExists
	}
	sess := core.NewSession(key, initial)
	s.sessions[key] = sess
	return sess, nil
}

func (s *memStore) Get(_ context.Context, key core.SessionKey) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *memStore) CreateOrLoad(ctx context.Context, key core.SessionKey, initial map[string]any) (*core.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess.Clone(), false, nil
	}
	sess := core.NewSession(key, initial)
	s.sessions[key] = sess
	return sess, true, nil
}

func (s *memStore) AppendEvent(_ context.Context, key core.SessionKey, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return core.ErrSessionNotFound
	}
	sess.ApplyEvent(ev)
	return nil
}

func testRunContext(t *testing.T) *core.RunContext {
	t.Helper()
	store := newMemStore()
	key := core.SessionKey{AppName: "RefreshApp", UserID: "u-1", SessionID: "sess-1"}
	sess, err := store.Create(context.Background(), key, nil)
	require.NoError(t, err)

	emit := make(chan core.Event, 10)
	resume := make(chan struct{}, 1)

	return core.NewRunContext(
		context.Background(), key, "inv-1",
		core.AgentInfo{Name: "agent", Type: "test"},
		core.Content{}, 0, emit, resume, sess, store, logging.NoOpLogger{},
	)
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return a + b, nil
	})

	tc := core.NewToolContext(testRunContext(t), "fc1")
	result, err := sumTool.Call(tc, map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})
	tc := core.NewToolContext(testRunContext(t), "fc2")
	_, err := tTool.Call(tc, map[string]any{})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	tc := core.NewToolContext(testRunContext(t), "fc3")
	_, err := execTool.Call(tc, map[string]any{})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
}

func TestFunctionTool_PreservesCustomToolError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	custom := NewToolError("custom", "denied", "PERMISSION_DENIED")
	failTool := NewFunctionTool("custom", "Custom failure", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, custom
	})
	tc := core.NewToolContext(testRunContext(t), "fc4")
	_, err := failTool.Call(tc, map[string]any{})
	assert.Same(t, custom, err)
}

// -------------------- TransferToAgent Tests --------------------

func TestTransferToAgentTool(t *testing.T) {
	tr := NewTransferToAgentTool()
	tc := core.NewToolContext(testRunContext(t), "fc-transfer")

	res, err := tr.Call(tc, map[string]any{"agent": "activity_agent"})
	require.NoError(t, err)
	m := res.(map[string]any)
	assert.Equal(t, "activity_agent", m["agent"])
	require.NotNil(t, tc.Actions().TransferToAgent)
	assert.Equal(t, "activity_agent", *tc.Actions().TransferToAgent)

	_, err = tr.Call(tc, map[string]any{})
	assert.Error(t, err)
}

// -------------------- AgentTool Tests --------------------

type echoAgent struct{ name string }

func (a *echoAgent) Name() string                      { return a.name }
func (a *echoAgent) Description() string               { return "Echoes the request" }
func (a *echoAgent) SetSubAgents(...core.Agent) error  { return nil }
func (a *echoAgent) SubAgents() []core.Agent           { return nil }
func (a *echoAgent) Parent() core.Agent                { return nil }
func (a *echoAgent) FindAgent(name string) core.Agent  { return nil }

func (a *echoAgent) Run(rc *core.RunContext) error {
	in := ""
	for _, p := range rc.UserContent.Parts {
		if tp, ok := p.(core.TextPart); ok {
			in += tp.Text
		}
	}
	rc.SetState("echoed", in)
	if err := rc.EmitEvent(core.NewMessageEvent(a.name, "echo: "+in)); err != nil {
		return err
	}
	return rc.WaitForResume()
}

func TestAgentTool_RunsNestedTurn(t *testing.T) {
	at := NewAgentTool(&echoAgent{name: "question_agent"})
	rc := testRunContext(t)
	tc := core.NewToolContext(rc, "fc-agent")

	res, err := at.Call(tc, map[string]any{"request": "hello"})
	require.NoError(t, err)
	m := res.(map[string]any)
	assert.Equal(t, "echo: hello", m["response"])

	// Nested state delta must be persisted.
	sess, err := rc.SessionStore.Get(context.Background(), rc.Key)
	require.NoError(t, err)
	assert.Equal(t, "hello", sess.GetStateString("echoed"))
}

// streamingEchoAgent emits partial chunks before the final response and only
// waits for a resume after the final, the way a streaming model flow does.
type streamingEchoAgent struct{ echoAgent }

func (a *streamingEchoAgent) Run(rc *core.RunContext) error {
	partial := true
	for _, chunk := range []string{"echo:", "echo: str"} {
		ev := core.NewMessageEvent(a.name, chunk)
		ev.Partial = &partial
		if err := rc.EmitEvent(ev); err != nil {
			return err
		}
	}
	if err := rc.EmitEvent(core.NewMessageEvent(a.name, "echo: stream")); err != nil {
		return err
	}
	return rc.WaitForResume()
}

func TestAgentTool_StreamingChildDoesNotBlock(t *testing.T) {
	at := NewAgentTool(&streamingEchoAgent{echoAgent{name: "question_agent"}})
	rc := testRunContext(t)
	tc := core.NewToolContext(rc, "fc-stream")

	type outcome struct {
		res any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := at.Call(tc, map[string]any{"request": "stream"})
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		require.NoError(t, out.err)
		m := out.res.(map[string]any)
		assert.Equal(t, "echo: stream", m["response"])
	case <-time.After(2 * time.Second):
		t.Fatal("nested streaming turn did not complete")
	}

	// Partial chunks never reach the session history.
	sess, err := rc.SessionStore.Get(context.Background(), rc.Key)
	require.NoError(t, err)
	for _, ev := range sess.Events {
		assert.False(t, ev.IsPartial())
	}
}

func TestAgentTool_MissingRequest(t *testing.T) {
	at := NewAgentTool(&echoAgent{name: "question_agent"})
	tc := core.NewToolContext(testRunContext(t), "fc-agent2")
	_, err := at.Call(tc, map[string]any{})
	assert.Error(t, err)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}

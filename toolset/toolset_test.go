package toolset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/internal/testutil"
	"github.com/refreshapp/refresh/logging"
)

type fakeRPC struct {
	tools    []mcp.Tool
	listErr  error
	callErr  error
	result   *mcp.CallToolResult
	lastCall mcp.CallToolRequest
}

func (f *fakeRPC) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeRPC) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.lastCall = req
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.result, nil
}

func testToolContext(t *testing.T) *core.ToolContext {
	t.Helper()
	key := core.SessionKey{AppName: "RefreshApp", UserID: "u-ts", SessionID: "s-ts"}
	store := testutil.SeededStore(t, key, nil)
	return testutil.ToolContext(t, store, key, "login")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}}}
}

func TestToolset_LoadProxiesRemoteTools(t *testing.T) {
	rpc := &fakeRPC{tools: []mcp.Tool{
		{
			Name:        "get-student",
			Description: "Look up a student by username.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{"username": map[string]any{"type": "string"}},
				Required:   []string{"username"},
			},
		},
		{Name: "add-student", Description: "Create a student record."},
	}}

	ts := New("http://toolbox.local/mcp")
	ts.rpc = rpc

	tools, err := ts.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)

	assert.Equal(t, "get-student", tools[0].Name())
	assert.Equal(t, "Look up a student by username.", tools[0].Description())
	params := tools[0].Parameters()
	assert.Equal(t, "object", params["type"])
	assert.Contains(t, params["properties"], "username")
	assert.Equal(t, []string{"username"}, params["required"])

	// tools without a declared schema still present a valid object schema
	assert.Equal(t, map[string]any{"type": "object"}, tools[1].Parameters())
}

func TestToolset_LoadRequiresConnection(t *testing.T) {
	ts := New("http://toolbox.local/mcp")
	_, err := ts.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestRemoteTool_CallParsesJSONResult(t *testing.T) {
	rpc := &fakeRPC{result: textResult(`{"student_id": "42", "username": "ada"}`)}
	rt := &remoteTool{name: "get-student", rpc: rpc, callTimeout: time.Second, logger: logging.NoOpLogger{}}

	result, err := rt.Call(testToolContext(t), map[string]any{"username": "ada"})
	require.NoError(t, err)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "success", m["status"])
	assert.Equal(t, "42", m["student_id"])
	assert.Equal(t, mcp.CallToolRequest{Params: mcp.CallToolParams{
		Name:      "get-student",
		Arguments: map[string]any{"username": "ada"},
	}}, rpc.lastCall)
}

func TestRemoteTool_CallHandlesNullResult(t *testing.T) {
	rpc := &fakeRPC{result: textResult("null")}
	rt := &remoteTool{name: "get-student", rpc: rpc, callTimeout: time.Second, logger: logging.NoOpLogger{}}

	result, err := rt.Call(testToolContext(t), map[string]any{"username": "nobody"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "success", "result": nil}, result)
}

func TestRemoteTool_CallWrapsPlainText(t *testing.T) {
	rpc := &fakeRPC{result: textResult("record created")}
	rt := &remoteTool{name: "add-student", rpc: rpc, callTimeout: time.Second, logger: logging.NoOpLogger{}}

	result, err := rt.Call(testToolContext(t), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "success", "message": "record created"}, result)
}

func TestRemoteTool_CallErrorNeverEscapes(t *testing.T) {
	rpc := &fakeRPC{callErr: errors.New("connection refused")}
	rt := &remoteTool{name: "get-last-session", rpc: rpc, callTimeout: time.Second, logger: logging.NoOpLogger{}}

	result, err := rt.Call(testToolContext(t), map[string]any{})
	require.NoError(t, err)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "error", m["status"])
	assert.Contains(t, m["error_message"], "connection refused")
	assert.NotEmpty(t, m["message"])
}

func TestRemoteTool_RemoteErrorFlagged(t *testing.T) {
	rpc := &fakeRPC{result: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "no such student"}},
	}}
	rt := &remoteTool{name: "get-student", rpc: rpc, callTimeout: time.Second, logger: logging.NoOpLogger{}}

	result, err := rt.Call(testToolContext(t), map[string]any{"username": "ghost"})
	require.NoError(t, err)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "error", m["status"])
	assert.Equal(t, "no such student", m["error_message"])
}

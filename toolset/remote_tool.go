package toolset

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/logging"
)

// remoteTool proxies one remote MCP tool behind the tool.Tool interface.
// Failures are mapped into {status, error_message, message} result maps so
// the model can explain them to the user instead of the turn aborting.
type remoteTool struct {
	name        string
	description string
	schema      map[string]any
	rpc         mcpClient
	callTimeout time.Duration
	logger      logging.Logger
}

func (t *remoteTool) Name() string               { return t.name }
func (t *remoteTool) Description() string        { return t.description }
func (t *remoteTool) Parameters() map[string]any { return t.schema }

func (t *remoteTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(toolCtx.Context(), t.callTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	res, err := t.rpc.CallTool(ctx, req)
	if err != nil {
		t.logger.Warn("toolset.call.failed", "tool", t.name, "error", err.Error())
		return errorResult(err.Error()), nil
	}

	text := joinTextContent(res.Content)
	if res.IsError {
		t.logger.Warn("toolset.call.remote_error", "tool", t.name, "message", text)
		return errorResult(text), nil
	}

	// Remote tools answer with JSON when they have structure; fall back to
	// wrapping plain text. Lookup tools answer null when nothing matches,
	// which unmarshals into a nil map.
	var structured map[string]any
	if err := json.Unmarshal([]byte(text), &structured); err == nil {
		if structured == nil {
			return map[string]any{"status": "success", "result": nil}, nil
		}
		if _, ok := structured["status"]; !ok {
			structured["status"] = "success"
		}
		return structured, nil
	}

	return map[string]any{"status": "success", "message": text}, nil
}

func errorResult(message string) map[string]any {
	return map[string]any{
		"status":        "error",
		"error_message": message,
		"message":       "The remote tool call failed. Please try again or ask for help.",
	}
}

func joinTextContent(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		switch c := item.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

package study

import (
	"fmt"
	"strconv"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/tool"
)

// NewGetActiveUserTool reads the locally known user identity. An empty
// username tells the login agent to ask for one before any remote lookup.
func NewGetActiveUserTool() tool.Tool {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	return tool.NewFunctionTool(
		"get_active_user",
		"Get the username and email of the active user, if known.",
		params,
		func(toolCtx *core.ToolContext, _ map[string]any) (any, error) {
			return map[string]any{
				"status":   "success",
				"username": toolCtx.GetStateString(StateUsername),
				"email":    toolCtx.GetStateString("email"),
			}, nil
		},
	)
}

// NewUpdateUsernameTool persists the username the user provided.
func NewUpdateUsernameTool() tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"username": map[string]any{
				"type":        "string",
				"description": "The username the user wants to be known as",
			},
		},
		"required": []string{"username"},
	}
	return tool.NewFunctionTool(
		"update_username",
		"Store the user's chosen username in the session.",
		params,
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			username, _ := args["username"].(string)
			if username == "" {
				return map[string]any{
					"status":        "error",
					"error_message": "username must not be empty",
					"message":       "Please provide a non-empty username.",
				}, nil
			}
			toolCtx.SetState(StateUsername, username)
			return map[string]any{
				"status":   "success",
				"username": username,
				"message":  fmt.Sprintf("Username set to %s.", username),
			}, nil
		},
	)
}

// NewUpdateLoginTool records the login outcome. login_status becomes "True"
// exactly when both identifiers are real, i.e. neither is the zero value "0".
func NewUpdateLoginTool() tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"student_id": map[string]any{
				"type":        "string",
				"description": "The student's database id, or \"0\" if none",
			},
			"session_guid": map[string]any{
				"type":        "string",
				"description": "The study session guid, or \"0\" if none",
			},
		},
		"required": []string{"student_id", "session_guid"},
	}
	return tool.NewFunctionTool(
		"update_login",
		"Record the resolved student id and session guid, setting the login status.",
		params,
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			studentID := scalarString(args["student_id"])
			guid := scalarString(args["session_guid"])

			status := "False"
			if studentID != "0" && guid != "0" {
				status = "True"
			}

			toolCtx.SetState(StateUserID, studentID)
			toolCtx.SetState(StateSessionID, guid)
			toolCtx.SetState(StateLoginStatus, status)

			return map[string]any{
				"status":       "success",
				"login_status": status,
				"user_id":      studentID,
				"session_id":   guid,
				"message":      fmt.Sprintf("Login status is now %s.", status),
			}, nil
		},
	)
}

// scalarString normalizes model-supplied ids: JSON numbers arrive as
// float64, schemas ask for strings, tolerate both.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

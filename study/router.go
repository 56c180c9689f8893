package study

import (
	"fmt"

	"github.com/refreshapp/refresh/agent"
	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/logging"
	"github.com/refreshapp/refresh/tool"
)

const (
	checkLoginToolName = "check_login_status"

	loginStateLoggedIn  = "logged_in"
	loginStateLoggedOut = "logged_out"
)

// NewCheckLoginStatusTool builds the router's state-read tool. It classifies
// the session as logged_in or logged_out from the login_status key and never
// mutates state.
func NewCheckLoginStatusTool() tool.Tool {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	return tool.NewFunctionTool(
		checkLoginToolName,
		"Check whether the current user is logged in.",
		params,
		func(toolCtx *core.ToolContext, _ map[string]any) (any, error) {
			state := loginStateLoggedOut
			if toolCtx.GetStateString(StateLoginStatus) == "True" {
				state = loginStateLoggedIn
			}
			return map[string]any{"status": "success", "login_state": state}, nil
		},
	)
}

// RouterOptions configures a Router.
type RouterOptions struct {
	Hooks  *agent.HookSet
	Logger logging.Logger
}

// Router is the root agent. It is deliberately not model-backed: per turn it
// calls check_login_status and delegates the whole remainder of the turn to
// exactly one sub-agent, chosen only by the reported login state. Message
// text never influences the route, and the router never answers the user
// directly.
type Router struct {
	agent.BaseAgent
	loginName    string
	activityName string
	checker      tool.Tool
	hooks        *agent.HookSet
	logger       logging.Logger
}

var _ core.Agent = (*Router)(nil)

// NewRouter wires the router above its two delegates.
func NewRouter(login, activity core.Agent, optFns ...func(o *RouterOptions)) (*Router, error) {
	opts := RouterOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Router{
		BaseAgent:    agent.NewBaseAgent("router"),
		loginName:    login.Name(),
		activityName: activity.Name(),
		checker:      NewCheckLoginStatusTool(),
		hooks:        opts.Hooks,
		logger:       opts.Logger,
	}
	r.SetDescription("Routes each turn to the login or activity agent based on login state.")
	if err := r.SetSubAgents(login, activity); err != nil {
		return nil, err
	}
	return r, nil
}

// Run executes one routed turn: check login state, then delegate.
func (r *Router) Run(rc *core.RunContext) error {
	if err := r.hooks.Run(rc.Context, &agent.HookContext{
		Type: agent.HookBeforeAgent, AgentName: r.Name(), RunCtx: rc,
	}); err != nil {
		return err
	}

	state, err := r.checkLoginState(rc)
	if err != nil {
		return r.finish(rc, err)
	}

	target := r.loginName
	if state == loginStateLoggedIn {
		target = r.activityName
	}

	r.logger.Info("router.delegate",
		"invocation_id", rc.InvocationID,
		"login_state", state,
		"target", target,
	)

	delegate := r.FindAgent(target)
	if delegate == nil {
		return r.finish(rc, fmt.Errorf("router delegate %s not found", target))
	}

	branched := rc.WithBranch(r.Name() + "." + target)
	return r.finish(rc, delegate.Run(branched))
}

// checkLoginState runs the check tool through the regular function call
// event pair so the decision is visible in session history.
func (r *Router) checkLoginState(rc *core.RunContext) (string, error) {
	callID := core.NewID()

	callEv := core.NewEvent(rc.InvocationID, r.Name())
	callEv.Content = &core.Content{
		Role: "assistant",
		Parts: []core.Part{core.FunctionCallPart{
			FunctionCall: core.FunctionCall{ID: callID, Name: checkLoginToolName, Arguments: "{}"},
		}},
	}
	if err := rc.EmitEvent(callEv); err != nil {
		return "", err
	}
	if err := rc.WaitForResume(); err != nil {
		return "", err
	}

	toolCtx := core.NewToolContext(rc, callID)
	if err := r.hooks.Run(rc.Context, &agent.HookContext{
		Type: agent.HookBeforeTool, AgentName: r.Name(),
		ToolCtx: toolCtx, Tool: checkLoginToolName, Args: "{}",
	}); err != nil {
		return "", err
	}

	result, callErr := r.checker.Call(toolCtx, map[string]any{})

	if hookErr := r.hooks.Run(rc.Context, &agent.HookContext{
		Type: agent.HookAfterTool, AgentName: r.Name(),
		ToolCtx: toolCtx, Tool: checkLoginToolName, Args: "{}",
		Result: result, Err: callErr,
	}); hookErr != nil && callErr == nil {
		callErr = hookErr
	}

	respEv := core.NewFunctionResponseEvent(r.Name(), callID, checkLoginToolName, result, callErr)
	respEv.InvocationID = rc.InvocationID
	if err := rc.EmitEvent(respEv); err != nil {
		return "", err
	}
	if err := rc.WaitForResume(); err != nil {
		return "", err
	}

	if callErr != nil {
		return "", fmt.Errorf("login check failed: %w", callErr)
	}

	m, ok := result.(map[string]any)
	if !ok {
		return "", fmt.Errorf("login check returned unexpected result %T", result)
	}
	state, _ := m["login_state"].(string)
	if state != loginStateLoggedIn && state != loginStateLoggedOut {
		return "", fmt.Errorf("login check returned unknown state %q", state)
	}
	return state, nil
}

func (r *Router) finish(rc *core.RunContext, runErr error) error {
	if hookErr := r.hooks.Run(rc.Context, &agent.HookContext{
		Type: agent.HookAfterAgent, AgentName: r.Name(), RunCtx: rc, Err: runErr,
	}); hookErr != nil && runErr == nil {
		return hookErr
	}
	return runErr
}

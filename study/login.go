package study

import (
	"github.com/refreshapp/refresh/agent"
	"github.com/refreshapp/refresh/model"
	"github.com/refreshapp/refresh/tool"
)

const loginInstruction = `You are the login assistant for RefreshApp, a study session helper.
Identify the user and their active study session by following these steps in
order, one tool call at a time, using each tool's structured result to decide
the next step:

1. Call get_active_user. If the returned username is empty, ask the user for
   a username, then call update_username with their answer before anything
   else.
2. Call get-student with the lower-cased username. If a record is found,
   continue with step 4.
3. Ask the user for an email address, then call add-student with the
   username and email to create their record.
4. Call get-last-session with the student id. If no session is found, ask
   the user for a session name and call add-session to create one; the tool
   assigns its identifier.
5. Call update_login with the student id and the session guid.
6. Confirm to the user that they are logged in, naming the study session.

If a tool reports status "error", explain the problem to the user in plain
language and ask how they would like to proceed. Never invent student ids or
session guids.`

// LoginAgentOptions configures the login agent.
type LoginAgentOptions struct {
	Hooks *agent.HookSet
}

// NewLoginAgent builds the six-step login agent. remoteTools are the
// database-backed toolset operations (get-student, add-student,
// get-last-session, add-session) loaded from the remote toolset; the local
// state tools are always registered.
func NewLoginAgent(llm model.Model, remoteTools []tool.Tool, optFns ...func(o *LoginAgentOptions)) *agent.ModelAgent {
	var opts LoginAgentOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	a := agent.NewModelAgent("login", llm, func(o *agent.ModelAgentOptions) {
		o.Description = "Identifies the user and their active study session, then records the login."
		o.Instruction = agent.NewInstructionFromText(loginInstruction)
		o.AllowTransfer = false
		o.Hooks = opts.Hooks
	})

	a.RegisterTools(
		NewGetActiveUserTool(),
		NewUpdateUsernameTool(),
		NewUpdateLoginTool(),
	)
	a.RegisterTools(remoteTools...)

	return a
}

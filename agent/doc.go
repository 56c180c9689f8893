// Package agent contains the agent implementations that make up the study
// application's conversation tree. The package covers three concerns:
//
//  1. Identity and hierarchy plumbing (BaseAgent)
//  2. The model-backed conversational agent (ModelAgent) with instruction
//     templates, tool calling, delegation, and lifecycle hooks
//  3. Dynamic instruction resolution (Instruction, Provider)
//
// Execution model:
//   - An agent's Run receives a *core.RunContext carrying the session
//     snapshot and the emit/resume channels owned by the runner
//   - ModelAgent selects a flow matching its capabilities and streams the
//     flow's events through the context
//   - Delegation happens in-invocation: transfer_to_agent hands the same
//     context (branch-labeled) to a sub-agent
//
// Persistence, model specifics, and tool abstractions stay in their own
// packages to avoid cyclic dependencies.
package agent

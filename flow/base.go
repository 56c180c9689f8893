package flow

import (
	"fmt"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/model"
)

// turnResult tells the outer loop what to do after one model turn.
type turnResult int

const (
	turnDone turnResult = iota
	turnContinue
)

// BaseFlow is a single-agent flow implementation that supports a
// request -> model -> (optional tool loop) cycle with pluggable pre/post
// processors. Tool batches run through a FunctionExecutor and their results
// are merged into a single function response event.
type BaseFlow struct {
	agent              FlowAgent
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
	executor           FunctionExecutor
}

// NewBaseFlow creates a new basic single-agent flow.
func NewBaseFlow(agent FlowAgent) *BaseFlow {
	return &BaseFlow{
		agent:              agent,
		requestProcessors:  []RequestProcessor{},
		responseProcessors: []ResponseProcessor{},
		executor:           NewParallelFunctionExecutor(FunctionExecutorConfig{}),
	}
}

// AddRequestProcessor appends a request processor; order of registration
// defines execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed for each model
// chunk.
func (f *BaseFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// SetFunctionExecutor replaces the default executor for tool batches.
func (f *BaseFlow) SetFunctionExecutor(executor FunctionExecutor) {
	f.executor = executor
}

// Run executes model turns until the agent produces a final response,
// transfers control, escalates, or the context is cancelled.
func (f *BaseFlow) Run(runCtx *core.RunContext) error {
	for {
		result, err := f.runOnce(runCtx)
		if err != nil {
			return err
		}
		if result == turnDone {
			return nil
		}
	}
}

// emitError surfaces an internal error as a turn-complete event so callers
// ranging over the event stream observe the failure.
func (f *BaseFlow) emitError(runCtx *core.RunContext, err error) {
	ev := core.NewEvent(runCtx.InvocationID, f.agent.GetName())
	msg := err.Error()
	ev.ErrorMessage = &msg
	complete := true
	ev.TurnComplete = &complete
	if emitErr := runCtx.EmitEvent(ev); emitErr != nil {
		return
	}
	_ = runCtx.WaitForResume()
}

// runOnce performs one model turn including any tool executions.
func (f *BaseFlow) runOnce(runCtx *core.RunContext) (turnResult, error) {
	// Refresh the session snapshot so request processors see the latest
	// conversation, including tool responses appended by the runner.
	if runCtx.SessionStore != nil {
		if err := runCtx.RefreshSession(); err != nil {
			runCtx.LogWarn("flow.session.refresh.failed", "agent", f.agent.GetName(), "error", err.Error())
		}
	}

	if err := runCtx.Limiter.Increment(); err != nil {
		f.emitError(runCtx, err)
		return turnDone, err
	}

	req := &model.Request{Stream: f.agent.IsStreamingEnabled()}

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(runCtx, req, f.agent); err != nil {
			err = fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
			f.emitError(runCtx, err)
			return turnDone, err
		}
	}

	llm := f.agent.GetModel()
	if llm == nil {
		err := fmt.Errorf("agent %s has no model configured", f.agent.GetName())
		f.emitError(runCtx, err)
		return turnDone, err
	}

	respCh, errCh := llm.Generate(runCtx.Context, *req)

	var lastEvent *core.Event

loop:
	for {
		select {
		case <-runCtx.Context.Done():
			return turnDone, runCtx.Context.Err()

		case resp, ok := <-respCh:
			if !ok {
				break loop
			}

			for _, processor := range f.responseProcessors {
				if err := processor.ProcessResponse(runCtx, &resp, f.agent); err != nil {
					err = fmt.Errorf("response processor %s failed: %w", processor.Name(), err)
					f.emitError(runCtx, err)
					return turnDone, err
				}
			}

			ev, err := f.emitResponse(runCtx, resp)
			if err != nil {
				return turnDone, err
			}
			if ev != nil {
				lastEvent = ev
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil // closed; stop selecting on it
				continue
			}
			if err != nil {
				f.emitError(runCtx, err)
				return turnDone, err
			}
		}
	}

	// The response channel can close before a buffered error is observed.
	if errCh != nil {
		if err, ok := <-errCh; ok && err != nil {
			f.emitError(runCtx, err)
			return turnDone, err
		}
	}

	if lastEvent == nil {
		err := fmt.Errorf("model %s returned no response", llm.Info().Name)
		f.emitError(runCtx, err)
		return turnDone, err
	}

	if fnCalls := lastEvent.GetFunctionCalls(); len(fnCalls) > 0 {
		return f.executeFunctionCalls(runCtx, fnCalls)
	}

	return turnDone, nil
}

// emitResponse converts one model chunk into an event and emits it. Partial
// chunks are forwarded without a resume wait since the runner does not
// persist them. Returns the event for non-partial chunks, nil for partials.
func (f *BaseFlow) emitResponse(runCtx *core.RunContext, resp model.Response) (*core.Event, error) {
	ev := core.NewEvent(runCtx.InvocationID, f.agent.GetName())
	ev.Content = &resp.Content
	partial := resp.Partial
	ev.Partial = &partial

	if partial {
		if err := runCtx.EmitEvent(ev); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// A final assistant chunk without pending tool calls completes the turn.
	if len(ev.GetFunctionCalls()) == 0 {
		complete := true
		ev.TurnComplete = &complete

		if key := f.agent.GetOutputKey(); key != "" {
			if text := ev.Text(); text != "" {
				if ev.Actions.StateDelta == nil {
					ev.Actions.StateDelta = map[string]any{}
				}
				ev.Actions.StateDelta[key] = text
			}
		}
	}

	if err := runCtx.EmitEvent(ev); err != nil {
		return nil, err
	}
	if err := runCtx.WaitForResume(); err != nil {
		return nil, err
	}

	return &ev, nil
}

// executeFunctionCalls runs a model-requested tool batch, emits the merged
// function response event, and interprets any transfer or escalation the
// tools requested.
func (f *BaseFlow) executeFunctionCalls(runCtx *core.RunContext, fnCalls []core.FunctionCall) (turnResult, error) {
	events := f.executor.Execute(runCtx, f.agent, fnCalls)
	if len(events) == 0 {
		return turnContinue, nil
	}

	merged := MergeFunctionResponseEvents(runCtx.InvocationID, f.agent.GetName(), events)

	if err := runCtx.EmitEvent(merged); err != nil {
		return turnDone, err
	}
	if err := runCtx.WaitForResume(); err != nil {
		return turnDone, err
	}

	if merged.Actions.TransferToAgent != nil {
		target := *merged.Actions.TransferToAgent
		runCtx.LogInfo("flow.transfer", "agent", f.agent.GetName(), "target", target)
		if err := f.agent.TransferToAgent(runCtx, target); err != nil {
			f.emitError(runCtx, fmt.Errorf("transfer to %s failed: %w", target, err))
			return turnDone, err
		}
		return turnDone, nil
	}

	if merged.Actions.Escalate != nil && *merged.Actions.Escalate {
		return turnDone, nil
	}

	// Tool responses feed the next model turn.
	return turnContinue, nil
}

package flow

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/refreshapp/refresh/core"
)

// FunctionExecutor executes a batch of function calls, possibly in parallel,
// and returns one function response event per call in the original call
// order. Implementations must:
//   - Respect runCtx.Context cancellation
//   - Never panic (recover internally and convert to error responses)
//   - Produce exactly one FunctionResponse event per incoming FunctionCall
//   - Apply ToolContext accumulated actions to produced events
//
// The caller is responsible for merging, emission, and persistence
// synchronization.
type FunctionExecutor interface {
	Execute(runCtx *core.RunContext, agent FlowAgent, fnCalls []core.FunctionCall) []core.Event
}

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // 0 or <1 means no explicit limit
	LogStartEvents bool // log a start line per function
}

// parallelFunctionExecutor is the default implementation.
type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(runCtx *core.RunContext, agent FlowAgent, fnCalls []core.FunctionCall) []core.Event {
	n := len(fnCalls)
	if n == 0 {
		return nil
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		ev := e.executeSingle(runCtx, agent, fnCalls[0])
		return []core.Event{ev}
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	events := make([]core.Event, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range fnCalls {
		if runCtx.Context.Err() != nil {
			// Cancelled mid-batch; remaining calls get error responses so the
			// batch stays complete.
			for j := i; j < n; j++ {
				events[j] = core.NewFunctionResponseEvent(agent.GetName(), fnCalls[j].ID, fnCalls[j].Name, nil, runCtx.Context.Err())
			}
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()
			events[idx] = e.executeSingle(runCtx, agent, fc)
		}(i, fnCalls[i])
	}

	wg.Wait()

	runCtx.LogDebug(
		"flow.functions.batch.complete",
		"agent", agent.GetName(),
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return events
}

func (e *parallelFunctionExecutor) executeSingle(runCtx *core.RunContext, agent FlowAgent, fc core.FunctionCall) core.Event {
	toolCtx := core.NewToolContext(runCtx, fc.ID)

	if e.cfg.LogStartEvents {
		runCtx.LogInfo("flow.function.start", "agent", agent.GetName(), "function", fc.Name, "function_call_id", fc.ID)
	}

	start := time.Now()
	var (
		result any
		err    error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				runCtx.LogError("flow.function.panic", "agent", agent.GetName(), "function", fc.Name, "recover", r)
			}
		}()
		result, err = agent.ExecuteTool(toolCtx, fc.Name, fc.Arguments)
	}()
	dur := time.Since(start)

	runCtx.LogInfo(
		"flow.function.executed",
		"agent", agent.GetName(),
		"function", fc.Name,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	respEv := core.NewFunctionResponseEvent(agent.GetName(), fc.ID, fc.Name, result, err)
	toolCtx.InternalApplyActions(&respEv)

	return respEv
}

// panicError converts a recovered panic value to an error carrying the stack.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("tool panicked: %v", p.val) }

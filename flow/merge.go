package flow

import (
	"maps"

	"github.com/refreshapp/refresh/core"
)

// MergeFunctionResponseEvents collapses a batch of function response events
// into a single event so a parallel tool batch persists atomically. Response
// parts keep the original call order. State deltas are merged in order, the
// first transfer request wins, and escalation is sticky.
func MergeFunctionResponseEvents(invocationID, author string, events []core.Event) core.Event {
	if len(events) == 1 {
		ev := events[0]
		if ev.InvocationID == "" {
			ev.InvocationID = invocationID
		}
		return ev
	}

	merged := core.NewEvent(invocationID, author)
	merged.Content = &core.Content{Role: "tool"}

	for _, ev := range events {
		if ev.Content != nil {
			merged.Content.Parts = append(merged.Content.Parts, ev.Content.Parts...)
		}

		if len(ev.Actions.StateDelta) > 0 {
			if merged.Actions.StateDelta == nil {
				merged.Actions.StateDelta = map[string]any{}
			}
			maps.Copy(merged.Actions.StateDelta, ev.Actions.StateDelta)
		}

		if ev.Actions.TransferToAgent != nil && merged.Actions.TransferToAgent == nil {
			target := *ev.Actions.TransferToAgent
			merged.Actions.TransferToAgent = &target
		}

		if ev.Actions.Escalate != nil && *ev.Actions.Escalate {
			escalate := true
			merged.Actions.Escalate = &escalate
		}
	}

	return merged
}

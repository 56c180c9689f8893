package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/refreshapp/refresh/core"
)

// wirePart is the tagged serialization form of core.Part. The closed part
// union does not round-trip through plain JSON, so each part carries a type
// discriminator.
type wirePart struct {
	Type             string                 `json:"type"`
	Text             string                 `json:"text,omitempty"`
	Data             map[string]any         `json:"data,omitempty"`
	FunctionCall     *core.FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *core.FunctionResponse `json:"function_response,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireEvent struct {
	ID           string            `json:"id"`
	InvocationID string            `json:"invocation_id"`
	Author       string            `json:"author"`
	Actions      core.EventActions `json:"actions"`
	Branch       *string           `json:"branch,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Content      *wireContent      `json:"content,omitempty"`
	Partial      *bool             `json:"partial,omitempty"`
	TurnComplete *bool             `json:"turn_complete,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
}

func encodeEvent(ev core.Event) ([]byte, error) {
	we := wireEvent{
		ID:           ev.ID,
		InvocationID: ev.InvocationID,
		Author:       ev.Author,
		Actions:      ev.Actions,
		Branch:       ev.Branch,
		Timestamp:    ev.Timestamp,
		Partial:      ev.Partial,
		TurnComplete: ev.TurnComplete,
		ErrorMessage: ev.ErrorMessage,
	}
	if ev.Content != nil {
		wc := wireContent{Role: ev.Content.Role}
		for _, p := range ev.Content.Parts {
			switch part := p.(type) {
			case core.TextPart:
				wc.Parts = append(wc.Parts, wirePart{Type: "text", Text: part.Text})
			case core.DataPart:
				wc.Parts = append(wc.Parts, wirePart{Type: "data", Data: part.Data})
			case core.FunctionCallPart:
				fc := part.FunctionCall
				wc.Parts = append(wc.Parts, wirePart{Type: "function_call", FunctionCall: &fc})
			case core.FunctionResponsePart:
				fr := part.FunctionResponse
				wc.Parts = append(wc.Parts, wirePart{Type: "function_response", FunctionResponse: &fr})
			default:
				return nil, fmt.Errorf("unknown part type %T", p)
			}
		}
		we.Content = &wc
	}
	return json.Marshal(we)
}

func decodeEvent(data []byte) (core.Event, error) {
	var we wireEvent
	if err := json.Unmarshal(data, &we); err != nil {
		return core.Event{}, err
	}
	ev := core.Event{
		ID:           we.ID,
		InvocationID: we.InvocationID,
		Author:       we.Author,
		Actions:      we.Actions,
		Branch:       we.Branch,
		Timestamp:    we.Timestamp,
		Partial:      we.Partial,
		TurnComplete: we.TurnComplete,
		ErrorMessage: we.ErrorMessage,
	}
	if we.Content != nil {
		content := &core.Content{Role: we.Content.Role}
		for _, wp := range we.Content.Parts {
			switch wp.Type {
			case "text":
				content.Parts = append(content.Parts, core.TextPart{Text: wp.Text})
			case "data":
				content.Parts = append(content.Parts, core.DataPart{Data: wp.Data})
			case "function_call":
				if wp.FunctionCall != nil {
					content.Parts = append(content.Parts, core.FunctionCallPart{FunctionCall: *wp.FunctionCall})
				}
			case "function_response":
				if wp.FunctionResponse != nil {
					content.Parts = append(content.Parts, core.FunctionResponsePart{FunctionResponse: *wp.FunctionResponse})
				}
			default:
				return core.Event{}, fmt.Errorf("unknown wire part type %q", wp.Type)
			}
		}
		ev.Content = content
	}
	return ev, nil
}

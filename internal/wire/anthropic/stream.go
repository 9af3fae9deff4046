package anthropic

import (
	"encoding/json"

	"github.com/omnidotdev/synapse/internal/types"
)

// Decoder assembles a sequence of upstream Anthropic StreamEvents into
// canonical types.StreamEvents. Anthropic spreads a single tool call
// across content_block_start (name, id), zero or more
// content_block_deltas carrying partial_json fragments, and
// content_block_stop — so, unlike OpenAI's already-chunked tool-call
// deltas, we must keep state per content-block index so each later delta
// can be attributed to its tool call. One Decoder is scoped to exactly one
// response stream.
type Decoder struct {
	respID      string
	model       string
	inputTokens int

	// blockKind maps the upstream content_block index to "text" or
	// "tool_use", and toolIndex maps it to the internally-assigned
	// monotone index handed out in first-seen order (the invariant
	// types.ToolCallDelta.Index documents).
	blockKind map[int]string
	toolIndex map[int]int
	toolID    map[int]string
	toolName  map[int]string
	nextIndex int
}

func NewDecoder() *Decoder {
	return &Decoder{
		blockKind: make(map[int]string),
		toolIndex: make(map[int]int),
		toolID:    make(map[int]string),
		toolName:  make(map[int]string),
	}
}

// Feed consumes one decoded wire StreamEvent and returns zero or more
// canonical events it produces.
func (d *Decoder) Feed(ev *StreamEvent) []types.StreamEvent {
	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			d.respID = ev.Message.ID
			d.model = ev.Message.Model
			d.inputTokens = ev.Message.Usage.InputTokens
		}
		return nil

	case "content_block_start":
		if ev.ContentBlock == nil {
			return nil
		}
		d.blockKind[ev.Index] = ev.ContentBlock.Type
		if ev.ContentBlock.Type == "tool_use" {
			idx := d.nextIndex
			d.nextIndex++
			d.toolIndex[ev.Index] = idx
			d.toolID[ev.Index] = ev.ContentBlock.ID
			d.toolName[ev.Index] = ev.ContentBlock.Name
			return []types.StreamEvent{types.NewDeltaEvent(types.Delta{
				ToolCall: &types.ToolCallDelta{Index: idx, ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name},
			})}
		}
		return nil

	case "content_block_delta":
		if ev.Delta == nil {
			return nil
		}
		switch d.blockKind[ev.Index] {
		case "tool_use":
			return []types.StreamEvent{types.NewDeltaEvent(types.Delta{
				ToolCall: &types.ToolCallDelta{Index: d.toolIndex[ev.Index], Arguments: ev.Delta.PartialJSON},
			})}
		default:
			if ev.Delta.Text == "" {
				return nil
			}
			return []types.StreamEvent{types.NewDeltaEvent(types.Delta{Text: ev.Delta.Text})}
		}

	case "content_block_stop":
		return nil

	case "message_delta":
		var events []types.StreamEvent
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			events = append(events, types.NewDeltaEvent(types.Delta{FinishReason: canonicalFinishReason(ev.Delta.StopReason)}))
		}
		if ev.Usage != nil {
			events = append(events, types.NewUsageEvent(types.Usage{
				PromptTokens: d.inputTokens, CompletionTokens: ev.Usage.OutputTokens,
				TotalTokens: d.inputTokens + ev.Usage.OutputTokens,
			}))
		}
		return events

	case "message_stop":
		return []types.StreamEvent{types.DoneEvent}

	default: // ping, error — nothing to emit
		return nil
	}
}

// ResponseID and Model expose the metadata captured from message_start,
// for callers that need to stamp it onto chunks of a different dialect.
func (d *Decoder) ResponseID() string { return d.respID }
func (d *Decoder) Model() string      { return d.model }

// Encoder is the inverse: it turns canonical StreamEvents into the named
// Anthropic SSE events a /v1/messages client expects, tracking which
// content block index is currently open so text and tool-call deltas
// land in the right content_block_delta stream.
type Encoder struct {
	id           string
	model        string
	started      bool
	openBlock    int
	blockOpen    bool
	openToolArgs map[int]bool
	nextBlock    int
	toolBlock    map[int]int // canonical tool-call index -> wire content-block index
}

func NewEncoder(id, model string) *Encoder {
	return &Encoder{id: id, model: model, openToolArgs: make(map[int]bool), toolBlock: make(map[int]int)}
}

// NamedEvent is one (event-name, json-payload) pair ready for SSE framing.
type NamedEvent struct {
	Name string
	Data any
}

func (e *Encoder) Encode(ev types.StreamEvent) []NamedEvent {
	var out []NamedEvent

	if !e.started {
		e.started = true
		out = append(out, NamedEvent{Name: "message_start", Data: map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id": e.id, "type": "message", "role": "assistant", "model": e.model,
				"content": []any{}, "usage": map[string]any{"input_tokens": 0, "output_tokens": 0},
			},
		}})
	}

	switch ev.Kind {
	case types.StreamKindDelta:
		if ev.Delta.Text != "" {
			out = append(out, e.ensureTextBlock()...)
			out = append(out, NamedEvent{Name: "content_block_delta", Data: map[string]any{
				"type": "content_block_delta", "index": e.openBlock,
				"delta": map[string]any{"type": "text_delta", "text": ev.Delta.Text},
			}})
		}
		if tc := ev.Delta.ToolCall; tc != nil {
			out = append(out, e.toolCallEvents(tc)...)
		}
		if ev.Delta.FinishReason != "" {
			out = append(out, e.closeOpenBlock()...)
			out = append(out, NamedEvent{Name: "message_delta", Data: map[string]any{
				"type": "message_delta",
				"delta": map[string]any{"stop_reason": anthropicStopReason(ev.Delta.FinishReason)},
			}})
		}
	case types.StreamKindUsage:
		out = append(out, NamedEvent{Name: "message_delta", Data: map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{},
			"usage": map[string]any{"output_tokens": ev.Usage.CompletionTokens},
		}})
	case types.StreamKindDone:
		out = append(out, e.closeOpenBlock()...)
		out = append(out, NamedEvent{Name: "message_stop", Data: map[string]any{"type": "message_stop"}})
	}

	return out
}

func (e *Encoder) ensureTextBlock() []NamedEvent {
	if e.blockOpen {
		return nil
	}
	e.blockOpen = true
	e.openBlock = e.nextBlock
	e.nextBlock++
	return []NamedEvent{{Name: "content_block_start", Data: map[string]any{
		"type": "content_block_start", "index": e.openBlock,
		"content_block": map[string]any{"type": "text", "text": ""},
	}}}
}

func (e *Encoder) closeOpenBlock() []NamedEvent {
	if !e.blockOpen {
		return nil
	}
	e.blockOpen = false
	return []NamedEvent{{Name: "content_block_stop", Data: map[string]any{"type": "content_block_stop", "index": e.openBlock}}}
}

func (e *Encoder) toolCallEvents(tc *types.ToolCallDelta) []NamedEvent {
	var events []NamedEvent

	block, opened := e.toolBlock[tc.Index]
	if !opened {
		events = append(events, e.closeOpenBlock()...)
		block = e.nextBlock
		e.nextBlock++
		e.toolBlock[tc.Index] = block
		events = append(events, NamedEvent{Name: "content_block_start", Data: map[string]any{
			"type": "content_block_start", "index": block,
			"content_block": map[string]any{"type": "tool_use", "id": tc.ID, "name": tc.Name, "input": map[string]any{}},
		}})
	}
	if tc.Arguments != "" {
		events = append(events, NamedEvent{Name: "content_block_delta", Data: map[string]any{
			"type": "content_block_delta", "index": block,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": tc.Arguments},
		}})
	}
	return events
}

// MarshalNamed renders a NamedEvent as the two SSE lines Anthropic expects.
func MarshalNamed(ev NamedEvent) (string, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return "", err
	}
	return "event: " + ev.Name + "\ndata: " + string(data) + "\n\n", nil
}

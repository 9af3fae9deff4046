package anthropic

import (
	"testing"

	"github.com/omnidotdev/synapse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCanonicalPullsSystemIntoLeadingMessage(t *testing.T) {
	req := &Request{Model: "claude-3-5-sonnet", MaxTokens: 100, System: "be terse", Messages: []Message{{Role: "user", Content: "hi"}}}
	canonical, err := ToCanonical(req)
	require.NoError(t, err)
	assert.Equal(t, types.RoleSystem, canonical.Messages[0].Role)
	assert.Equal(t, "be terse", canonical.Messages[0].Content.AsText())
}

func TestFromCanonicalFoldsToolResultIntoNextUserTurn(t *testing.T) {
	req := &types.CompletionRequest{
		Model: "claude-3-5-sonnet",
		Messages: []types.Message{
			{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "tu_1", Function: types.FunctionCall{Name: "lookup", Arguments: "{}"}}}},
			{Role: types.RoleTool, ToolCallID: "tu_1", Content: types.TextContent("42")},
		},
	}
	wire := FromCanonical(req)
	require.Len(t, wire.Messages, 2)
	assert.Equal(t, "user", wire.Messages[1].Role)
	blocks := wire.Messages[1].Content.([]ContentBlock)
	assert.Equal(t, "tool_result", blocks[0].Type)
	assert.Equal(t, "tu_1", blocks[0].ToolUseID)
}

func TestDecoderAssignsMonotoneToolIndexAcrossBlocks(t *testing.T) {
	d := NewDecoder()
	d.Feed(&StreamEvent{Type: "message_start", Message: &EventMessage{ID: "msg_1", Model: "claude-3-5-sonnet"}})

	events := d.Feed(&StreamEvent{Type: "content_block_start", Index: 0, ContentBlock: &ContentBlock{Type: "tool_use", ID: "tu_1", Name: "lookup"}})
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].Delta.ToolCall.Index)

	events = d.Feed(&StreamEvent{Type: "content_block_delta", Index: 0, Delta: &EventDelta{Type: "input_json_delta", PartialJSON: `{"q":`}})
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].Delta.ToolCall.Index)
}

func TestDecoderEmitsDoneOnMessageStop(t *testing.T) {
	d := NewDecoder()
	events := d.Feed(&StreamEvent{Type: "message_stop"})
	require.Len(t, events, 1)
	assert.Equal(t, types.StreamKindDone, events[0].Kind)
}

func TestEncoderOpensAndClosesTextBlockOnce(t *testing.T) {
	e := NewEncoder("msg_1", "claude-3-5-sonnet")
	first := e.Encode(types.NewDeltaEvent(types.Delta{Text: "hi"}))
	second := e.Encode(types.NewDeltaEvent(types.Delta{Text: " there"}))

	names := func(evs []NamedEvent) []string {
		var out []string
		for _, ev := range evs {
			out = append(out, ev.Name)
		}
		return out
	}
	assert.Contains(t, names(first), "content_block_start")
	assert.NotContains(t, names(second), "content_block_start", "block should only open once")
}

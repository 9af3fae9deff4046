package openai

import (
	"testing"

	"github.com/omnidotdev/synapse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCanonicalPlainTextMessage(t *testing.T) {
	req := &Request{Model: "gpt-4o", Messages: []Message{{Role: "user", Content: "hello"}}}
	canonical, err := ToCanonical(req)
	require.NoError(t, err)
	assert.Equal(t, "hello", canonical.Messages[0].Content.AsText())
}

func TestToCanonicalMultiPartContent(t *testing.T) {
	req := &Request{Model: "gpt-4o", Messages: []Message{{Role: "user", Content: []any{
		map[string]any{"type": "text", "text": "what is this"},
		map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://example.com/a.png"}},
	}}}}
	canonical, err := ToCanonical(req)
	require.NoError(t, err)
	require.Len(t, canonical.Messages[0].Content.Parts, 2)
	assert.Equal(t, "https://example.com/a.png", canonical.Messages[0].Content.Parts[1].ImageURL)
}

func TestFromCanonicalRoundTripsToolCalls(t *testing.T) {
	req := &types.CompletionRequest{
		Model: "gpt-4o",
		Messages: []types.Message{
			{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "call_1", Function: types.FunctionCall{Name: "lookup", Arguments: `{"q":"x"}`}}}},
		},
	}
	wire := FromCanonical(req, false)
	assert.Equal(t, "lookup", wire.Messages[0].ToolCalls[0].Function.Name)
	assert.Nil(t, wire.StreamOptions)
}

func TestIncludeUsageOnlyWhenRequested(t *testing.T) {
	req := &types.CompletionRequest{Model: "gpt-4o", Stream: true}
	wire := FromCanonical(req, true)
	require.NotNil(t, wire.StreamOptions)
	assert.True(t, wire.StreamOptions.IncludeUsage)
}

func TestChunkToEventsAssignsMonotoneToolIndices(t *testing.T) {
	toolIndex := map[int]int{}
	next := 0

	chunk1 := &ChunkResponse{Choices: []ChunkChoice{{Delta: ChunkDelta{ToolCalls: []ChunkToolCall{{Index: 0, ID: "call_1", Function: FunctionCall{Name: "f"}}}}}}}
	events1 := ChunkToEvents(chunk1, toolIndex, &next)
	require.Len(t, events1, 1)
	assert.Equal(t, 0, events1[0].Delta.ToolCall.Index)

	chunk2 := &ChunkResponse{Choices: []ChunkChoice{{Delta: ChunkDelta{ToolCalls: []ChunkToolCall{{Index: 0, Function: FunctionCall{Arguments: `{"a":1}`}}}}}}}
	events2 := ChunkToEvents(chunk2, toolIndex, &next)
	assert.Equal(t, 0, events2[0].Delta.ToolCall.Index, "same upstream index must reuse the same internal index")
}

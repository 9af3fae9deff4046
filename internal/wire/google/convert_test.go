package google

import (
	"testing"

	"github.com/omnidotdev/synapse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromCanonicalRenamesAssistantToModel(t *testing.T) {
	req := &types.CompletionRequest{
		Model: "gemini-2.0-flash",
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: types.TextContent("be terse")},
			{Role: types.RoleUser, Content: types.TextContent("hi")},
			{Role: types.RoleAssistant, Content: types.TextContent("hello")},
		},
	}
	wire := FromCanonical(req)
	require.NotNil(t, wire.SystemInstruction)
	assert.Equal(t, "model", wire.Contents[1].Role)
}

func TestResponseToCanonicalExtractsToolCall(t *testing.T) {
	resp := &Response{Candidates: []Candidate{{
		Content:      Content{Parts: []Part{{FunctionCall: &FunctionCall{Name: "lookup", Args: map[string]any{"q": "x"}}}}},
		FinishReason: "STOP",
	}}}
	canonical, err := ResponseToCanonical(resp, "gemini-2.0-flash")
	require.NoError(t, err)
	require.Len(t, canonical.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, types.FinishToolCalls, canonical.Choices[0].FinishReason)
}

func TestChunkToEventsAssignsSequentialToolIndices(t *testing.T) {
	next := 0
	resp := &Response{Candidates: []Candidate{{Content: Content{Parts: []Part{
		{FunctionCall: &FunctionCall{Name: "a"}},
		{FunctionCall: &FunctionCall{Name: "b"}},
	}}}}}
	events := ChunkToEvents(resp, &next)
	require.Len(t, events, 2)
	assert.Equal(t, 0, events[0].Delta.ToolCall.Index)
	assert.Equal(t, 1, events[1].Delta.ToolCall.Index)
}

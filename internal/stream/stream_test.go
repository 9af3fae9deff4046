package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/omnidotdev/synapse/internal/provider"
	"github.com/omnidotdev/synapse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sendResults(results ...provider.StreamResult) <-chan provider.StreamResult {
	ch := make(chan provider.StreamResult)
	go func() {
		defer close(ch)
		for _, r := range results {
			ch <- r
		}
	}()
	return ch
}

// dataLines extracts every "data: ..." payload from a raw SSE body,
// excluding the trailing [DONE] sentinel.
func dataLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			payload := strings.TrimPrefix(line, "data: ")
			if payload != "[DONE]" {
				out = append(out, payload)
			}
		}
	}
	return out
}

func TestWriteOpenAIEmitsDeltaThenDone(t *testing.T) {
	rec := httptest.NewRecorder()
	results := sendResults(
		provider.StreamResult{Event: types.NewDeltaEvent(types.Delta{Text: "hi"})},
		provider.StreamResult{Event: types.DoneEvent},
	)

	err := WriteOpenAI(rec, "resp_1", "gpt-4o", 0, results)
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, "data: [DONE]")

	lines := dataLines(body)
	require.Len(t, lines, 1)

	var chunk map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &chunk))
	choices := chunk["choices"].([]any)
	delta := choices[0].(map[string]any)["delta"].(map[string]any)
	assert.Equal(t, "hi", delta["content"])
}

func TestWriteOpenAIPropagatesMidStreamError(t *testing.T) {
	rec := httptest.NewRecorder()
	results := sendResults(provider.StreamResult{Err: assertError("boom")})

	err := WriteOpenAI(rec, "resp_1", "gpt-4o", 0, results)
	assert.Error(t, err)
}

func TestWriteAnthropicOpensAndClosesBlockAroundText(t *testing.T) {
	rec := httptest.NewRecorder()
	results := sendResults(
		provider.StreamResult{Event: types.NewDeltaEvent(types.Delta{Text: "hi"})},
		provider.StreamResult{Event: types.NewDeltaEvent(types.Delta{FinishReason: types.FinishStop})},
		provider.StreamResult{Event: types.DoneEvent},
	)

	err := WriteAnthropic(rec, "msg_1", "claude-3-5-sonnet", results)
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, "event: message_start")
	assert.Contains(t, body, "event: content_block_start")
	assert.Contains(t, body, "event: content_block_stop")
	assert.Contains(t, body, "event: message_stop")
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestNowUnixIsPositive(t *testing.T) {
	assert.True(t, NowUnix() > 0)
}

func TestNewCompletionIDIsUniqueAndPrefixed(t *testing.T) {
	a, b := NewCompletionID(), NewCompletionID()
	assert.True(t, strings.HasPrefix(a, "chatcmpl-"))
	assert.NotEqual(t, a, b)
}

func TestNewMessageIDIsUniqueAndPrefixed(t *testing.T) {
	a, b := NewMessageID(), NewMessageID()
	assert.True(t, strings.HasPrefix(a, "msg_"))
	assert.NotEqual(t, a, b)
}

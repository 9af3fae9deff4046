package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidotdev/synapse/internal/health"
	"github.com/omnidotdev/synapse/internal/llmerr"
	"github.com/omnidotdev/synapse/internal/provider"
	"github.com/omnidotdev/synapse/internal/router"
	"github.com/omnidotdev/synapse/internal/routing"
	"github.com/omnidotdev/synapse/internal/state"
	"github.com/omnidotdev/synapse/internal/types"
)

type fakeProvider struct {
	name string
	err  error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true}
}
func (f *fakeProvider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.CompletionResponse{
		Model: req.Model,
		Choices: []types.Choice{{
			Index:   0,
			Message: types.ChoiceMessage{Role: "assistant", Text: "hello"},
		}},
	}, nil
}
func (f *fakeProvider) CompleteStream(ctx context.Context, req *types.CompletionRequest) (<-chan provider.StreamResult, error) {
	return nil, f.err
}

func newTestServer(t *testing.T, p provider.Provider) *Server {
	t.Helper()
	rt := router.New(map[string]router.ProviderFilter{"primary": {}}, []string{"primary"})
	st := state.New(rt, map[string]provider.Provider{"primary": p},
		health.NewTracker(health.Config{ErrorThreshold: 3, Window: time.Minute, RecoverySeconds: time.Minute}),
		state.FailoverConfig{}, routing.Config{}, routing.NewRegistry(nil), routing.NewFeedbackTracker(), nil, nil)
	return New(st, nil)
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s := newTestServer(t, &fakeProvider{name: "primary"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleChatCompletionsReturnsAssistantMessage(t *testing.T) {
	s := newTestServer(t, &fakeProvider{name: "primary"})

	payload := []byte(`{"model":"primary/gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gpt-4o", rec.Header().Get("X-Synapse-Model"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	choices := body["choices"].([]any)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	assert.Equal(t, "hello", msg["content"])
}

func TestHandleChatCompletionsMapsProviderErrorToOpenAIEnvelope(t *testing.T) {
	s := newTestServer(t, &fakeProvider{name: "primary", err: llmerr.InvalidRequest("bad model")})

	payload := []byte(`{"model":"primary/gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "invalid_request_error", errBody["type"])
}

func TestHandleMessagesReturnsAnthropicEnvelope(t *testing.T) {
	s := newTestServer(t, &fakeProvider{name: "primary"})

	payload := []byte(`{"model":"primary/claude-3-5-sonnet","max_tokens":256,"messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "claude-3-5-sonnet", body["model"])
}

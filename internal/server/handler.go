package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/omnidotdev/synapse/internal/llmerr"
	"github.com/omnidotdev/synapse/internal/provider"
	"github.com/omnidotdev/synapse/internal/stream"
	wireAnthropic "github.com/omnidotdev/synapse/internal/wire/anthropic"
	wireOpenAI "github.com/omnidotdev/synapse/internal/wire/openai"
)

// handleHealth responds with a simple JSON liveness status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListModels serves /v1/models: the display names the router
// currently exposes, across every configured provider.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	listings := s.state.ListModels()
	data := make([]map[string]any, 0, len(listings))
	for _, m := range listings {
		data = append(data, map[string]any{"id": m.DisplayName, "object": "model"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

// requestContext builds the per-request provider.RequestContext: the raw
// incoming headers (for the configured header-forwarding rules) and the
// client's own API key when bring-your-own-key is in play, read from
// whichever auth header the dialect in question actually uses.
func requestContext(r *http.Request) provider.RequestContext {
	rc := provider.RequestContext{IncomingHeaders: r.Header}
	if key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		rc.ForwardedAPIKey = key
	} else if key := r.Header.Get("x-api-key"); key != "" {
		rc.ForwardedAPIKey = key
	}
	return rc
}

// handleChatCompletions serves the OpenAI-compatible POST
// /v1/chat/completions ingress endpoint.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var wireReq wireOpenAI.Request
	if err := json.NewDecoder(r.Body).Decode(&wireReq); err != nil {
		writeOpenAIError(w, llmerr.InvalidRequest("invalid request body: "+err.Error()))
		return
	}

	req, err := wireOpenAI.ToCanonical(&wireReq)
	if err != nil {
		writeOpenAIError(w, llmerr.InvalidRequest(err.Error()))
		return
	}

	rc := requestContext(r)

	if req.Stream {
		model, ch, err := s.state.CompleteStream(r.Context(), req, rc)
		if err != nil {
			writeOpenAIError(w, err)
			return
		}
		w.Header().Set("X-Synapse-Model", model)
		if err := stream.WriteOpenAI(w, stream.NewCompletionID(), model, stream.NowUnix(), ch); err != nil {
			s.log.Error("openai stream write failed", "err", err)
		}
		return
	}

	resp, err := s.state.Complete(r.Context(), req, rc)
	if err != nil {
		writeOpenAIError(w, err)
		return
	}
	if resp.ID == "" {
		resp.ID = stream.NewCompletionID()
	}
	if resp.Created == 0 {
		resp.Created = stream.NowUnix()
	}
	w.Header().Set("X-Synapse-Model", resp.Model)
	writeJSON(w, http.StatusOK, wireOpenAI.ResponseFromCanonical(resp))
}

// handleMessages serves the Anthropic-compatible POST /v1/messages
// ingress endpoint.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var wireReq wireAnthropic.Request
	if err := json.NewDecoder(r.Body).Decode(&wireReq); err != nil {
		writeAnthropicError(w, llmerr.InvalidRequest("invalid request body: "+err.Error()))
		return
	}

	req, err := wireAnthropic.ToCanonical(&wireReq)
	if err != nil {
		writeAnthropicError(w, llmerr.InvalidRequest(err.Error()))
		return
	}

	rc := requestContext(r)

	if req.Stream {
		model, ch, err := s.state.CompleteStream(r.Context(), req, rc)
		if err != nil {
			writeAnthropicError(w, err)
			return
		}
		w.Header().Set("X-Synapse-Model", model)
		if err := stream.WriteAnthropic(w, stream.NewMessageID(), model, ch); err != nil {
			s.log.Error("anthropic stream write failed", "err", err)
		}
		return
	}

	resp, err := s.state.Complete(r.Context(), req, rc)
	if err != nil {
		writeAnthropicError(w, err)
		return
	}
	if resp.ID == "" {
		resp.ID = stream.NewMessageID()
	}
	w.Header().Set("X-Synapse-Model", resp.Model)
	writeJSON(w, http.StatusOK, wireAnthropic.ResponseFromCanonical(resp))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// asLlmErr normalizes any error into the gateway's typed taxonomy so every
// failure path gets a consistent status code and client message.
func asLlmErr(err error) *llmerr.Error {
	if lerr, ok := llmerr.As(err); ok {
		return lerr
	}
	return llmerr.Internal(err)
}

// writeOpenAIError maps any error to the OpenAI-dialect error envelope.
func writeOpenAIError(w http.ResponseWriter, err error) {
	lerr := asLlmErr(err)
	writeJSON(w, lerr.StatusCode(), map[string]any{
		"error": map[string]any{
			"message": lerr.ClientMessage(),
			"type":    lerr.ErrorType(),
		},
	})
}

// writeAnthropicError maps any error to Anthropic's error envelope.
func writeAnthropicError(w http.ResponseWriter, err error) {
	lerr := asLlmErr(err)
	writeJSON(w, lerr.StatusCode(), map[string]any{
		"type": "error",
		"error": map[string]any{
			"type":    lerr.ErrorType(),
			"message": lerr.ClientMessage(),
		},
	})
}

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/omnidotdev/synapse/internal/headers"
	"github.com/omnidotdev/synapse/internal/llmerr"
	"github.com/omnidotdev/synapse/internal/types"
	wire "github.com/omnidotdev/synapse/internal/wire/anthropic"
)

// AnthropicProvider talks to Anthropic's /v1/messages API.
type AnthropicProvider struct {
	name                 string
	apiKey               string
	baseURL              string
	client               *http.Client
	headerRules          []headers.Rule
	forwardAuthorization bool
	rateLimiter          *RateLimiter
	caps                 Capabilities
}

func NewAnthropicProvider(name, apiKey, baseURL string, client *http.Client, rules []headers.Rule, forwardAuthorization bool, limiter *RateLimiter) *AnthropicProvider {
	return &AnthropicProvider{
		name: name, apiKey: apiKey, baseURL: strings.TrimSuffix(baseURL, "/"),
		client: client, headerRules: rules, forwardAuthorization: forwardAuthorization,
		rateLimiter: limiter,
		caps:        Capabilities{Streaming: true, ToolCalling: true, Vision: true, LongContext: true},
	}
}

func (p *AnthropicProvider) Name() string              { return p.name }
func (p *AnthropicProvider) Capabilities() Capabilities { return p.caps }

func (p *AnthropicProvider) messagesURL() string { return fmt.Sprintf("%s/messages", p.baseURL) }

func (p *AnthropicProvider) newRequest(ctx context.Context, body []byte, rc RequestContext) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", resolveAPIKey(p.apiKey, rc, p.forwardAuthorization))
	httpReq.Header.Set("anthropic-version", wire.APIVersion)
	applyHeaders(httpReq, rc.IncomingHeaders, p.headerRules)
	return httpReq, nil
}

func (p *AnthropicProvider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	return p.CompleteWithContext(ctx, req, RequestContext{})
}

func (p *AnthropicProvider) CompleteWithContext(ctx context.Context, req *types.CompletionRequest, rc RequestContext) (*types.CompletionResponse, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, llmerr.Upstream(fmt.Sprintf("rate limiter: %v", err))
	}

	wireReq := wire.FromCanonical(req)
	wireReq.Stream = false

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, llmerr.Internal(err)
	}

	httpReq, err := p.newRequest(ctx, body, rc)
	if err != nil {
		return nil, llmerr.Internal(err)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llmerr.Upstream(fmt.Sprintf("anthropic request: %v", err))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, decodeAnthropicError(httpResp)
	}

	var wireResp wire.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return nil, llmerr.Streaming(fmt.Sprintf("decoding anthropic response: %v", err))
	}

	return wire.ResponseToCanonical(&wireResp), nil
}

func (p *AnthropicProvider) CompleteStream(ctx context.Context, req *types.CompletionRequest) (<-chan StreamResult, error) {
	return p.CompleteStreamWithContext(ctx, req, RequestContext{})
}

func (p *AnthropicProvider) CompleteStreamWithContext(ctx context.Context, req *types.CompletionRequest, rc RequestContext) (<-chan StreamResult, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, llmerr.Upstream(fmt.Sprintf("rate limiter: %v", err))
	}

	wireReq := wire.FromCanonical(req)
	wireReq.Stream = true

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, llmerr.Internal(err)
	}

	httpReq, err := p.newRequest(ctx, body, rc)
	if err != nil {
		return nil, llmerr.Internal(err)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llmerr.Upstream(fmt.Sprintf("anthropic request: %v", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, decodeAnthropicError(httpResp)
	}

	ch := make(chan StreamResult)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		decoder := wire.NewDecoder()
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var pendingName string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				pendingName = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				payload := strings.TrimPrefix(line, "data: ")
				var ev wire.StreamEvent
				if err := json.Unmarshal([]byte(payload), &ev); err != nil {
					send(ctx, ch, StreamResult{Err: llmerr.Streaming(fmt.Sprintf("decoding anthropic stream event: %v", err))})
					return
				}
				if ev.Type == "" {
					ev.Type = pendingName
				}
				for _, canonical := range decoder.Feed(&ev) {
					send(ctx, ch, StreamResult{Event: canonical})
				}
				if ev.Type == "message_stop" {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			send(ctx, ch, StreamResult{Err: llmerr.Streaming(fmt.Sprintf("reading anthropic stream: %v", err))})
		}
	}()

	return ch, nil
}

// staticAnthropicModels is the fixed model-id list ListModels returns:
// Anthropic has no models-list endpoint, so discovery falls back to a
// maintained static list rather than a live upstream call.
var staticAnthropicModels = []string{
	"claude-sonnet-4-20250514",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// ListModels satisfies discovery.Lister with the static model list above.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]string, error) {
	return staticAnthropicModels, nil
}

func decodeAnthropicError(resp *http.Response) error {
	var body wire.ErrorBody
	json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("upstream returned status %d", resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llmerr.Unauthorized()
	case http.StatusTooManyRequests:
		return llmerr.RateLimited(retryAfterSeconds(resp.Header.Get("Retry-After")))
	case http.StatusBadRequest:
		return llmerr.InvalidRequest(msg)
	default:
		return llmerr.Upstream(msg)
	}
}

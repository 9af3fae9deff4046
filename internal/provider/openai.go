package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/omnidotdev/synapse/internal/headers"
	"github.com/omnidotdev/synapse/internal/llmerr"
	"github.com/omnidotdev/synapse/internal/types"
	wire "github.com/omnidotdev/synapse/internal/wire/openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat-completions
// endpoint: the canonical api.openai.com host, or a self-hosted
// OpenAI-compatible gateway (vLLM, LiteLLM, Azure's OpenAI-compatible
// surface, etc). isCanonicalHost gates the one behavior that only the
// real OpenAI host supports reliably: stream_options.include_usage.
type OpenAIProvider struct {
	name                 string
	apiKey               string
	baseURL              string
	client               *http.Client
	headerRules          []headers.Rule
	forwardAuthorization bool
	rateLimiter          *RateLimiter
	caps                 Capabilities
}

func NewOpenAIProvider(name, apiKey, baseURL string, client *http.Client, rules []headers.Rule, forwardAuthorization bool, limiter *RateLimiter) *OpenAIProvider {
	return &OpenAIProvider{
		name: name, apiKey: apiKey, baseURL: strings.TrimSuffix(baseURL, "/"),
		client: client, headerRules: rules, forwardAuthorization: forwardAuthorization,
		rateLimiter: limiter,
		caps:        Capabilities{Streaming: true, ToolCalling: true, Vision: true},
	}
}

func (p *OpenAIProvider) Name() string             { return p.name }
func (p *OpenAIProvider) Capabilities() Capabilities { return p.caps }

func (p *OpenAIProvider) isCanonicalHost() bool {
	u, err := url.Parse(p.baseURL)
	return err == nil && u.Host == "api.openai.com"
}

func (p *OpenAIProvider) completionsURL() string {
	return fmt.Sprintf("%s/chat/completions", p.baseURL)
}

func (p *OpenAIProvider) newRequest(ctx context.Context, body []byte, rc RequestContext) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+resolveAPIKey(p.apiKey, rc, p.forwardAuthorization))
	applyHeaders(httpReq, rc.IncomingHeaders, p.headerRules)
	return httpReq, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	return p.CompleteWithContext(ctx, req, RequestContext{})
}

// CompleteWithContext is the driver's actual entrypoint; Complete exists
// to satisfy the plain Provider interface for callers that don't need
// header forwarding (tests, mostly).
func (p *OpenAIProvider) CompleteWithContext(ctx context.Context, req *types.CompletionRequest, rc RequestContext) (*types.CompletionResponse, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, llmerr.Upstream(fmt.Sprintf("rate limiter: %v", err))
	}

	wireReq := wire.FromCanonical(req, p.isCanonicalHost())
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
		return nil, llmerr.Upstream(fmt.Sprintf("openai request: %v", err))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, decodeError(httpResp)
	}

	var wireResp wire.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return nil, llmerr.Streaming(fmt.Sprintf("decoding openai response: %v", err))
	}

	return wire.ResponseToCanonical(&wireResp), nil
}

func (p *OpenAIProvider) CompleteStream(ctx context.Context, req *types.CompletionRequest) (<-chan StreamResult, error) {
	return p.CompleteStreamWithContext(ctx, req, RequestContext{})
}

func (p *OpenAIProvider) CompleteStreamWithContext(ctx context.Context, req *types.CompletionRequest, rc RequestContext) (<-chan StreamResult, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, llmerr.Upstream(fmt.Sprintf("rate limiter: %v", err))
	}

	wireReq := wire.FromCanonical(req, p.isCanonicalHost())
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
		return nil, llmerr.Upstream(fmt.Sprintf("openai request: %v", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, decodeError(httpResp)
	}

	ch := make(chan StreamResult)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		toolIndex := map[int]int{}
		nextIndex := 0

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				send(ctx, ch, StreamResult{Event: types.DoneEvent})
				return
			}

			var chunk wire.ChunkResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				send(ctx, ch, StreamResult{Err: llmerr.Streaming(fmt.Sprintf("decoding openai chunk: %v", err))})
				return
			}

			for _, ev := range wire.ChunkToEvents(&chunk, toolIndex, &nextIndex) {
				send(ctx, ch, StreamResult{Event: ev})
			}
		}

		if err := scanner.Err(); err != nil {
			send(ctx, ch, StreamResult{Err: llmerr.Streaming(fmt.Sprintf("reading openai stream: %v", err))})
		}
	}()

	return ch, nil
}

// listModelsResponse mirrors the OpenAI-compatible GET /models envelope.
type listModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels satisfies discovery.Lister by calling the upstream's
// GET /models endpoint, supported by the canonical OpenAI host and most
// OpenAI-compatible gateways (vLLM, LiteLLM, etc).
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("openai: building models request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: listing models: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, decodeError(httpResp)
	}

	var parsed listModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openai: decoding models response: %w", err)
	}

	out := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		out = append(out, m.ID)
	}
	return out, nil
}

func send(ctx context.Context, ch chan<- StreamResult, r StreamResult) {
	select {
	case ch <- r:
	case <-ctx.Done():
	}
}

func decodeError(resp *http.Response) error {
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

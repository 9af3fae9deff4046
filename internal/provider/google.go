package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/omnidotdev/synapse/internal/headers"
	"github.com/omnidotdev/synapse/internal/llmerr"
	"github.com/omnidotdev/synapse/internal/types"
	wire "github.com/omnidotdev/synapse/internal/wire/google"
)

// GoogleProvider talks to Gemini's generateContent / streamGenerateContent
// REST API. Unlike OpenAI and Anthropic, the model name and API key both
// live in the URL rather than the body/headers, so url takes the upstream
// model id directly.
type GoogleProvider struct {
	name        string
	apiKey      string
	baseURL     string
	client      *http.Client
	headerRules []headers.Rule
	rateLimiter *RateLimiter
	caps        Capabilities
}

func NewGoogleProvider(name, apiKey, baseURL string, client *http.Client, rules []headers.Rule, limiter *RateLimiter) *GoogleProvider {
	return &GoogleProvider{
		name: name, apiKey: apiKey, baseURL: strings.TrimSuffix(baseURL, "/"),
		client: client, headerRules: rules, rateLimiter: limiter,
		caps: Capabilities{Streaming: true, ToolCalling: true, Vision: true, LongContext: true},
	}
}

func (p *GoogleProvider) Name() string              { return p.name }
func (p *GoogleProvider) Capabilities() Capabilities { return p.caps }

func (p *GoogleProvider) url(model, method string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s", p.baseURL, model, method, p.apiKey)
}

func (p *GoogleProvider) newRequest(ctx context.Context, url string, body []byte, rc RequestContext) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("google: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	applyHeaders(httpReq, rc.IncomingHeaders, p.headerRules)
	return httpReq, nil
}

func (p *GoogleProvider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	return p.CompleteWithContext(ctx, req, RequestContext{})
}

func (p *GoogleProvider) CompleteWithContext(ctx context.Context, req *types.CompletionRequest, rc RequestContext) (*types.CompletionResponse, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, llmerr.Upstream(fmt.Sprintf("rate limiter: %v", err))
	}

	wireReq := wire.FromCanonical(req)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, llmerr.Internal(err)
	}

	httpReq, err := p.newRequest(ctx, p.url(req.Model, "generateContent"), body, rc)
	if err != nil {
		return nil, llmerr.Internal(err)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llmerr.Upstream(fmt.Sprintf("google request: %v", err))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, decodeGoogleError(httpResp)
	}

	var wireResp wire.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return nil, llmerr.Streaming(fmt.Sprintf("decoding google response: %v", err))
	}

	canonical, err := wire.ResponseToCanonical(&wireResp, req.Model)
	if err != nil {
		return nil, llmerr.Upstream(err.Error())
	}
	return canonical, nil
}

func (p *GoogleProvider) CompleteStream(ctx context.Context, req *types.CompletionRequest) (<-chan StreamResult, error) {
	return p.CompleteStreamWithContext(ctx, req, RequestContext{})
}

// CompleteStreamWithContext uses streamGenerateContent with
// alt=sse — Gemini's REST endpoint emits a JSON array by default, but
// alt=sse switches it to standard `data: ` framed SSE like the other two
// dialects, which lets this driver share the bufio.Scanner line-reading
// pattern the whole provider package uses.
func (p *GoogleProvider) CompleteStreamWithContext(ctx context.Context, req *types.CompletionRequest, rc RequestContext) (<-chan StreamResult, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, llmerr.Upstream(fmt.Sprintf("rate limiter: %v", err))
	}

	wireReq := wire.FromCanonical(req)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, llmerr.Internal(err)
	}

	httpReq, err := p.newRequest(ctx, p.url(req.Model, "streamGenerateContent")+"&alt=sse", body, rc)
	if err != nil {
		return nil, llmerr.Internal(err)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llmerr.Upstream(fmt.Sprintf("google request: %v", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, decodeGoogleError(httpResp)
	}

	ch := make(chan StreamResult)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		nextToolIndex := 0
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")

			var chunk wire.Response
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				send(ctx, ch, StreamResult{Err: llmerr.Streaming(fmt.Sprintf("decoding google chunk: %v", err))})
				return
			}

			for _, ev := range wire.ChunkToEvents(&chunk, &nextToolIndex) {
				send(ctx, ch, StreamResult{Event: ev})
			}
		}

		if err := scanner.Err(); err != nil {
			send(ctx, ch, StreamResult{Err: llmerr.Streaming(fmt.Sprintf("reading google stream: %v", err))})
			return
		}
		send(ctx, ch, StreamResult{Event: types.DoneEvent})
	}()

	return ch, nil
}

// googleListModelsResponse mirrors Gemini's GET /models envelope; Name is the
// full "models/gemini-..." resource path, trimmed to the bare model id.
type googleListModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

// ListModels satisfies discovery.Lister by calling Gemini's models.list
// endpoint. Models that don't support generateContent (e.g. embedding-only
// models) are filtered out.
func (p *GoogleProvider) ListModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/models?key=%s", p.baseURL, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("google: building models request: %w", err)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google: listing models: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, decodeGoogleError(httpResp)
	}

	var parsed googleListModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("google: decoding models response: %w", err)
	}

	out := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		if !slices.Contains(m.SupportedGenerationMethods, "generateContent") {
			continue
		}
		out = append(out, strings.TrimPrefix(m.Name, "models/"))
	}
	return out, nil
}

func decodeGoogleError(resp *http.Response) error {
	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
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

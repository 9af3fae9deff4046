// Package provider defines the Provider interface and the concrete LLM
// backend adapters (OpenAI-compatible, Anthropic, Google, AWS Bedrock).
// Every adapter speaks canonical internal/types in and out; the rest of
// the gateway — handlers, cache, router, state — never touches a
// provider-specific wire shape.
package provider

import (
	"context"
	"net/http"
	"strconv"

	"github.com/omnidotdev/synapse/internal/headers"
	"github.com/omnidotdev/synapse/internal/types"
	"golang.org/x/time/rate"
)

// Capabilities describes what a provider driver can do. The routing
// layer's capability filter reads ModelProfile flags, not this value, and
// the handlers do not consult it.
type Capabilities struct {
	Streaming    bool
	ToolCalling  bool
	Vision       bool
	LongContext  bool
}

// Provider is the interface every LLM backend adapter satisfies.
type Provider interface {
	// Name returns the provider identifier used in routing decisions,
	// logs, and the X-Synapse-Provider response header.
	Name() string

	Capabilities() Capabilities

	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error)

	// CompleteStream sends a request and returns a channel of
	// canonical StreamEvents. The channel is closed after a Done event
	// or an error; callers should stop reading once either appears.
	CompleteStream(ctx context.Context, req *types.CompletionRequest) (<-chan StreamResult, error)
}

// StreamResult wraps one canonical stream event with an error slot so a
// mid-stream failure can be surfaced without a panic or a second
// channel; Err is set on at most the last value sent before the channel
// closes.
type StreamResult struct {
	Event types.StreamEvent
	Err   error
}

// RequestContext carries the per-request values a driver needs beyond
// the canonical request itself: the original client request's headers
// (source for the provider's configured header-forwarding rules), and
// the forwarded client API key when bring-your-own-key
// (forward_authorization) is configured for this provider.
type RequestContext struct {
	IncomingHeaders http.Header
	ForwardedAPIKey string
}

// resolveAPIKey returns the forwarded client key when the provider is
// configured with forward_authorization and the client supplied one,
// otherwise the provider's own configured key.
func resolveAPIKey(configured string, rc RequestContext, forwardAuthorization bool) string {
	if forwardAuthorization && rc.ForwardedAPIKey != "" {
		return rc.ForwardedAPIKey
	}
	return configured
}

// applyHeaders sets the caller-forwarded/inserted headers on an outgoing
// upstream request, built from an arbitrary incoming header set (usually
// the original client request's headers).
func applyHeaders(req *http.Request, incoming http.Header, rules []headers.Rule) {
	for name, values := range headers.Apply(incoming, rules) {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
}

// RateLimiter wraps golang.org/x/time/rate for one provider's configured
// requests-per-second rate and burst size; nil is a valid no-op limiter.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// retryAfterSeconds parses a Retry-After header value, defaulting to 0
// (meaning "unspecified") when absent or non-numeric.
func retryAfterSeconds(header string) int {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return seconds
}

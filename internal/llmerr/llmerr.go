// Package llmerr defines the error taxonomy shared by the request pipeline
// and the ingress handlers: every error the core returns carries an HTTP
// status, a retryability flag, and a dialect-agnostic client-facing message.
package llmerr

import "fmt"

// Kind classifies an Error for retry and HTTP-mapping purposes.
type Kind int

const (
	KindModelNotFound Kind = iota
	KindProviderNotFound
	KindInvalidRequest
	KindUnauthorized
	KindRateLimited
	KindUpstream
	KindStreaming
	KindInternal
)

// Error is the gateway's single error type. Construct one with the
// package-level helpers below rather than composite literals.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds; only meaningful for KindRateLimited
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the failover loop (§4.6) should try alternates
// after this error.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindUpstream, KindStreaming, KindRateLimited, KindInternal:
		return true
	default:
		return false
	}
}

// StatusCode returns the HTTP status this error maps to.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindModelNotFound, KindProviderNotFound:
		return 404
	case KindInvalidRequest:
		return 400
	case KindUnauthorized:
		return 401
	case KindRateLimited:
		return 429
	case KindUpstream:
		return 502
	case KindStreaming:
		return 500
	default:
		return 500
	}
}

// ErrorType returns the dialect-neutral error-type tag used in both the
// OpenAI and Anthropic error envelopes.
func (e *Error) ErrorType() string {
	switch e.Kind {
	case KindModelNotFound, KindProviderNotFound:
		return "not_found_error"
	case KindInvalidRequest:
		return "invalid_request_error"
	case KindUnauthorized:
		return "authentication_error"
	case KindRateLimited:
		return "rate_limit_error"
	case KindUpstream:
		return "upstream_error"
	case KindStreaming:
		return "streaming_error"
	default:
		return "internal_error"
	}
}

// ClientMessage returns the message safe to expose to clients. Internal
// errors never leak their real cause.
func (e *Error) ClientMessage() string {
	if e.Kind == KindInternal {
		return "an internal error occurred"
	}
	return e.Error()
}

func ModelNotFound(model string) *Error {
	return &Error{Kind: KindModelNotFound, Message: fmt.Sprintf("model not found: %q", model)}
}

func ProviderNotFound(provider string) *Error {
	return &Error{Kind: KindProviderNotFound, Message: fmt.Sprintf("provider not found: %q", provider)}
}

func InvalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Message: "unauthorized"}
}

func RateLimited(retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limited", RetryAfter: retryAfter}
}

func Upstream(msg string) *Error {
	return &Error{Kind: KindUpstream, Message: msg}
}

func Streaming(msg string) *Error {
	return &Error{Kind: KindStreaming, Message: msg}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", cause: cause}
}

// As extracts an *Error from any error, following Unwrap chains.
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

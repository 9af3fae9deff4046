package llmerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, Upstream("boom").Retryable())
	assert.True(t, Streaming("boom").Retryable())
	assert.True(t, RateLimited(5).Retryable())
	assert.True(t, Internal(errors.New("x")).Retryable())

	assert.False(t, ModelNotFound("m").Retryable())
	assert.False(t, ProviderNotFound("p").Retryable())
	assert.False(t, InvalidRequest("bad").Retryable())
	assert.False(t, Unauthorized().Retryable())
}

func TestStatusCodeAndType(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
		typ    string
	}{
		{ModelNotFound("m"), 404, "not_found_error"},
		{ProviderNotFound("p"), 404, "not_found_error"},
		{InvalidRequest("bad"), 400, "invalid_request_error"},
		{Unauthorized(), 401, "authentication_error"},
		{RateLimited(1), 429, "rate_limit_error"},
		{Upstream("x"), 502, "upstream_error"},
		{Streaming("x"), 500, "streaming_error"},
		{Internal(errors.New("x")), 500, "internal_error"},
	}

	for _, c := range cases {
		assert.Equal(t, c.status, c.err.StatusCode())
		assert.Equal(t, c.typ, c.err.ErrorType())
	}
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal(errors.New("leaked secret"))
	assert.Equal(t, "an internal error occurred", err.ClientMessage())
	assert.Contains(t, err.Error(), "leaked secret")
}

func TestAsUnwraps(t *testing.T) {
	inner := Upstream("bad gateway")
	wrapped := fmt.Errorf("dispatch failed: %w", inner)

	found, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindUpstream, found.Kind)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

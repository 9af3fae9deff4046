package headers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardRenames(t *testing.T) {
	incoming := http.Header{"X-Tenant": {"acme"}}
	name, ok := ParseNameOrPattern("X-Tenant")
	require.True(t, ok)

	result := Apply(incoming, []Rule{
		{Kind: KindForward, Name: name, Rename: "X-Upstream-Tenant"},
	})

	assert.Equal(t, "acme", result.Get("X-Upstream-Tenant"))
	assert.Empty(t, result.Get("X-Tenant"))
}

func TestForwardDeniesHopByHopHeaders(t *testing.T) {
	incoming := http.Header{"Connection": {"keep-alive"}}
	name, _ := ParseNameOrPattern("Connection")

	result := Apply(incoming, []Rule{{Kind: KindForward, Name: name}})

	assert.Empty(t, result)
}

func TestPatternForwardMatchesMultiple(t *testing.T) {
	incoming := http.Header{
		"X-Trace-Id": {"abc"},
		"X-Span-Id":  {"def"},
		"Other":      {"ignored"},
	}
	pattern, ok := ParseNameOrPattern("X-.*")
	require.True(t, ok)

	result := Apply(incoming, []Rule{{Kind: KindForward, Name: pattern}})

	assert.Equal(t, "abc", result.Get("X-Trace-Id"))
	assert.Equal(t, "def", result.Get("X-Span-Id"))
	assert.Empty(t, result.Get("Other"))
}

func TestInsertStaticHeader(t *testing.T) {
	result := Apply(http.Header{}, []Rule{
		{Kind: KindInsert, InsertName: "X-Gateway", InsertValue: "synapse"},
	})
	assert.Equal(t, "synapse", result.Get("X-Gateway"))
}

func TestRenameDuplicateKeepsOriginal(t *testing.T) {
	incoming := http.Header{"Authorization": {"Bearer tok"}}
	result := Apply(incoming, []Rule{
		{Kind: KindForward, Name: NameOrPattern{Name: "Authorization"}},
		{Kind: KindRenameDuplicate, DupName: "Authorization", DupRename: "X-Forwarded-Auth"},
	})

	assert.Equal(t, "Bearer tok", result.Get("Authorization"))
	assert.Equal(t, "Bearer tok", result.Get("X-Forwarded-Auth"))
}

func TestEmptyRulesForwardsNothing(t *testing.T) {
	incoming := http.Header{"X-Anything": {"value"}}
	result := Apply(incoming, nil)
	assert.Empty(t, result)
}

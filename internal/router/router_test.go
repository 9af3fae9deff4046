package router

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExplicitProviderPrefix(t *testing.T) {
	r := New(map[string]ProviderFilter{
		"openai": {},
	}, []string{"openai"})

	got, err := r.Resolve("openai/gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, Resolved{ProviderName: "openai", ModelID: "gpt-4o", ExplicitProvider: true}, got)
}

func TestResolveExplicitProviderUnknownReturnsProviderNotFound(t *testing.T) {
	r := New(map[string]ProviderFilter{"openai": {}}, []string{"openai"})
	_, err := r.Resolve("bedrock/claude-3")
	assert.ErrorContains(t, err, "bedrock")
}

func TestResolveReverseAlias(t *testing.T) {
	r := New(map[string]ProviderFilter{
		"openai": {Aliases: map[string]string{"gpt-4o-2024-08-06": "gpt-4o"}},
	}, []string{"openai"})

	got, err := r.Resolve("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-2024-08-06", got.ModelID)
}

func TestResolveDiscoveredListFallback(t *testing.T) {
	r := New(map[string]ProviderFilter{"openai": {}}, []string{"openai"})
	r.SetKnownModels("openai", []string{"o3-mini"})

	got, err := r.Resolve("o3-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", got.ProviderName)
}

func TestResolveExcludedModelIsNotFound(t *testing.T) {
	r := New(map[string]ProviderFilter{
		"openai": {Exclude: []*regexp.Regexp{regexp.MustCompile(`^gpt-3\.5`)}},
	}, []string{"openai"})

	_, err := r.Resolve("gpt-3.5-turbo")
	assert.Error(t, err)
}

func TestResolveFallsBackToFirstNonExcludingProvider(t *testing.T) {
	r := New(map[string]ProviderFilter{
		"openai":    {Exclude: []*regexp.Regexp{regexp.MustCompile(`claude`)}},
		"anthropic": {},
	}, []string{"openai", "anthropic"})

	got, err := r.Resolve("claude-3-5-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got.ProviderName)
}

func TestFindEquivalentsExcludesSelfAndReturnsRemainder(t *testing.T) {
	groups := map[string]EquivalenceGroup{
		"sonnet-tier": {"anthropic/claude-3-5-sonnet", "bedrock/anthropic.claude-3-5-sonnet", "openai/gpt-4o"},
	}

	got := FindEquivalents("anthropic", "claude-3-5-sonnet", groups)
	require.Len(t, got, 2)
	assert.Equal(t, "bedrock", got[0].ProviderName)
	assert.Equal(t, "openai", got[1].ProviderName)
}

func TestMapRoutingClass(t *testing.T) {
	assert.Equal(t, RoutingOverride{ForceStrategy: "cost"}, MapRoutingClass("fast"))
	assert.Equal(t, RoutingOverride{ForceStrategy: "cost"}, MapRoutingClass("cheap"))
	assert.Equal(t, RoutingOverride{ForceStrategy: "threshold", QualityFloor: 0.9}, MapRoutingClass("best"))
	assert.Equal(t, RoutingOverride{}, MapRoutingClass("auto"))
}

func TestListModelsAppliesFilterAndAlias(t *testing.T) {
	r := New(map[string]ProviderFilter{
		"openai": {
			Exclude: []*regexp.Regexp{regexp.MustCompile(`embedding`)},
			Aliases: map[string]string{"gpt-4o-2024-08-06": "gpt-4o"},
		},
	}, []string{"openai"})
	r.SetKnownModels("openai", []string{"gpt-4o-2024-08-06", "text-embedding-3-large"})

	got := r.ListModels()
	require.Len(t, got, 1)
	assert.Equal(t, ModelListing{DisplayName: "gpt-4o", UpstreamName: "gpt-4o-2024-08-06"}, got[0])
}

package routing

import (
	"testing"
	"time"

	"github.com/omnidotdev/synapse/internal/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProfiles() []ModelProfile {
	return []ModelProfile{
		{Provider: "openai", Model: "gpt-cheap", Quality: 0.6, InputPricePerMToken: 0.5, OutputPricePerMToken: 1.5, ToolCalling: true},
		{Provider: "anthropic", Model: "claude-best", Quality: 0.95, InputPricePerMToken: 10, OutputPricePerMToken: 30, ToolCalling: true, Vision: true, LongContext: true},
	}
}

func TestRegistryByQualityAndCost(t *testing.T) {
	reg := NewRegistry(sampleProfiles())
	assert.Equal(t, "claude-best", reg.ByQuality()[0].Model)
	assert.Equal(t, "gpt-cheap", reg.ByCost(1000, 500)[0].Model)
}

func TestFeedbackTrackerRecordsAndSnapshots(t *testing.T) {
	tr := NewFeedbackTracker()
	tr.Record(Sample{Provider: "openai", Model: "gpt-cheap", Latency: 100 * time.Millisecond, Success: true})
	tr.Record(Sample{Provider: "openai", Model: "gpt-cheap", Latency: 200 * time.Millisecond, Success: true})
	tr.Record(Sample{Provider: "openai", Model: "gpt-cheap", Success: false})

	snap := tr.Snapshot("openai", "gpt-cheap")
	assert.Equal(t, 2, snap.SampleCount)
	assert.InDelta(t, 1.0/3.0, snap.ErrorRate, 0.001)
}

func TestEffectiveQualityDemotesOnlyAboveThreshold(t *testing.T) {
	profile := ModelProfile{Provider: "p", Model: "m", Quality: 0.8}
	tr := NewFeedbackTracker()

	assert.Equal(t, 0.8, EffectiveQuality(profile, tr))

	for i := 0; i < 9; i++ {
		tr.Record(Sample{Provider: "p", Model: "m", Success: true, Latency: time.Millisecond})
	}
	tr.Record(Sample{Provider: "p", Model: "m", Success: false})
	// 10 total requests, only 9 successes recorded as latency samples... need >= MinFeedbackSamples successful samples
	assert.Equal(t, 0.8, EffectiveQuality(profile, tr), "below min sample count should not demote")
}

func TestThresholdStrategyLowComplexityPicksCheap(t *testing.T) {
	strategy := &ThresholdStrategy{Config: ThresholdConfig{QualityFloor: 0.5}}
	reg := NewRegistry(sampleProfiles())

	decision, err := strategy.Route(analysis.Profile{Complexity: analysis.ComplexityLow}, reg, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-cheap", decision.Model)
}

func TestThresholdStrategyHighComplexityPicksBest(t *testing.T) {
	strategy := &ThresholdStrategy{Config: ThresholdConfig{QualityFloor: 0.5}}
	reg := NewRegistry(sampleProfiles())

	decision, err := strategy.Route(analysis.Profile{Complexity: analysis.ComplexityHigh}, reg, nil)
	require.NoError(t, err)
	assert.Equal(t, "claude-best", decision.Model)
}

func TestCostStrategyRespectsBudget(t *testing.T) {
	strategy := &CostStrategy{Config: CostConfig{MaxCostPerMillionTokens: 0.001}}
	reg := NewRegistry(sampleProfiles())

	decision, err := strategy.Route(analysis.Profile{EstimatedInputTokens: 100}, reg, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-cheap", decision.Model)
}

func TestCostStrategyFailsWhenNothingFits(t *testing.T) {
	strategy := &CostStrategy{Config: CostConfig{MaxCostPerMillionTokens: 0.0000001}}
	reg := NewRegistry(sampleProfiles())

	_, err := strategy.Route(analysis.Profile{EstimatedInputTokens: 1_000_000}, reg, nil)
	assert.Error(t, err)
}

func TestCapabilityFilteringExcludesNonVision(t *testing.T) {
	registry := NewRegistry(sampleProfiles())
	strategies := NewStrategyRegistry(Config{Threshold: ThresholdConfig{QualityFloor: 0.5}})

	decision, err := Route(
		analysis.Profile{Complexity: analysis.ComplexityLow, RequiredCapabilities: analysis.RequiredCapabilities{Vision: true}},
		registry, string(StrategyThreshold), strategies, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, "claude-best", decision.Model)
}

func TestCascadeConfidenceBlankResponse(t *testing.T) {
	assert.Equal(t, 0.0, EstimateConfidence("", 100))
}

func TestCascadeConfidencePenalizesShortReplyToLongQuery(t *testing.T) {
	conf := EstimateConfidence("ok sure", 600)
	assert.InDelta(t, 0.4, conf, 0.01)
}

func TestCascadeConfidencePenalizesHedging(t *testing.T) {
	conf := EstimateConfidence("I'm not sure, but maybe try X", 10)
	assert.InDelta(t, 0.55, conf, 0.01)
}

func TestShouldEscalateUsesThreshold(t *testing.T) {
	assert.True(t, ShouldEscalate("I don't know the answer", 10, 0.7))
	assert.False(t, ShouldEscalate("The answer is 42, definitively.", 10, 0.5))
}

func TestFailoverStateDemotesUnhealthyPrimary(t *testing.T) {
	fs := NewFailoverState(0.5, time.Minute)
	feedback := NewFeedbackTracker()
	for i := 0; i < 10; i++ {
		feedback.Record(Sample{Provider: "a", Model: "", Success: false})
	}
	fs.UpdateHealth(feedback, []string{"a", "b"})

	decision := Decision{Provider: "a", Model: "m1", Alternatives: []ModelProfile{{Provider: "b", Model: "m2"}}}
	result, err := fs.Apply(decision)
	require.NoError(t, err)
	assert.Equal(t, "b", result.Provider)
	assert.Equal(t, "a", result.Alternatives[0].Provider)
}

func TestFailoverStateAllDownReturnsError(t *testing.T) {
	fs := NewFailoverState(0.5, time.Minute)
	feedback := NewFeedbackTracker()
	for i := 0; i < 10; i++ {
		feedback.Record(Sample{Provider: "a", Model: "", Success: false})
		feedback.Record(Sample{Provider: "b", Model: "", Success: false})
	}
	fs.UpdateHealth(feedback, []string{"a", "b"})

	decision := Decision{Provider: "a", Model: "m1", Alternatives: []ModelProfile{{Provider: "b", Model: "m2"}}}
	_, err := fs.Apply(decision)
	assert.Error(t, err)
}

package routing

import (
	"sort"

	"github.com/omnidotdev/synapse/internal/analysis"
)

// ScoreStrategy picks the model maximizing a weighted multi-objective
// score combining quality, normalized cost, normalized latency, and an
// error-rate penalty.
type ScoreStrategy struct {
	Config ScoreConfig
}

func (s *ScoreStrategy) Name() string { return string(StrategyScore) }

func (s *ScoreStrategy) Route(profile analysis.Profile, registry *Registry, feedback *FeedbackTracker) (Decision, error) {
	profiles := registry.Profiles()
	if len(profiles) == 0 {
		return Decision{}, &ErrNoModelAvailable{Reason: "registry is empty"}
	}

	estimatedOutput := int(float64(profile.EstimatedInputTokens) * DefaultOutputRatio)

	maxCost := s.Config.MaxCostPerM
	maxLatency := s.Config.MaxLatencyMs
	if maxCost <= 0 {
		maxCost = maxObservedCost(profiles, profile.EstimatedInputTokens, estimatedOutput)
	}
	if maxLatency <= 0 {
		maxLatency = maxObservedLatency(profiles, feedback)
	}
	if maxCost <= 0 {
		maxCost = 1
	}
	if maxLatency <= 0 {
		maxLatency = 1
	}

	type scored struct {
		profile ModelProfile
		final   float64
	}
	var ranked []scored

	minSamples := s.Config.MinSamples
	if minSamples <= 0 {
		minSamples = MinFeedbackSamples
	}

	for _, p := range profiles {
		cost := p.EstimateCost(profile.EstimatedInputTokens, estimatedOutput)
		costScore := 1 - cost/maxCost
		latency := resolveLatency(p, feedback)
		latencyScore := 1 - latency/maxLatency

		raw := s.Config.WeightQuality*p.Quality + s.Config.WeightCost*costScore + s.Config.WeightLatency*latencyScore

		errorRate := 0.0
		if feedback != nil {
			snap := feedback.Snapshot(p.Provider, p.Model)
			if snap.SampleCount >= minSamples {
				errorRate = snap.ErrorRate
			}
		}
		final := (1 - s.Config.ErrorPenalty*errorRate) * raw

		ranked = append(ranked, scored{profile: p, final: final})
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].final > ranked[j].final })

	best := ranked[0].profile
	alternatives := make([]ModelProfile, 0, len(ranked)-1)
	for _, r := range ranked[1:] {
		alternatives = append(alternatives, r.profile)
	}

	return Decision{
		Provider:     best.Provider,
		Model:        best.Model,
		Reason:       ReasonScoreOptimized,
		Alternatives: alternatives,
	}, nil
}

func maxObservedCost(profiles []ModelProfile, inputTokens, outputTokens int) float64 {
	max := 0.0
	for _, p := range profiles {
		if c := p.EstimateCost(inputTokens, outputTokens); c > max {
			max = c
		}
	}
	return max
}

func maxObservedLatency(profiles []ModelProfile, feedback *FeedbackTracker) float64 {
	max := 0.0
	for _, p := range profiles {
		if l := resolveLatency(p, feedback); l > max {
			max = l
		}
	}
	return max
}

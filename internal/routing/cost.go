package routing

import (
	"sort"

	"github.com/omnidotdev/synapse/internal/analysis"
)

// CostStrategy picks the highest-quality model within an optional budget.
type CostStrategy struct {
	Config CostConfig
}

func (s *CostStrategy) Name() string { return string(StrategyCost) }

func (s *CostStrategy) Route(profile analysis.Profile, registry *Registry, feedback *FeedbackTracker) (Decision, error) {
	if s.Config.MaxCostPerMillionTokens <= 0 {
		p, ok := registry.BestQuality()
		if !ok {
			return Decision{}, &ErrNoModelAvailable{Reason: "registry is empty"}
		}
		return Decision{
			Provider:     p.Provider,
			Model:        p.Model,
			Reason:       ReasonBestQuality,
			Alternatives: registry.Alternatives(p.Provider, p.Model),
		}, nil
	}

	estimatedOutput := float64(profile.EstimatedInputTokens) * DefaultOutputRatio
	var affordable []ModelProfile
	for _, p := range registry.Profiles() {
		cost := p.EstimateCost(profile.EstimatedInputTokens, int(estimatedOutput))
		if cost <= s.Config.MaxCostPerMillionTokens {
			affordable = append(affordable, p)
		}
	}
	if len(affordable) == 0 {
		return Decision{}, &ErrNoModelAvailable{Reason: "no model fits budget"}
	}

	sort.Slice(affordable, func(i, j int) bool {
		return EffectiveQuality(affordable[i], feedback) > EffectiveQuality(affordable[j], feedback)
	})

	best := affordable[0]
	return Decision{
		Provider:     best.Provider,
		Model:        best.Model,
		Reason:       ReasonCostConstrained,
		Alternatives: affordable[1:],
	}, nil
}

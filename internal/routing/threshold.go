package routing

import "github.com/omnidotdev/synapse/internal/analysis"

// ThresholdStrategy routes Low-complexity queries to a cheap model and
// everything else to the highest-quality one, either via explicit config
// overrides or registry lookup.
type ThresholdStrategy struct {
	Config ThresholdConfig
}

func (s *ThresholdStrategy) Name() string { return string(StrategyThreshold) }

func (s *ThresholdStrategy) Route(profile analysis.Profile, registry *Registry, feedback *FeedbackTracker) (Decision, error) {
	if s.Config.LowComplexityModel != "" && s.Config.HighComplexityModel != "" {
		return s.routeByOverride(profile)
	}
	return s.routeByRegistry(profile, registry, feedback)
}

func (s *ThresholdStrategy) routeByOverride(profile analysis.Profile) (Decision, error) {
	target := s.Config.HighComplexityModel
	reason := ReasonHighComplexity
	if profile.Complexity == analysis.ComplexityLow {
		target = s.Config.LowComplexityModel
		reason = ReasonLowComplexity
	}

	provider, model, ok := splitProviderModel(target)
	if !ok {
		return Decision{}, &ErrNoModelAvailable{Reason: "invalid threshold override format"}
	}

	other := s.Config.HighComplexityModel
	if reason == ReasonHighComplexity {
		other = s.Config.LowComplexityModel
	}
	var alternatives []ModelProfile
	if op, om, ok := splitProviderModel(other); ok {
		alternatives = []ModelProfile{{Provider: op, Model: om}}
	}

	return Decision{Provider: provider, Model: model, Reason: reason, Alternatives: alternatives}, nil
}

func (s *ThresholdStrategy) routeByRegistry(profile analysis.Profile, registry *Registry, feedback *FeedbackTracker) (Decision, error) {
	if profile.Complexity == analysis.ComplexityLow {
		if p, ok := registry.CheapestAboveQuality(s.Config.QualityFloor, feedback); ok {
			return Decision{
				Provider:     p.Provider,
				Model:        p.Model,
				Reason:       ReasonLowComplexity,
				Alternatives: registry.Alternatives(p.Provider, p.Model),
			}, nil
		}
		return Decision{}, &ErrNoModelAvailable{Reason: "no model meets quality floor"}
	}

	p, ok := registry.BestQuality()
	if !ok {
		return Decision{}, &ErrNoModelAvailable{Reason: "registry is empty"}
	}
	return Decision{
		Provider:     p.Provider,
		Model:        p.Model,
		Reason:       ReasonHighComplexity,
		Alternatives: registry.Alternatives(p.Provider, p.Model),
	}, nil
}

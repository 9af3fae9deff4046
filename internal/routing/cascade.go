package routing

import (
	"strings"

	"github.com/omnidotdev/synapse/internal/analysis"
)

// hedgingPhrases are low-confidence markers checked case-insensitively
// against the buffered response text.
var hedgingPhrases = []string{
	"i'm not sure", "i don't know", "i'm uncertain", "it's unclear",
	"i cannot", "i can't determine", "i may be wrong", "this might not be",
}

// CascadeStrategy resolves the (initial, escalation) model pair for the
// cascade streaming flow (spec §4.9); the buffering/confidence decision
// itself lives in the state package, which owns the stream.
type CascadeStrategy struct {
	Config CascadeConfig
}

func (s *CascadeStrategy) Name() string { return string(StrategyCascade) }

func (s *CascadeStrategy) Route(profile analysis.Profile, registry *Registry, feedback *FeedbackTracker) (Decision, error) {
	initial, err := s.resolveInitial(registry, feedback)
	if err != nil {
		return Decision{}, err
	}
	escalation, err := s.resolveEscalation(registry)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Provider:     initial.Provider,
		Model:        initial.Model,
		Reason:       ReasonCascadeInitial,
		Alternatives: []ModelProfile{escalation},
	}, nil
}

func (s *CascadeStrategy) resolveInitial(registry *Registry, feedback *FeedbackTracker) (ModelProfile, error) {
	if s.Config.InitialModel != "" {
		if provider, model, ok := splitProviderModel(s.Config.InitialModel); ok {
			if p, found := registry.Find(provider, model); found {
				return p, nil
			}
			return ModelProfile{Provider: provider, Model: model}, nil
		}
	}
	cheapest := registry.ByCost(1000, 500)
	if len(cheapest) == 0 {
		return ModelProfile{}, &ErrNoModelAvailable{Reason: "registry is empty"}
	}
	return cheapest[0], nil
}

func (s *CascadeStrategy) resolveEscalation(registry *Registry) (ModelProfile, error) {
	if s.Config.EscalationModel != "" {
		if provider, model, ok := splitProviderModel(s.Config.EscalationModel); ok {
			if p, found := registry.Find(provider, model); found {
				return p, nil
			}
			return ModelProfile{Provider: provider, Model: model}, nil
		}
	}
	best, ok := registry.BestQuality()
	if !ok {
		return ModelProfile{}, &ErrNoModelAvailable{Reason: "no escalation model available"}
	}
	return best, nil
}

// EstimateConfidence scores a buffered response in [0,1]: high confidence
// means the gateway should commit to the initial model's output rather
// than escalate to a stronger one.
func EstimateConfidence(responseText string, queryTokens int) float64 {
	trimmed := strings.TrimSpace(responseText)
	if trimmed == "" {
		return 0
	}

	confidence := 0.7

	if queryTokens > 500 && wordCount(trimmed) < 20 {
		confidence -= 0.3
	}

	lower := strings.ToLower(trimmed)
	for _, phrase := range hedgingPhrases {
		if strings.Contains(lower, phrase) {
			confidence -= 0.15
		}
	}

	return clamp01(confidence)
}

// ShouldEscalate reports whether the buffered response falls below the
// configured confidence threshold.
func ShouldEscalate(responseText string, queryTokens int, confidenceThreshold float64) bool {
	return EstimateConfidence(responseText, queryTokens) < confidenceThreshold
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

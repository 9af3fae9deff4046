package routing

import (
	"fmt"
	"strings"

	"github.com/omnidotdev/synapse/internal/analysis"
)

// Reason records why a routing decision picked the model it did.
type Reason string

const (
	ReasonLowComplexity    Reason = "low_complexity"
	ReasonHighComplexity   Reason = "high_complexity"
	ReasonBestQuality      Reason = "best_quality"
	ReasonCostConstrained  Reason = "cost_constrained"
	ReasonCascadeInitial   Reason = "cascade_initial"
	ReasonCascadeEscalated Reason = "cascade_escalated"
	ReasonScoreOptimized   Reason = "score_optimized"
)

// Decision is a routing strategy's output.
type Decision struct {
	Provider     string
	Model        string
	Reason       Reason
	Alternatives []ModelProfile
}

// Strategy picks a concrete model from the registry given a query profile.
type Strategy interface {
	Name() string
	Route(profile analysis.Profile, registry *Registry, feedback *FeedbackTracker) (Decision, error)
}

// ErrNoModelAvailable is returned when no registered profile satisfies a
// strategy's constraints.
type ErrNoModelAvailable struct{ Reason string }

func (e *ErrNoModelAvailable) Error() string {
	return fmt.Sprintf("no model available: %s", e.Reason)
}

// StrategyRegistry is a by-name lookup of pluggable strategies, pre-populated with
// the four built-ins (spec §4.8 says strategies are "pluggable... by
// name" but does not specify a registration mechanism; this is the
// supplemented piece from the original source's StrategyRegistry).
type StrategyRegistry struct {
	strategies map[string]Strategy
}

// NewStrategyRegistry builds a registry pre-populated with Threshold,
// Cost, Score, and Cascade.
func NewStrategyRegistry(cfg Config) *StrategyRegistry {
	r := &StrategyRegistry{strategies: make(map[string]Strategy)}
	r.Register(&ThresholdStrategy{Config: cfg.Threshold})
	r.Register(&CostStrategy{Config: cfg.Cost})
	r.Register(&ScoreStrategy{Config: cfg.Score})
	r.Register(&CascadeStrategy{Config: cfg.Cascade})
	return r
}

// Register adds or replaces a named strategy.
func (r *StrategyRegistry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Resolve looks up a strategy by name.
func (r *StrategyRegistry) Resolve(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// filterByCapabilities drops profiles lacking a capability the query
// requires (spec §4.8: capability filtering runs before any strategy).
func filterByCapabilities(profiles []ModelProfile, required analysis.RequiredCapabilities) []ModelProfile {
	var out []ModelProfile
	for _, p := range profiles {
		if required.ToolCalling && !p.ToolCalling {
			continue
		}
		if required.Vision && !p.Vision {
			continue
		}
		if required.LongContext && !p.LongContext {
			continue
		}
		out = append(out, p)
	}
	return out
}

// splitProviderModel parses a "provider/model" configured override string.
func splitProviderModel(s string) (provider, model string, ok bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Route runs the full smart-routing pipeline: capability filtering, then
// the named strategy (spec §4.7-4.8).
func Route(
	profile analysis.Profile,
	registry *Registry,
	strategyName string,
	strategies *StrategyRegistry,
	feedback *FeedbackTracker,
) (Decision, error) {
	strategy, ok := strategies.Resolve(strategyName)
	if !ok {
		return Decision{}, fmt.Errorf("unknown routing strategy: %q", strategyName)
	}

	eligible := filterByCapabilities(registry.Profiles(), profile.RequiredCapabilities)
	if len(eligible) == 0 {
		return Decision{}, &ErrNoModelAvailable{Reason: "no profile satisfies required capabilities"}
	}

	scoped := NewRegistry(eligible)
	return strategy.Route(profile, scoped, feedback)
}

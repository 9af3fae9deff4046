package routing

import (
	"sync"
	"time"
)

// FailoverState demotes a routing decision's primary provider when its
// observed error rate crosses a threshold, promoting the first healthy
// alternative instead. This is distinct from health.Tracker's
// consecutive-failure circuit breaker: health.Tracker gates the
// provider-driver retry loop (spec §4.6), while FailoverState reorders a
// routing decision's alternatives *before* that loop ever runs, using the
// feedback tracker's error rate rather than a consecutive-failure count
// (grounded in the original source's synapse-routing/strategy/failover.rs,
// a feature spec.md's distillation dropped).
type FailoverState struct {
	errorThreshold  float64
	recoveryWindow  time.Duration

	mu       sync.Mutex
	downSince map[string]time.Time
}

// NewFailoverState builds a FailoverState with the given error-rate
// threshold and recovery window.
func NewFailoverState(errorThreshold float64, recoveryWindow time.Duration) *FailoverState {
	return &FailoverState{
		errorThreshold: errorThreshold,
		recoveryWindow: recoveryWindow,
		downSince:      make(map[string]time.Time),
	}
}

// UpdateHealth re-evaluates every known provider's down/healthy state
// against current feedback, pruning any provider that has recovered past
// the recovery window.
func (f *FailoverState) UpdateHealth(feedback *FeedbackTracker, providers []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for provider, since := range f.downSince {
		if time.Since(since) >= f.recoveryWindow {
			delete(f.downSince, provider)
		}
	}

	for _, provider := range providers {
		if feedback.ErrorRate(provider, "") >= f.errorThreshold {
			if _, alreadyDown := f.downSince[provider]; !alreadyDown {
				f.downSince[provider] = time.Now()
			}
		}
	}
}

// IsHealthy reports whether provider is currently not marked down.
func (f *FailoverState) IsHealthy(provider string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, down := f.downSince[provider]
	return !down
}

// ErrAllProvidersDown is returned by Apply when no alternative is healthy.
type ErrAllProvidersDown struct{}

func (ErrAllProvidersDown) Error() string { return "all providers down" }

// Apply walks a routing decision's alternatives, promoting the first
// healthy one to the primary slot if the current primary is unhealthy; the
// demoted primary is appended to the new alternatives list.
func (f *FailoverState) Apply(decision Decision) (Decision, error) {
	if f.IsHealthy(decision.Provider) {
		return decision, nil
	}

	for i, alt := range decision.Alternatives {
		if !f.IsHealthy(alt.Provider) {
			continue
		}
		demoted := ModelProfile{Provider: decision.Provider, Model: decision.Model}
		newAlternatives := append(append([]ModelProfile{}, decision.Alternatives[:i]...), decision.Alternatives[i+1:]...)
		newAlternatives = append(newAlternatives, demoted)

		return Decision{
			Provider:     alt.Provider,
			Model:        alt.Model,
			Reason:       decision.Reason,
			Alternatives: newAlternatives,
		}, nil
	}

	return Decision{}, ErrAllProvidersDown{}
}

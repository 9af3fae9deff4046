// Package routing implements smart model routing (spec §4.8-4.9, §4.11):
// the model registry, feedback tracker, scoring, routing strategies, and
// the cascade confidence heuristic.
package routing

import (
	"sort"
	"sync"
)

// ModelProfile describes one (provider, model) pair's routing-relevant
// characteristics.
type ModelProfile struct {
	Provider              string
	Model                 string
	ContextWindow         int
	InputPricePerMToken   float64
	OutputPricePerMToken  float64
	Quality               float64
	ToolCalling           bool
	Vision                bool
	LongContext           bool
	ObservedLatencyP50Ms  float64 // 0 means unset
}

// ID returns the "provider/model" identifier used throughout routing and
// failover for equivalence lookups.
func (p ModelProfile) ID() string {
	return p.Provider + "/" + p.Model
}

// EstimateCost projects the dollar cost of a request with the given token
// counts from the profile's per-million-token prices.
func (p ModelProfile) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*p.InputPricePerMToken/1_000_000 +
		float64(outputTokens)*p.OutputPricePerMToken/1_000_000
}

// Registry holds the configured model profiles available to smart routing.
// It is immutable after construction aside from latency updates, which are
// applied under a short mutex (spec §5: no lock held across I/O).
type Registry struct {
	mu       sync.RWMutex
	profiles []ModelProfile
}

// NewRegistry builds a Registry from a fixed profile list.
func NewRegistry(profiles []ModelProfile) *Registry {
	cp := append([]ModelProfile(nil), profiles...)
	return &Registry{profiles: cp}
}

// Profiles returns a snapshot of every registered profile.
func (r *Registry) Profiles() []ModelProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ModelProfile(nil), r.profiles...)
}

// Find returns the profile for provider/model, if registered.
func (r *Registry) Find(provider, model string) (ModelProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.profiles {
		if p.Provider == provider && p.Model == model {
			return p, true
		}
	}
	return ModelProfile{}, false
}

// ByQuality returns profiles sorted by descending quality.
func (r *Registry) ByQuality() []ModelProfile {
	ps := r.Profiles()
	sort.Slice(ps, func(i, j int) bool { return ps[i].Quality > ps[j].Quality })
	return ps
}

// ByCost returns profiles sorted by ascending estimated cost for the given
// token counts.
func (r *Registry) ByCost(inputTokens, outputTokens int) []ModelProfile {
	ps := r.Profiles()
	sort.Slice(ps, func(i, j int) bool {
		return ps[i].EstimateCost(inputTokens, outputTokens) < ps[j].EstimateCost(inputTokens, outputTokens)
	})
	return ps
}

// CheapestAboveQuality returns the cheapest profile (by estimated cost for
// 1000 input / 500 output tokens) whose effective quality is at or above
// floor, or false if none qualifies.
func (r *Registry) CheapestAboveQuality(floor float64, feedback *FeedbackTracker) (ModelProfile, bool) {
	for _, p := range r.ByCost(1000, 500) {
		if EffectiveQuality(p, feedback) >= floor {
			return p, true
		}
	}
	return ModelProfile{}, false
}

// BestQuality returns the highest-quality profile, or false if the
// registry is empty.
func (r *Registry) BestQuality() (ModelProfile, bool) {
	ps := r.ByQuality()
	if len(ps) == 0 {
		return ModelProfile{}, false
	}
	return ps[0], true
}

// UpdateLatency records a freshly observed p50 latency for a profile,
// letting feedback-informed scoring react without waiting for the next
// discovery refresh.
func (r *Registry) UpdateLatency(provider, model string, p50Ms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.profiles {
		if r.profiles[i].Provider == provider && r.profiles[i].Model == model {
			r.profiles[i].ObservedLatencyP50Ms = p50Ms
			return
		}
	}
}

// Alternatives returns every profile other than the given one, in
// registry order — used by strategies that need a decision's alternatives
// list.
func (r *Registry) Alternatives(excludeProvider, excludeModel string) []ModelProfile {
	var out []ModelProfile
	for _, p := range r.Profiles() {
		if p.Provider == excludeProvider && p.Model == excludeModel {
			continue
		}
		out = append(out, p)
	}
	return out
}

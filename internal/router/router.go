// Package router implements the static model-name resolver (spec §4.4):
// mapping a client-supplied model string, optionally "provider/model"
// prefixed, to a concrete (provider, upstream model id) pair using
// configured aliases and include/exclude filters plus the live discovery
// snapshot.
package router

import (
	"regexp"
	"strings"
	"sync"

	"github.com/omnidotdev/synapse/internal/llmerr"
)

// RoutingClasses are the virtual model names intercepted before static
// resolution when smart routing is enabled.
var RoutingClasses = map[string]bool{"auto": true, "fast": true, "best": true, "cheap": true}

// ProviderFilter holds one provider's include/exclude regex lists and
// upstream-model aliases.
type ProviderFilter struct {
	Include []*regexp.Regexp
	Exclude []*regexp.Regexp
	// Aliases maps upstream model id -> display alias.
	Aliases map[string]string
}

func (f ProviderFilter) passes(model string) bool {
	if len(f.Include) > 0 {
		matched := false
		for _, re := range f.Include {
			if re.MatchString(model) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range f.Exclude {
		if re.MatchString(model) {
			return false
		}
	}
	return true
}

func (f ProviderFilter) reverseAlias(alias string) (string, bool) {
	for upstream, a := range f.Aliases {
		if a == alias {
			return upstream, true
		}
	}
	return "", false
}

func (f ProviderFilter) displayName(upstream string) string {
	if a, ok := f.Aliases[upstream]; ok {
		return a
	}
	return upstream
}

// Resolved is the outcome of resolving a model string.
type Resolved struct {
	ProviderName     string
	ModelID          string
	ExplicitProvider bool
}

// Router performs static model resolution against configured filters and
// the live discovery snapshot (owned by internal/discovery, injected here
// as a plain map accessor to keep this package free of the discovery
// goroutine's lifecycle concerns).
type Router struct {
	mu            sync.RWMutex
	filters       map[string]ProviderFilter // provider name -> filter
	knownModels   map[string][]string       // provider name -> discovered model ids
	providerOrder []string
}

// New builds a Router from provider filters. Provider iteration order
// follows providerOrder for the deterministic "first provider that admits
// this name" fallback pass.
func New(filters map[string]ProviderFilter, providerOrder []string) *Router {
	return &Router{
		filters:       filters,
		knownModels:   make(map[string][]string),
		providerOrder: providerOrder,
	}
}

// SetKnownModels atomically replaces one provider's discovered model list
// (called by internal/discovery on each refresh tick).
func (r *Router) SetKnownModels(provider string, models []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.knownModels[provider] = append([]string(nil), models...)
}

func (r *Router) knownModelsFor(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.knownModels[provider]
}

// Resolve implements the three-pass lookup of spec §4.4.
func (r *Router) Resolve(name string) (Resolved, error) {
	if provider, model, ok := strings.Cut(name, "/"); ok {
		filter, exists := r.filters[provider]
		if !exists {
			return Resolved{}, llmerr.ProviderNotFound(provider)
		}
		upstream := model
		if u, ok := filter.reverseAlias(model); ok {
			upstream = u
		}
		if !filter.passes(upstream) {
			return Resolved{}, llmerr.ModelNotFound(name)
		}
		return Resolved{ProviderName: provider, ModelID: upstream, ExplicitProvider: true}, nil
	}

	// Pass 2a: reverse-alias match.
	for _, provider := range r.providerOrder {
		filter := r.filters[provider]
		if upstream, ok := filter.reverseAlias(name); ok && filter.passes(upstream) {
			return Resolved{ProviderName: provider, ModelID: upstream}, nil
		}
	}

	// Pass 2b: discovered list contains the name verbatim.
	for _, provider := range r.providerOrder {
		filter := r.filters[provider]
		for _, known := range r.knownModelsFor(provider) {
			if known == name && filter.passes(known) {
				return Resolved{ProviderName: provider, ModelID: name}, nil
			}
		}
	}

	// Pass 3: first provider that doesn't exclude the name.
	for _, provider := range r.providerOrder {
		if r.filters[provider].passes(name) {
			return Resolved{ProviderName: provider, ModelID: name}, nil
		}
	}

	return Resolved{}, llmerr.ModelNotFound(name)
}

// ModelListing is one entry in the public /v1/models surface.
type ModelListing struct {
	DisplayName  string
	UpstreamName string
}

// ListModels returns every (display, upstream) pair across providers,
// filtered and with aliases substituted.
func (r *Router) ListModels() []ModelListing {
	var out []ModelListing
	for _, provider := range r.providerOrder {
		filter := r.filters[provider]
		for _, upstream := range r.knownModelsFor(provider) {
			if !filter.passes(upstream) {
				continue
			}
			out = append(out, ModelListing{DisplayName: filter.displayName(upstream), UpstreamName: upstream})
		}
	}
	return out
}

// EquivalenceGroup is a named ordered list of "provider/model" pairs
// declared mutually substitutable for failover.
type EquivalenceGroup []string

// FindEquivalents returns the ordered remainder of any group containing
// provider/model, excluding the pair itself.
func FindEquivalents(provider, model string, groups map[string]EquivalenceGroup) []Resolved {
	target := provider + "/" + model
	var out []Resolved
	for _, group := range groups {
		found := false
		for _, entry := range group {
			if entry == target {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		for _, entry := range group {
			if entry == target {
				continue
			}
			p, m, ok := strings.Cut(entry, "/")
			if ok {
				out = append(out, Resolved{ProviderName: p, ModelID: m})
			}
		}
	}
	return out
}

// MapRoutingClass returns the routing-strategy override implied by a
// virtual model class name: fast/cheap force Cost, best forces Threshold
// with a 0.9 quality floor, auto is a pass-through (spec §4.8,
// state.rs::map_routing_class).
type RoutingOverride struct {
	ForceStrategy string // empty means no override
	QualityFloor  float64
}

func MapRoutingClass(class string) RoutingOverride {
	switch class {
	case "fast", "cheap":
		return RoutingOverride{ForceStrategy: "cost"}
	case "best":
		return RoutingOverride{ForceStrategy: "threshold", QualityFloor: 0.9}
	default:
		return RoutingOverride{}
	}
}

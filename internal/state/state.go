// Package state ties together model resolution, smart routing, provider
// drivers, the circuit breaker, the response cache, and feedback into the
// two entrypoints the ingress handlers call: Complete and CompleteStream.
// It is the direct analogue of the original implementation's LlmState.
package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/omnidotdev/synapse/internal/analysis"
	"github.com/omnidotdev/synapse/internal/cache"
	"github.com/omnidotdev/synapse/internal/health"
	"github.com/omnidotdev/synapse/internal/llmerr"
	"github.com/omnidotdev/synapse/internal/provider"
	"github.com/omnidotdev/synapse/internal/router"
	"github.com/omnidotdev/synapse/internal/routing"
	"github.com/omnidotdev/synapse/internal/types"
)

// FailoverConfig parameterizes the provider-driver failover loop of spec
// §4.6, distinct from the per-provider circuit breaker (internal/health)
// and from routing's own feedback-error-rate avoidance
// (internal/routing.FailoverState).
type FailoverConfig struct {
	Enabled           bool
	MaxAttempts       int
	EquivalenceGroups map[string]router.EquivalenceGroup
}

// State is the shared, concurrency-safe core every request handler calls
// into. Construct one with New; it holds no per-request mutable state.
type State struct {
	router          *router.Router
	providers       map[string]provider.Provider
	providerNames   []string
	health          *health.Tracker
	failover        FailoverConfig
	routingConfig   routing.Config
	registry        *routing.Registry
	feedback        *routing.FeedbackTracker
	routingFailover *routing.FailoverState
	cache           *cache.Cache
}

// New assembles a State from its already-constructed dependencies; it
// does not build providers itself (cmd/synapse wires those from config).
// routingFailover may be nil, in which case routing decisions are used
// as-is with no error-rate-based demotion.
func New(
	rt *router.Router,
	providers map[string]provider.Provider,
	healthTracker *health.Tracker,
	failover FailoverConfig,
	routingConfig routing.Config,
	registry *routing.Registry,
	feedback *routing.FeedbackTracker,
	routingFailover *routing.FailoverState,
	respCache *cache.Cache,
) *State {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return &State{
		router: rt, providers: providers, providerNames: names, health: healthTracker,
		failover: failover, routingConfig: routingConfig, registry: registry,
		feedback: feedback, routingFailover: routingFailover, cache: respCache,
	}
}

// ListModels exposes the router's discovered-model surface for /v1/models.
func (s *State) ListModels() []router.ModelListing {
	return s.router.ListModels()
}

// Complete executes a non-streaming completion with cache lookup, model
// resolution, smart routing, and failover.
func (s *State) Complete(ctx context.Context, req *types.CompletionRequest, rc provider.RequestContext) (*types.CompletionResponse, error) {
	key, keyErr := cache.Key(req)
	if keyErr == nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	providerName, modelID, p, err := s.resolveProvider(ctx, req.Model, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.completeWithFailover(ctx, req, rc, providerName, modelID, p)
	if err != nil {
		return nil, err
	}

	if keyErr == nil {
		s.cache.Set(ctx, key, resp)
	}
	return resp, nil
}

// CompleteStream executes a streaming completion with model resolution,
// smart routing, failover, and — when the resolved routing strategy is
// cascade — the buffer-then-commit-or-escalate flow of spec §4.9. It
// returns the model id actually used (which may differ from the
// requested virtual class or from a failed-over primary).
func (s *State) CompleteStream(ctx context.Context, req *types.CompletionRequest, rc provider.RequestContext) (string, <-chan provider.StreamResult, error) {
	originalModel := req.Model

	providerName, modelID, p, err := s.resolveProvider(ctx, req.Model, req)
	if err != nil {
		return "", nil, err
	}

	if s.isCascadeStrategy(originalModel) {
		cfg := s.mapRoutingClass(originalModel)
		return s.completeStreamWithCascade(ctx, req, rc, providerName, modelID, p, cfg.Cascade)
	}
	return s.completeStreamWithFailover(ctx, req, rc, providerName, modelID, p)
}

// resolveProvider handles both concrete model names and the virtual
// routing classes ("auto", "fast", "best", "cheap") when smart routing
// is enabled.
func (s *State) resolveProvider(ctx context.Context, model string, req *types.CompletionRequest) (string, string, provider.Provider, error) {
	if s.routingConfig.Enabled && router.RoutingClasses[model] {
		return s.resolveViaRouting(model, req)
	}

	resolved, err := s.router.Resolve(model)
	if err != nil {
		return "", "", nil, err
	}
	p, ok := s.providers[resolved.ProviderName]
	if !ok {
		return "", "", nil, llmerr.ProviderNotFound(resolved.ProviderName)
	}
	return resolved.ProviderName, resolved.ModelID, p, nil
}

// resolveViaRouting resolves a virtual model name through the smart
// routing pipeline (query analysis -> strategy -> decision).
func (s *State) resolveViaRouting(routingClass string, req *types.CompletionRequest) (string, string, provider.Provider, error) {
	in := analysisInputFromRequest(req)
	profile := analysis.Analyze(in)

	cfg := s.mapRoutingClass(routingClass)
	strategies := routing.NewStrategyRegistry(cfg)

	decision, err := routing.Route(profile, s.registry, string(cfg.DefaultStrategy), strategies, s.feedback)
	if err != nil {
		return "", "", nil, llmerr.InvalidRequest(fmt.Sprintf("routing failed: %v", err))
	}

	if s.routingFailover != nil {
		s.routingFailover.UpdateHealth(s.feedback, s.providerNames)
		decision, err = s.routingFailover.Apply(decision)
		if err != nil {
			return "", "", nil, llmerr.Upstream(err.Error())
		}
	}

	p, ok := s.providers[decision.Provider]
	if !ok {
		return "", "", nil, llmerr.ProviderNotFound(decision.Provider)
	}
	return decision.Provider, decision.Model, p, nil
}

func analysisInputFromRequest(req *types.CompletionRequest) analysis.Input {
	in := analysis.Input{
		HasTools:     len(req.Tools) > 0,
		MessageCount: len(req.Messages),
	}

	userTurns := 0
	for _, m := range req.Messages {
		text := m.Content.AsText()
		in.Messages = append(in.Messages, text)
		switch m.Role {
		case types.RoleUser:
			in.LastUserMessage = text
			userTurns++
		case types.RoleSystem:
			in.HasSystemPrompt = true
		case types.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				in.ToolCallTurns++
			}
		}
		for _, part := range m.Content.Parts {
			if part.Type == "image" {
				in.HasImages = true
			}
		}
	}
	in.IsMultiTurn = userTurns > 1
	return in
}

// mapRoutingClass returns a copy of the configured routing config with
// the virtual class's strategy override applied (state.rs::map_routing_class).
func (s *State) mapRoutingClass(class string) routing.Config {
	cfg := s.routingConfig
	override := router.MapRoutingClass(class)
	if override.ForceStrategy != "" {
		cfg.DefaultStrategy = routing.StrategyName(override.ForceStrategy)
	}
	if override.QualityFloor != 0 {
		cfg.Threshold.QualityFloor = override.QualityFloor
	}
	return cfg
}

// isCascadeStrategy reports whether model is a virtual routing class
// whose mapped strategy is cascade.
func (s *State) isCascadeStrategy(model string) bool {
	if !s.routingConfig.Enabled || !router.RoutingClasses[model] {
		return false
	}
	return s.mapRoutingClass(model).DefaultStrategy == routing.StrategyCascade
}

// completeWithFailover tries the primary provider, then — if it fails
// with a retryable error and failover is enabled — each equivalence-group
// alternative in turn, skipping any provider the circuit breaker has
// opened.
func (s *State) completeWithFailover(ctx context.Context, req *types.CompletionRequest, rc provider.RequestContext, providerName, modelID string, p provider.Provider) (*types.CompletionResponse, error) {
	attempt := req.Clone()
	attempt.Model = modelID

	start := time.Now()
	resp, err := completeVia(ctx, p, &attempt, rc)
	if err == nil {
		s.health.RecordSuccess(providerName)
		s.feedback.Record(routing.Sample{
			Provider: providerName, Model: modelID, Latency: time.Since(start), Success: true,
			InputTokens: intPtr(resp.Usage.PromptTokens), OutputTokens: intPtr(resp.Usage.CompletionTokens),
		})
		return resp, nil
	}

	s.health.RecordFailure(providerName)
	s.feedback.Record(routing.Sample{Provider: providerName, Model: modelID, Latency: time.Since(start), Success: false})

	lerr, _ := llmerr.As(err)
	if !s.failover.Enabled || lerr == nil || !lerr.Retryable() {
		return nil, err
	}

	alternatives := router.FindEquivalents(providerName, modelID, s.failover.EquivalenceGroups)
	remaining := s.failover.MaxAttempts - 1
	if remaining < 0 {
		remaining = 0
	}
	lastErr := err

	for i, alt := range alternatives {
		if i >= remaining {
			break
		}
		if !s.health.IsAvailable(alt.ProviderName) {
			continue
		}
		altProvider, ok := s.providers[alt.ProviderName]
		if !ok {
			continue
		}

		altReq := req.Clone()
		altReq.Model = alt.ModelID

		resp, err := completeVia(ctx, altProvider, &altReq, rc)
		if err == nil {
			s.health.RecordSuccess(alt.ProviderName)
			return resp, nil
		}
		s.health.RecordFailure(alt.ProviderName)
		lastErr = err
	}

	return nil, lastErr
}

// completeStreamWithFailover mirrors completeWithFailover for the
// streaming path; failover is only possible before the first byte of the
// stream is established (i.e. before CompleteStream returns), matching
// the original implementation's documented limit.
func (s *State) completeStreamWithFailover(ctx context.Context, req *types.CompletionRequest, rc provider.RequestContext, providerName, modelID string, p provider.Provider) (string, <-chan provider.StreamResult, error) {
	attempt := req.Clone()
	attempt.Model = modelID

	start := time.Now()
	ch, err := completeStreamVia(ctx, p, &attempt, rc)
	if err == nil {
		s.health.RecordSuccess(providerName)
		s.feedback.Record(routing.Sample{Provider: providerName, Model: modelID, Latency: time.Since(start), Success: true})
		return modelID, ch, nil
	}

	s.health.RecordFailure(providerName)
	s.feedback.Record(routing.Sample{Provider: providerName, Model: modelID, Latency: time.Since(start), Success: false})

	lerr, _ := llmerr.As(err)
	if !s.failover.Enabled || lerr == nil || !lerr.Retryable() {
		return "", nil, err
	}

	alternatives := router.FindEquivalents(providerName, modelID, s.failover.EquivalenceGroups)
	remaining := s.failover.MaxAttempts - 1
	if remaining < 0 {
		remaining = 0
	}
	lastErr := err

	for i, alt := range alternatives {
		if i >= remaining {
			break
		}
		if !s.health.IsAvailable(alt.ProviderName) {
			continue
		}
		altProvider, ok := s.providers[alt.ProviderName]
		if !ok {
			continue
		}

		altReq := req.Clone()
		altReq.Model = alt.ModelID

		ch, err := completeStreamVia(ctx, altProvider, &altReq, rc)
		if err == nil {
			s.health.RecordSuccess(alt.ProviderName)
			return alt.ModelID, ch, nil
		}
		s.health.RecordFailure(alt.ProviderName)
		lastErr = err
	}

	return "", nil, lastErr
}

// completeStreamWithCascade buffers the initial (cheap) model's output up
// to a byte/time budget, evaluates confidence on the buffered text, and
// either replays the buffer as-is or escalates to a stronger model and
// streams that instead (spec §4.9).
func (s *State) completeStreamWithCascade(
	ctx context.Context,
	req *types.CompletionRequest,
	rc provider.RequestContext,
	providerName, modelID string,
	p provider.Provider,
	cascadeCfg routing.CascadeConfig,
) (string, <-chan provider.StreamResult, error) {
	escProvider, escModel, err := s.resolveEscalationModel(cascadeCfg)
	if err != nil {
		return "", nil, err
	}

	initialModel, stream, err := s.completeStreamWithFailover(ctx, req, rc, providerName, modelID, p)
	if err != nil {
		return "", nil, err
	}

	var buffered []provider.StreamResult
	var bufferedText strings.Builder
	bufferBytes := 0
	committed := false

	deadline := time.NewTimer(cascadeCfg.BufferTimeout)
	defer deadline.Stop()

drainLoop:
	for {
		select {
		case <-deadline.C:
			committed = true
			break drainLoop

		case r, ok := <-stream:
			if !ok {
				break drainLoop
			}
			if r.Err != nil {
				return "", nil, r.Err
			}

			if r.Event.Kind == types.StreamKindDelta && r.Event.Delta.Text != "" {
				bufferBytes += len(r.Event.Delta.Text)
				bufferedText.WriteString(r.Event.Delta.Text)
			}
			buffered = append(buffered, r)

			if bufferBytes >= cascadeCfg.MaxBufferBytes {
				committed = true
				break drainLoop
			}
			if r.Event.Kind == types.StreamKindDone {
				break drainLoop
			}
		}
	}

	if committed {
		return initialModel, chainReplay(buffered, stream), nil
	}

	var queryText strings.Builder
	for _, m := range req.Messages {
		queryText.WriteString(m.Content.AsText())
	}
	queryTokens := analysis.EstimateTokens(queryText.String())

	if !routing.ShouldEscalate(bufferedText.String(), queryTokens, cascadeCfg.ConfidenceThreshold) {
		return initialModel, chainReplay(buffered, nil), nil
	}

	escalated, ok := s.providers[escProvider]
	if !ok {
		return "", nil, llmerr.ProviderNotFound(escProvider)
	}
	return s.completeStreamWithFailover(ctx, req, rc, escProvider, escModel, escalated)
}

// resolveEscalationModel picks the cascade's stronger fallback model: a
// configured "provider/model" override, or the registry's highest-quality
// profile.
func (s *State) resolveEscalationModel(cascadeCfg routing.CascadeConfig) (string, string, error) {
	if cascadeCfg.EscalationModel != "" {
		p, m, ok := strings.Cut(cascadeCfg.EscalationModel, "/")
		if !ok {
			return "", "", llmerr.InvalidRequest("invalid escalation model format")
		}
		return p, m, nil
	}

	best, ok := s.registry.BestQuality()
	if !ok {
		return "", "", llmerr.InvalidRequest("no escalation model available")
	}
	return best.Provider, best.Model, nil
}

// chainReplay returns a channel that first yields buffered, then forwards
// remaining (if non-nil) until it closes.
func chainReplay(buffered []provider.StreamResult, remaining <-chan provider.StreamResult) <-chan provider.StreamResult {
	out := make(chan provider.StreamResult)
	go func() {
		defer close(out)
		for _, r := range buffered {
			out <- r
		}
		for remaining != nil {
			r, ok := <-remaining
			if !ok {
				return
			}
			out <- r
		}
	}()
	return out
}

// contextAwareProvider is satisfied by drivers that forward per-request
// headers and bring-your-own-key credentials; drivers without this
// (Bedrock, which authenticates via the AWS SDK's own credential chain)
// fall back to the plain Provider interface.
type contextAwareProvider interface {
	CompleteWithContext(ctx context.Context, req *types.CompletionRequest, rc provider.RequestContext) (*types.CompletionResponse, error)
	CompleteStreamWithContext(ctx context.Context, req *types.CompletionRequest, rc provider.RequestContext) (<-chan provider.StreamResult, error)
}

func completeVia(ctx context.Context, p provider.Provider, req *types.CompletionRequest, rc provider.RequestContext) (*types.CompletionResponse, error) {
	if ca, ok := p.(contextAwareProvider); ok {
		return ca.CompleteWithContext(ctx, req, rc)
	}
	return p.Complete(ctx, req)
}

func completeStreamVia(ctx context.Context, p provider.Provider, req *types.CompletionRequest, rc provider.RequestContext) (<-chan provider.StreamResult, error) {
	if ca, ok := p.(contextAwareProvider); ok {
		return ca.CompleteStreamWithContext(ctx, req, rc)
	}
	return p.CompleteStream(ctx, req)
}

func intPtr(n int) *int { return &n }

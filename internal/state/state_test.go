package state

import (
	"context"
	"testing"
	"time"

	"github.com/omnidotdev/synapse/internal/health"
	"github.com/omnidotdev/synapse/internal/llmerr"
	"github.com/omnidotdev/synapse/internal/provider"
	"github.com/omnidotdev/synapse/internal/router"
	"github.com/omnidotdev/synapse/internal/routing"
	"github.com/omnidotdev/synapse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name        string
	err         error
	respModel   string
	streamEvent []provider.StreamResult
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true}
}
func (f *fakeProvider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.CompletionResponse{ID: "resp_1", Model: req.Model}, nil
}
func (f *fakeProvider) CompleteStream(ctx context.Context, req *types.CompletionRequest) (<-chan provider.StreamResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan provider.StreamResult, len(f.streamEvent))
	for _, r := range f.streamEvent {
		ch <- r
	}
	close(ch)
	return ch, nil
}

func newTestState(t *testing.T, providers map[string]provider.Provider, failover FailoverConfig) *State {
	t.Helper()
	rt := router.New(map[string]router.ProviderFilter{
		"primary":   {},
		"secondary": {},
	}, []string{"primary", "secondary"})

	return New(rt, providers, health.NewTracker(health.Config{ErrorThreshold: 3, Window: time.Minute, RecoverySeconds: time.Minute}),
		failover, routing.Config{}, routing.NewRegistry(nil), routing.NewFeedbackTracker(), nil, nil)
}

func TestCompleteUsesPrimaryProviderOnSuccess(t *testing.T) {
	s := newTestState(t, map[string]provider.Provider{
		"primary": &fakeProvider{name: "primary"},
	}, FailoverConfig{})

	resp, err := s.Complete(context.Background(), &types.CompletionRequest{Model: "primary/gpt-4o"}, provider.RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "resp_1", resp.ID)
}

func TestCompleteFailsOverToEquivalentOnRetryableError(t *testing.T) {
	s := newTestState(t, map[string]provider.Provider{
		"primary":   &fakeProvider{name: "primary", err: llmerr.Upstream("boom")},
		"secondary": &fakeProvider{name: "secondary"},
	}, FailoverConfig{
		Enabled: true, MaxAttempts: 2,
		EquivalenceGroups: map[string]router.EquivalenceGroup{
			"tier": {"primary/gpt-4o", "secondary/gpt-4o-equiv"},
		},
	})

	resp, err := s.Complete(context.Background(), &types.CompletionRequest{Model: "primary/gpt-4o"}, provider.RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-equiv", resp.Model)
}

func TestCompleteDoesNotFailOverWhenDisabled(t *testing.T) {
	s := newTestState(t, map[string]provider.Provider{
		"primary":   &fakeProvider{name: "primary", err: llmerr.Upstream("boom")},
		"secondary": &fakeProvider{name: "secondary"},
	}, FailoverConfig{Enabled: false})

	_, err := s.Complete(context.Background(), &types.CompletionRequest{Model: "primary/gpt-4o"}, provider.RequestContext{})
	assert.Error(t, err)
}

func TestCompleteDoesNotFailOverOnNonRetryableError(t *testing.T) {
	s := newTestState(t, map[string]provider.Provider{
		"primary":   &fakeProvider{name: "primary", err: llmerr.InvalidRequest("bad request")},
		"secondary": &fakeProvider{name: "secondary"},
	}, FailoverConfig{
		Enabled: true, MaxAttempts: 2,
		EquivalenceGroups: map[string]router.EquivalenceGroup{"tier": {"primary/gpt-4o", "secondary/gpt-4o-equiv"}},
	})

	_, err := s.Complete(context.Background(), &types.CompletionRequest{Model: "primary/gpt-4o"}, provider.RequestContext{})
	assert.Error(t, err)
}

func TestCompleteStreamReturnsResolvedModelID(t *testing.T) {
	s := newTestState(t, map[string]provider.Provider{
		"primary": &fakeProvider{name: "primary", streamEvent: []provider.StreamResult{
			{Event: types.NewDeltaEvent(types.Delta{Text: "hi"})},
			{Event: types.DoneEvent},
		}},
	}, FailoverConfig{})

	model, ch, err := s.CompleteStream(context.Background(), &types.CompletionRequest{Model: "primary/gpt-4o"}, provider.RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model)

	var got []provider.StreamResult
	for r := range ch {
		got = append(got, r)
	}
	require.Len(t, got, 2)
}

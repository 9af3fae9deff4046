package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeLister struct {
	name   string
	models []string
	err    error
}

func (f fakeLister) Name() string { return f.name }
func (f fakeLister) ListModels(ctx context.Context) ([]string, error) {
	return f.models, f.err
}

type fakeSink struct {
	mu    sync.Mutex
	calls map[string][]string
}

func newFakeSink() *fakeSink { return &fakeSink{calls: make(map[string][]string)} }

func (s *fakeSink) SetKnownModels(provider string, models []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[provider] = models
}

func (s *fakeSink) get(provider string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[provider]
}

func TestRefreshAllPopulatesSinkAndSkipsErrors(t *testing.T) {
	sink := newFakeSink()
	r := NewRefresher([]Lister{
		fakeLister{name: "openai", models: []string{"gpt-4o"}},
		fakeLister{name: "broken", err: assertErr("boom")},
	}, sink, time.Minute)

	r.refreshAll(context.Background())

	assert.Equal(t, []string{"gpt-4o"}, sink.get("openai"))
	assert.Nil(t, sink.get("broken"))
}

func TestStartRunsImmediateRefreshBeforeFirstTick(t *testing.T) {
	sink := newFakeSink()
	r := NewRefresher([]Lister{fakeLister{name: "openai", models: []string{"gpt-4o"}}}, sink, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Start(ctx)

	assert.Equal(t, []string{"gpt-4o"}, sink.get("openai"))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

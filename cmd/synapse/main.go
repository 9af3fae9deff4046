// Package main is the entry point for the synapse gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/omnidotdev/synapse/internal/cache"
	"github.com/omnidotdev/synapse/internal/config"
	"github.com/omnidotdev/synapse/internal/discovery"
	"github.com/omnidotdev/synapse/internal/health"
	"github.com/omnidotdev/synapse/internal/provider"
	"github.com/omnidotdev/synapse/internal/router"
	"github.com/omnidotdev/synapse/internal/routing"
	"github.com/omnidotdev/synapse/internal/server"
	"github.com/omnidotdev/synapse/internal/state"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	providers, filters, providerOrder, listers, err := buildProviders(context.Background(), cfg)
	if err != nil {
		log.Error("failed to build providers", "err", err)
		os.Exit(1)
	}

	rt := router.New(filters, providerOrder)

	healthTracker := health.NewTracker(cfg.Failover.HealthConfig())
	registry := routing.NewRegistry(cfg.Routing.ModelProfiles())
	feedback := routing.NewFeedbackTracker()
	routingFailover := cfg.Routing.FailoverState()

	respCache := buildCache(cfg.Cache)

	st := state.New(rt, providers, healthTracker, cfg.Failover.StateConfig(), cfg.Routing.Build(), registry, feedback, routingFailover, respCache)

	srv := server.New(st, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(listers) > 0 {
		refresher := discovery.NewRefresher(listers, rt, cfg.Discovery.Interval)
		go refresher.Start(ctx)
	}

	log.Info("synapse listening", "port", cfg.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}

// buildProviders constructs one driver per configured provider entry,
// keyed by its config name, plus the router filters and discovery
// listers derived from the same config.
func buildProviders(ctx context.Context, cfg *config.Config) (map[string]provider.Provider, map[string]router.ProviderFilter, []string, []discovery.Lister, error) {
	providers := make(map[string]provider.Provider, len(cfg.Providers))
	filters := make(map[string]router.ProviderFilter, len(cfg.Providers))
	var order []string
	var listers []discovery.Lister

	for name, pCfg := range cfg.Providers {
		rules, err := pCfg.HeaderRules()
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("provider %q: %w", name, err)
		}
		limiter := provider.NewRateLimiter(pCfg.RateLimit.RequestsPerSecond, pCfg.RateLimit.Burst)

		var p provider.Provider
		switch pCfg.Type {
		case "openai":
			driver := provider.NewOpenAIProvider(name, pCfg.APIKey, pCfg.BaseURL, http.DefaultClient, rules, pCfg.ForwardAuthorization, limiter)
			p = driver
			listers = append(listers, driver)
		case "anthropic":
			driver := provider.NewAnthropicProvider(name, pCfg.APIKey, pCfg.BaseURL, http.DefaultClient, rules, pCfg.ForwardAuthorization, limiter)
			p = driver
			listers = append(listers, driver)
		case "google":
			driver := provider.NewGoogleProvider(name, pCfg.APIKey, pCfg.BaseURL, http.DefaultClient, rules, limiter)
			p = driver
			listers = append(listers, driver)
		case "bedrock":
			driver, err := provider.NewBedrockProvider(ctx, name, pCfg.Bedrock.Region, pCfg.Bedrock.AccessKeyID, pCfg.Bedrock.SecretAccessKey)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("provider %q: %w", name, err)
			}
			p = driver
			listers = append(listers, driver)
		default:
			return nil, nil, nil, nil, fmt.Errorf("provider %q: unknown type %q", name, pCfg.Type)
		}

		filter, err := pCfg.Filter()
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("provider %q: %w", name, err)
		}

		providers[name] = p
		filters[name] = filter
		order = append(order, name)
	}

	return providers, filters, order, listers, nil
}

// buildCache wires a Redis-backed response cache, or returns nil (a
// valid always-miss cache) when caching is disabled.
func buildCache(cfg config.CacheConfig) *cache.Cache {
	if !cfg.Enabled {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.RedisURL}
	}
	client := redis.NewClient(opts)
	return cache.New(client, cfg.Prefix, cfg.TTL)
}

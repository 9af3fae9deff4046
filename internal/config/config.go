// Package config handles loading and validating gateway configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/omnidotdev/synapse/internal/headers"
	"github.com/omnidotdev/synapse/internal/health"
	"github.com/omnidotdev/synapse/internal/router"
	"github.com/omnidotdev/synapse/internal/routing"
	"github.com/omnidotdev/synapse/internal/state"
)

// Config is the top-level configuration for the synapse gateway.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Failover  FailoverConfig            `koanf:"failover"`
	Routing   RoutingConfig             `koanf:"routing"`
	Cache     CacheConfig               `koanf:"cache"`
	Discovery DiscoveryConfig           `koanf:"discovery"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// HeaderRuleConfig is the YAML-facing shape of one internal/headers.Rule.
// Exactly one of Forward/Insert/Remove/DupName should be set; Build
// translates it into the compiled runtime Rule.
type HeaderRuleConfig struct {
	Forward string `koanf:"forward"`
	Rename  string `koanf:"rename"`
	Default string `koanf:"default"`

	// Insert is "Name=Value".
	Insert string `koanf:"insert"`

	Remove string `koanf:"remove"`

	DupName    string `koanf:"dup_name"`
	DupRename  string `koanf:"dup_rename"`
	DupDefault string `koanf:"dup_default"`
}

// Build compiles a HeaderRuleConfig into a runtime headers.Rule. ok is
// false for a zero-value HeaderRuleConfig (nothing configured).
func (h HeaderRuleConfig) Build() (rule headers.Rule, ok bool, err error) {
	switch {
	case h.Forward != "":
		name, ok := headers.ParseNameOrPattern(h.Forward)
		if !ok {
			return headers.Rule{}, false, fmt.Errorf("invalid forward pattern %q", h.Forward)
		}
		return headers.Rule{Kind: headers.KindForward, Name: name, Rename: h.Rename, Default: h.Default}, true, nil

	case h.Insert != "":
		name, value, ok := strings.Cut(h.Insert, "=")
		if !ok {
			return headers.Rule{}, false, fmt.Errorf("invalid insert rule %q, want Name=Value", h.Insert)
		}
		return headers.Rule{Kind: headers.KindInsert, InsertName: name, InsertValue: value}, true, nil

	case h.Remove != "":
		name, ok := headers.ParseNameOrPattern(h.Remove)
		if !ok {
			return headers.Rule{}, false, fmt.Errorf("invalid remove pattern %q", h.Remove)
		}
		return headers.Rule{Kind: headers.KindRemove, Name: name}, true, nil

	case h.DupName != "":
		return headers.Rule{
			Kind: headers.KindRenameDuplicate, DupName: h.DupName,
			DupRename: h.DupRename, DupDefault: h.DupDefault,
		}, true, nil

	default:
		return headers.Rule{}, false, nil
	}
}

// RateLimitConfig parameterizes one provider's outgoing request budget; a
// zero RequestsPerSecond disables the limiter entirely.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// BedrockConfig holds the Bedrock driver's region and optional static
// credentials; when AccessKeyID/SecretAccessKey are empty the driver
// falls back to the AWS SDK's default credential chain.
type BedrockConfig struct {
	Region          string `koanf:"region"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
}

// ProviderConfig holds the settings for a single LLM provider. Type
// selects which driver constructor cmd/synapse wires it to: "openai",
// "anthropic", "google", or "bedrock".
type ProviderConfig struct {
	Type                 string             `koanf:"type"`
	APIKey               string             `koanf:"api_key"`
	BaseURL              string             `koanf:"base_url"`
	Models               []string           `koanf:"models"`
	Include              []string           `koanf:"include"`
	Exclude              []string           `koanf:"exclude"`
	Aliases              map[string]string  `koanf:"aliases"`
	ForwardAuthorization bool               `koanf:"forward_authorization"`
	RateLimit            RateLimitConfig    `koanf:"rate_limit"`
	Headers              []HeaderRuleConfig `koanf:"headers"`
	Bedrock              BedrockConfig      `koanf:"bedrock"`
}

// Filter compiles this provider's include/exclude patterns and aliases
// into a runtime router.ProviderFilter.
func (p ProviderConfig) Filter() (router.ProviderFilter, error) {
	include, err := compilePatterns(p.Include)
	if err != nil {
		return router.ProviderFilter{}, fmt.Errorf("include patterns: %w", err)
	}
	exclude, err := compilePatterns(p.Exclude)
	if err != nil {
		return router.ProviderFilter{}, fmt.Errorf("exclude patterns: %w", err)
	}
	return router.ProviderFilter{Include: include, Exclude: exclude, Aliases: p.Aliases}, nil
}

// HeaderRules compiles this provider's configured header rewrite pipeline.
func (p ProviderConfig) HeaderRules() ([]headers.Rule, error) {
	var out []headers.Rule
	for _, h := range p.Headers {
		rule, ok, err := h.Build()
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rule)
		}
	}
	return out, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// FailoverConfig holds both the per-provider circuit breaker's settings
// and the cross-provider failover loop's settings (spec §4.6); these are
// split into internal/health.Config and internal/state.FailoverConfig by
// HealthConfig and StateConfig since those packages model distinct concerns.
type FailoverConfig struct {
	Enabled           bool                `koanf:"enabled"`
	MaxAttempts       int                 `koanf:"max_attempts"`
	ErrorThreshold    uint32              `koanf:"error_threshold"`
	Window            time.Duration       `koanf:"window"`
	RecoverySeconds   time.Duration       `koanf:"recovery_seconds"`
	EquivalenceGroups map[string][]string `koanf:"equivalence_groups"`
}

// HealthConfig builds the circuit breaker config.
func (f FailoverConfig) HealthConfig() health.Config {
	return health.Config{
		ErrorThreshold:  f.ErrorThreshold,
		Window:          f.Window,
		RecoverySeconds: f.RecoverySeconds,
	}
}

// StateConfig builds the failover loop config, compiling the configured
// equivalence groups into router.EquivalenceGroup values.
func (f FailoverConfig) StateConfig() state.FailoverConfig {
	groups := make(map[string]router.EquivalenceGroup, len(f.EquivalenceGroups))
	for name, members := range f.EquivalenceGroups {
		groups[name] = router.EquivalenceGroup(members)
	}
	return state.FailoverConfig{
		Enabled: f.Enabled, MaxAttempts: f.MaxAttempts, EquivalenceGroups: groups,
	}
}

// ThresholdRoutingConfig is the YAML shape of routing.ThresholdConfig.
type ThresholdRoutingConfig struct {
	LowComplexityModel  string  `koanf:"low_complexity_model"`
	HighComplexityModel string  `koanf:"high_complexity_model"`
	QualityFloor        float64 `koanf:"quality_floor"`
}

// CostRoutingConfig is the YAML shape of routing.CostConfig.
type CostRoutingConfig struct {
	MaxCostPerMillionTokens float64 `koanf:"max_cost_per_million_tokens"`
}

// ScoreRoutingConfig is the YAML shape of routing.ScoreConfig.
type ScoreRoutingConfig struct {
	WeightQuality float64 `koanf:"weight_quality"`
	WeightCost    float64 `koanf:"weight_cost"`
	WeightLatency float64 `koanf:"weight_latency"`
	ErrorPenalty  float64 `koanf:"error_penalty"`
	MinSamples    int     `koanf:"min_samples"`
	MaxCostPerM   float64 `koanf:"max_cost_per_m"`
	MaxLatencyMs  float64 `koanf:"max_latency_ms"`
}

// CascadeRoutingConfig is the YAML shape of routing.CascadeConfig.
type CascadeRoutingConfig struct {
	InitialModel        string        `koanf:"initial_model"`
	EscalationModel     string        `koanf:"escalation_model"`
	MaxBufferBytes      int           `koanf:"max_buffer_bytes"`
	BufferTimeout       time.Duration `koanf:"buffer_timeout"`
	ConfidenceThreshold float64       `koanf:"confidence_threshold"`
}

// ModelProfileConfig is the YAML shape of one routing.ModelProfile entry
// in the smart-routing model registry.
type ModelProfileConfig struct {
	Provider             string  `koanf:"provider"`
	Model                string  `koanf:"model"`
	ContextWindow        int     `koanf:"context_window"`
	InputPricePerMToken  float64 `koanf:"input_price_per_m_token"`
	OutputPricePerMToken float64 `koanf:"output_price_per_m_token"`
	Quality              float64 `koanf:"quality"`
	ToolCalling          bool    `koanf:"tool_calling"`
	Vision               bool    `koanf:"vision"`
	LongContext          bool    `koanf:"long_context"`
}

// RoutingConfig is the YAML shape of smart routing's top-level config
// plus the model registry's seed data (spec §4.8-4.9).
type RoutingConfig struct {
	Enabled         bool                   `koanf:"enabled"`
	DefaultStrategy string                 `koanf:"default_strategy"`
	Threshold       ThresholdRoutingConfig `koanf:"threshold"`
	Cost            CostRoutingConfig      `koanf:"cost"`
	Score           ScoreRoutingConfig     `koanf:"score"`
	Cascade         CascadeRoutingConfig   `koanf:"cascade"`
	Models          []ModelProfileConfig   `koanf:"models"`

	// FailoverErrorThreshold/FailoverRecoveryWindow parameterize the
	// routing-layer failover state (distinct from the provider-driver
	// circuit breaker in FailoverConfig): a provider whose observed error
	// rate crosses the threshold is demoted within a routing decision
	// until it has gone FailoverRecoveryWindow without crossing it again.
	FailoverErrorThreshold float64       `koanf:"failover_error_threshold"`
	FailoverRecoveryWindow time.Duration `koanf:"failover_recovery_window"`
}

// FailoverState builds the routing-layer failover tracker. Returns nil
// when no error threshold is configured, meaning routing decisions are
// used as-is.
func (r RoutingConfig) FailoverState() *routing.FailoverState {
	if r.FailoverErrorThreshold <= 0 {
		return nil
	}
	return routing.NewFailoverState(r.FailoverErrorThreshold, r.FailoverRecoveryWindow)
}

// Build compiles this section into a runtime routing.Config.
func (r RoutingConfig) Build() routing.Config {
	return routing.Config{
		Enabled:         r.Enabled,
		DefaultStrategy: routing.StrategyName(r.DefaultStrategy),
		Threshold: routing.ThresholdConfig{
			LowComplexityModel: r.Threshold.LowComplexityModel, HighComplexityModel: r.Threshold.HighComplexityModel,
			QualityFloor: r.Threshold.QualityFloor,
		},
		Cost: routing.CostConfig{MaxCostPerMillionTokens: r.Cost.MaxCostPerMillionTokens},
		Score: routing.ScoreConfig{
			WeightQuality: r.Score.WeightQuality, WeightCost: r.Score.WeightCost, WeightLatency: r.Score.WeightLatency,
			ErrorPenalty: r.Score.ErrorPenalty, MinSamples: r.Score.MinSamples,
			MaxCostPerM: r.Score.MaxCostPerM, MaxLatencyMs: r.Score.MaxLatencyMs,
		},
		Cascade: routing.CascadeConfig{
			InitialModel: r.Cascade.InitialModel, EscalationModel: r.Cascade.EscalationModel,
			MaxBufferBytes: r.Cascade.MaxBufferBytes, BufferTimeout: r.Cascade.BufferTimeout,
			ConfidenceThreshold: r.Cascade.ConfidenceThreshold,
		},
	}
}

// ModelProfiles compiles the configured model registry seed data.
func (r RoutingConfig) ModelProfiles() []routing.ModelProfile {
	out := make([]routing.ModelProfile, 0, len(r.Models))
	for _, m := range r.Models {
		out = append(out, routing.ModelProfile{
			Provider: m.Provider, Model: m.Model, ContextWindow: m.ContextWindow,
			InputPricePerMToken: m.InputPricePerMToken, OutputPricePerMToken: m.OutputPricePerMToken,
			Quality: m.Quality, ToolCalling: m.ToolCalling, Vision: m.Vision, LongContext: m.LongContext,
		})
	}
	return out
}

// CacheConfig holds the response-cache backend settings (spec §4.10). A
// zero-value (Enabled: false) CacheConfig means cmd/synapse wires a nil
// *cache.Cache, which is a valid always-miss cache.
type CacheConfig struct {
	Enabled  bool          `koanf:"enabled"`
	RedisURL string        `koanf:"redis_url"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

// DiscoveryConfig controls the background model-list refresh loop
// (spec §4.5).
type DiscoveryConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	// This is the equivalent of require('dotenv').config() in Node.
	_ = godotenv.Load()

	// Create a new koanf instance. The "." delimiter tells koanf how to
	// separate nested keys internally (e.g., "server.port").
	k := koanf.New(".")

	// Load the YAML config file. file.Provider reads the file,
	// yaml.Parser() decodes the YAML format into koanf's internal map.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "SYNAPSE_" can override a config value. The callback transforms
	// the env var name into a koanf key path:
	//   SYNAPSE_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("SYNAPSE_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "SYNAPSE_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// Unmarshal the loaded key-value pairs into our Config struct.
	// The "" means start from the root. &cfg passes a pointer so koanf
	// can write into the struct (like passing by reference in Node).
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders in provider API keys and Bedrock
	// credentials. koanf doesn't do this automatically, so we handle it
	// ourselves using os.Getenv to look up the actual environment
	// variable value.
	for name, p := range cfg.Providers {
		p.APIKey = expandEnv(p.APIKey)
		p.Bedrock.AccessKeyID = expandEnv(p.Bedrock.AccessKeyID)
		p.Bedrock.SecretAccessKey = expandEnv(p.Bedrock.SecretAccessKey)
		cfg.Providers[name] = p
	}

	return &cfg, nil
}

func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}

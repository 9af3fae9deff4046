package routing

import "time"

// StrategyName selects the default routing strategy by name.
type StrategyName string

const (
	StrategyThreshold StrategyName = "threshold"
	StrategyCost      StrategyName = "cost"
	StrategyScore     StrategyName = "score"
	StrategyCascade   StrategyName = "cascade"
)

// ThresholdConfig parameterizes the Threshold strategy.
type ThresholdConfig struct {
	// LowComplexityModel/HighComplexityModel are optional "provider/model"
	// overrides; when set they short-circuit registry lookup entirely.
	LowComplexityModel  string
	HighComplexityModel string
	QualityFloor        float64
}

// CostConfig parameterizes the Cost strategy.
type CostConfig struct {
	MaxCostPerMillionTokens float64 // 0 means unbounded
}

// ScoreConfig parameterizes the Score strategy's weighted objective.
type ScoreConfig struct {
	WeightQuality  float64
	WeightCost     float64
	WeightLatency  float64
	ErrorPenalty   float64
	MinSamples     int
	MaxCostPerM    float64
	MaxLatencyMs   float64
}

// CascadeConfig parameterizes the cascade streaming flow (spec §4.9).
type CascadeConfig struct {
	InitialModel        string // optional "provider/model" override
	EscalationModel      string // optional "provider/model" override
	MaxBufferBytes       int
	BufferTimeout        time.Duration
	ConfidenceThreshold  float64
}

// Config is the top-level smart-routing configuration.
type Config struct {
	Enabled         bool
	DefaultStrategy StrategyName
	Threshold       ThresholdConfig
	Cost            CostConfig
	Score           ScoreConfig
	Cascade         CascadeConfig
}

package routing

// MinFeedbackSamples is the minimum observed sample count before feedback
// is allowed to influence effective quality or the Score strategy's error
// term.
const MinFeedbackSamples = 10

// ErrorRateThreshold is the error rate above which effective quality is
// demoted.
const ErrorRateThreshold = 0.10

// ErrorPenaltyFactor scales how much of the error rate is subtracted from
// quality once the threshold is crossed.
const ErrorPenaltyFactor = 0.2

// DefaultOutputRatio estimates output tokens as a fraction of input tokens
// when a strategy needs a cost projection before generation has happened.
const DefaultOutputRatio = 0.5

// DefaultLatencyMs is used by the Score strategy when neither feedback nor
// the profile itself has an observed latency.
const DefaultLatencyMs = 2000.0

// EffectiveQuality returns a model's base quality, demoted (never
// promoted) by observed error rate once enough samples exist.
func EffectiveQuality(p ModelProfile, feedback *FeedbackTracker) float64 {
	if feedback == nil {
		return p.Quality
	}
	snap := feedback.Snapshot(p.Provider, p.Model)
	if snap.SampleCount < MinFeedbackSamples || snap.ErrorRate <= ErrorRateThreshold {
		return p.Quality
	}
	quality := p.Quality - ErrorPenaltyFactor*snap.ErrorRate
	return clamp01(quality)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// resolveLatency prefers an observed feedback p50, then the profile's own
// observed latency, then the fixed default.
func resolveLatency(p ModelProfile, feedback *FeedbackTracker) float64 {
	if feedback != nil {
		if snap := feedback.Snapshot(p.Provider, p.Model); snap.LatencyP50Ms > 0 {
			return snap.LatencyP50Ms
		}
	}
	if p.ObservedLatencyP50Ms > 0 {
		return p.ObservedLatencyP50Ms
	}
	return DefaultLatencyMs
}

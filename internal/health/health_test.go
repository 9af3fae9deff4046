package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{ErrorThreshold: 3, Window: time.Minute, RecoverySeconds: 50 * time.Millisecond}
}

func TestHealthyProviderIsClosed(t *testing.T) {
	tr := NewTracker(testConfig())
	assert.Equal(t, Closed, tr.State("p"))
	assert.True(t, tr.IsAvailable("p"))
}

func TestFailuresBelowThresholdStayClosed(t *testing.T) {
	tr := NewTracker(testConfig())
	tr.RecordFailure("p")
	tr.RecordFailure("p")
	assert.Equal(t, Closed, tr.State("p"))
}

func TestFailuresAtThresholdOpenCircuit(t *testing.T) {
	tr := NewTracker(testConfig())
	tr.RecordFailure("p")
	tr.RecordFailure("p")
	tr.RecordFailure("p")
	assert.Equal(t, Open, tr.State("p"))
	assert.False(t, tr.IsAvailable("p"))
}

func TestSuccessResetsCircuit(t *testing.T) {
	tr := NewTracker(testConfig())
	tr.RecordFailure("p")
	tr.RecordFailure("p")
	tr.RecordFailure("p")
	assert.Equal(t, Open, tr.State("p"))

	tr.RecordSuccess("p")
	assert.Equal(t, Closed, tr.State("p"))
	assert.True(t, tr.IsAvailable("p"))
}

func TestHalfOpenAfterRecoveryWindow(t *testing.T) {
	cfg := testConfig()
	tr := NewTracker(cfg)
	tr.RecordFailure("p")
	tr.RecordFailure("p")
	tr.RecordFailure("p")
	require := assert.New(t)
	require.Equal(Open, tr.State("p"))

	time.Sleep(cfg.RecoverySeconds + 20*time.Millisecond)
	require.Equal(HalfOpen, tr.State("p"))
	require.True(tr.IsAvailable("p"))
}

func TestIndependentProviderTracking(t *testing.T) {
	tr := NewTracker(testConfig())
	tr.RecordFailure("a")
	tr.RecordFailure("a")
	tr.RecordFailure("a")

	assert.Equal(t, Open, tr.State("a"))
	assert.Equal(t, Closed, tr.State("b"))
}

func TestStaleWindowRestartsCounter(t *testing.T) {
	cfg := Config{ErrorThreshold: 3, Window: 20 * time.Millisecond, RecoverySeconds: time.Minute}
	tr := NewTracker(cfg)
	tr.RecordFailure("p")
	tr.RecordFailure("p")

	time.Sleep(30 * time.Millisecond)
	tr.RecordFailure("p")

	assert.Equal(t, Closed, tr.State("p"))
}

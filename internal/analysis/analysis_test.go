package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCodeTask(t *testing.T) {
	assert.Equal(t, TaskCode, classifyTask("please debug this function for me"))
	assert.Equal(t, TaskCode, classifyTask("```go\nfunc main() {}\n```"))
	assert.Equal(t, TaskCode, classifyTask("fix the bug in main.go"))
}

func TestClassifyMathTask(t *testing.T) {
	assert.Equal(t, TaskMath, classifyTask(`solve \frac{1}{2} + \frac{1}{3}`))
	assert.Equal(t, TaskMath, classifyTask("compute 2 + 2 = 4, 3 < 5, 6 > 1"))
}

func TestClassifyAnalysisTask(t *testing.T) {
	assert.Equal(t, TaskAnalysis, classifyTask("can you analyze this dataset for trends"))
}

func TestClassifyCreativeTask(t *testing.T) {
	assert.Equal(t, TaskCreative, classifyTask("write a poem about autumn"))
}

func TestClassifySimpleQa(t *testing.T) {
	assert.Equal(t, TaskSimpleQa, classifyTask("What is the capital of France?"))
}

func TestClassifyGeneralFallback(t *testing.T) {
	assert.Equal(t, TaskGeneral, classifyTask("let's chat about your day"))
}

func TestComplexityForcedHighWithTools(t *testing.T) {
	in := Input{LastUserMessage: "what is 2+2", HasTools: true}
	p := Analyze(in)
	assert.Equal(t, ComplexityHigh, p.Complexity)
}

func TestComplexityBumpsOnLongHistory(t *testing.T) {
	in := Input{LastUserMessage: "what is the time", MessageCount: 11}
	p := Analyze(in)
	assert.Equal(t, ComplexityMedium, p.Complexity)
}

func TestRequiredCapabilities(t *testing.T) {
	in := Input{
		LastUserMessage: "describe this image",
		HasImages:       true,
		ToolCallTurns:   1,
	}
	p := Analyze(in)
	assert.True(t, p.RequiredCapabilities.ToolCalling)
	assert.True(t, p.RequiredCapabilities.Vision)
}

func TestLongContextCapability(t *testing.T) {
	longText := strings.Repeat("word ", 50_000)
	in := Input{Messages: []string{longText}, LastUserMessage: "summarize"}
	p := Analyze(in)
	assert.True(t, p.RequiredCapabilities.LongContext)
}

func TestEstimateTokensFallback(t *testing.T) {
	n := EstimateTokens("hello world")
	assert.Greater(t, n, 0)
}

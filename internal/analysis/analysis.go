// Package analysis implements the heuristic query-analysis pass that feeds
// smart routing (spec §4.7): task-type classification, complexity
// assessment, and required-capability inference, all from plain-text
// pattern matching — no ML dependency.
package analysis

import (
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// LongContextThreshold is the estimated-token threshold above which a
// request is considered long-context.
const LongContextThreshold = 30_000

// TaskType classifies the nature of the last user message.
type TaskType string

const (
	TaskCode     TaskType = "code"
	TaskMath     TaskType = "math"
	TaskAnalysis TaskType = "analysis"
	TaskCreative TaskType = "creative"
	TaskSimpleQa TaskType = "simple_qa"
	TaskGeneral  TaskType = "general"
)

// Complexity is the coarse effort bucket assigned to a query.
type Complexity int

const (
	ComplexityLow Complexity = iota
	ComplexityMedium
	ComplexityHigh
)

// RequiredCapabilities are the provider capability bits this query needs.
type RequiredCapabilities struct {
	ToolCalling bool
	Vision      bool
	LongContext bool
}

// Input is everything the analyzer needs about the inbound request; it is
// deliberately decoupled from types.CompletionRequest so the analyzer can
// be exercised with bare strings in tests.
type Input struct {
	Messages          []string // text of every message, in order
	LastUserMessage   string
	HasTools          bool
	HasImages         bool
	MessageCount      int
	HasSystemPrompt   bool
	ToolCallTurns     int // prior assistant turns that carried tool calls
	IsMultiTurn       bool
}

// Profile is the analyzer's output, consumed by the routing strategies.
type Profile struct {
	EstimatedInputTokens int
	TaskType             TaskType
	Complexity           Complexity
	RequiresToolUse      bool
	RequiredCapabilities RequiredCapabilities
	MessageCount         int
	HasSystemPrompt      bool
}

var (
	codeFenceRe = regexp.MustCompile("```\\w*\n")
	filePathRe  = regexp.MustCompile(`\b[\w./\\-]+\.(rs|ts|tsx|js|jsx|py|go|java|cpp|c|h|rb|php|swift|kt)\b`)
	importRe    = regexp.MustCompile(`(?m)^(?:use |import |from |require\(|#include )`)
	funcSigRe   = regexp.MustCompile(`(?:fn |def |func |function |pub fn |async fn |const |let |var )\w+\s*[(<{]`)
	latexRe     = regexp.MustCompile(`\\(?:frac|sum|int|prod|lim|sqrt|begin\{equation\})`)
	equationRe  = regexp.MustCompile(`[=<>≤≥≠±×÷∈∉⊂⊃∀∃]`)
	analysisRe  = regexp.MustCompile(`(?i)\b(?:analyze|analyse|correlat|regression|distribution|dataset|csv|dataframe|pivot|aggregate|trend|outlier|histogram|scatter\s?plot)\b`)
)

var codeKeywords = []string{
	"implement", "debug", "function", "refactor", "compile", "runtime error",
	"syntax error", "code review", "write a program", "write code",
	"fix this code", "bug in", "stack trace", "unit test",
}

var mathKeywords = []string{
	"integral", "derivative", "equation", "theorem", "proof", "calculate",
	"solve for", "algebra", "calculus", "geometry", "probability",
}

var creativeKeywords = []string{
	"write a story", "write a poem", "creative writing", "compose",
	"fictional", "narrative", "write me a", "tell me a story",
}

var simpleQaPrefixes = []string{
	"what is", "what are", "who is", "who was", "when did", "where is",
	"how many", "how much", "define ", "what does",
}

var tiktokenEncoding *tiktoken.Tiktoken

func init() {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err == nil {
		tiktokenEncoding = enc
	}
}

// EstimateTokens tokenizes text with the o200k_base BPE encoding, falling
// back to len/4 if the encoder failed to load.
func EstimateTokens(text string) int {
	if tiktokenEncoding != nil {
		return len(tiktokenEncoding.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// Analyze runs the full heuristic pipeline over in.
func Analyze(in Input) Profile {
	var allText strings.Builder
	for _, m := range in.Messages {
		allText.WriteString(m)
		allText.WriteString(" ")
	}
	estimatedTokens := EstimateTokens(allText.String())

	taskType := classifyTask(in.LastUserMessage)
	complexity := assessComplexity(taskType, estimatedTokens, in)

	caps := RequiredCapabilities{
		ToolCalling: in.HasTools || in.ToolCallTurns > 0,
		Vision:      in.HasImages,
		LongContext: estimatedTokens > LongContextThreshold || in.MessageCount > 10,
	}

	return Profile{
		EstimatedInputTokens: estimatedTokens,
		TaskType:             taskType,
		Complexity:           complexity,
		RequiresToolUse:      in.HasTools,
		RequiredCapabilities: caps,
		MessageCount:         in.MessageCount,
		HasSystemPrompt:      in.HasSystemPrompt,
	}
}

func classifyTask(msg string) TaskType {
	switch {
	case isCodeTask(msg):
		return TaskCode
	case isMathTask(msg):
		return TaskMath
	case isAnalysisTask(msg):
		return TaskAnalysis
	case isCreativeTask(msg):
		return TaskCreative
	case isSimpleQa(msg):
		return TaskSimpleQa
	default:
		return TaskGeneral
	}
}

func isCodeTask(msg string) bool {
	if codeFenceRe.MatchString(msg) || filePathRe.MatchString(msg) ||
		importRe.MatchString(msg) || funcSigRe.MatchString(msg) {
		return true
	}
	lower := strings.ToLower(msg)
	return containsAny(lower, codeKeywords)
}

func isMathTask(msg string) bool {
	if latexRe.MatchString(msg) {
		return true
	}
	if len(equationRe.FindAllString(msg, -1)) >= 3 {
		return true
	}
	return containsAny(strings.ToLower(msg), mathKeywords)
}

func isAnalysisTask(msg string) bool {
	return analysisRe.MatchString(msg)
}

func isCreativeTask(msg string) bool {
	return containsAny(strings.ToLower(msg), creativeKeywords)
}

func isSimpleQa(msg string) bool {
	if len(msg) > 200 {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(msg))
	for _, p := range simpleQaPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func assessComplexity(taskType TaskType, tokens int, in Input) Complexity {
	if in.HasTools {
		return ComplexityHigh
	}

	var base Complexity
	switch taskType {
	case TaskSimpleQa:
		base = ComplexityLow
	case TaskCode, TaskMath:
		base = bucket(tokens, 2000)
	case TaskAnalysis:
		base = bucket(tokens, 1500)
	case TaskCreative:
		base = bucket(tokens, 1000)
	default: // General
		switch {
		case tokens > 3000:
			base = ComplexityHigh
		case tokens > 500:
			base = ComplexityMedium
		default:
			base = ComplexityLow
		}
	}

	if in.IsMultiTurn && in.ToolCallTurns > 0 {
		base = bump(base)
	}
	if in.MessageCount > 10 {
		base = bump(base)
	}
	if in.HasSystemPrompt && in.HasImages {
		base = bump(base)
	}

	return base
}

// bucket returns High if tokens exceed the threshold, else Medium. Used by
// task types that have no Low bucket of their own (their floor is Medium).
func bucket(tokens, highThreshold int) Complexity {
	if tokens > highThreshold {
		return ComplexityHigh
	}
	return ComplexityMedium
}

func bump(c Complexity) Complexity {
	if c >= ComplexityHigh {
		return ComplexityHigh
	}
	return c + 1
}

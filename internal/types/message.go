// Package types holds the canonical request/response/stream-event shapes
// that every wire dialect converts to and from.
package types

import "strings"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multi-part message body.
type ContentPart struct {
	// Type is "text" or "image".
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// ImageURL is either a real URL or a data URI (data:<mime>;base64,<payload>).
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Content is either plain text or an ordered sequence of parts. Go has no
// sum types, so both fields live on the struct and exactly one is set.
type Content struct {
	Text  *string
	Parts []ContentPart
}

// TextContent builds a plain-text Content.
func TextContent(s string) Content {
	return Content{Text: &s}
}

// PartsContent builds a multi-part Content.
func PartsContent(parts []ContentPart) Content {
	return Content{Parts: parts}
}

// AsText flattens Content to a single string, concatenating the text of
// every text part when the content is multi-part. Used by query analysis
// and anywhere a dialect needs a plain-string fallback.
func (c Content) AsText() string {
	if c.Text != nil {
		return *c.Text
	}
	var b strings.Builder
	for _, p := range c.Parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// IsEmpty reports whether the content carries no text and no parts.
func (c Content) IsEmpty() bool {
	return c.Text == nil && len(c.Parts) == 0
}

// FunctionCall is the name+arguments payload of a tool call.
type FunctionCall struct {
	Name string `json:"name"`
	// Arguments is a JSON-encoded object, per OpenAI/Anthropic convention.
	Arguments string `json:"arguments"`
}

// ToolCall is an assistant-issued request to invoke a tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Function FunctionCall `json:"function"`
}

// Message is one turn in the canonical conversation.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`

	// Name is an optional display name for the speaker (OpenAI convention).
	Name string `json:"name,omitempty"`

	// ToolCalls is set only on assistant messages that invoke tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set only on tool-role messages, referencing the call
	// this message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolChoiceMode selects how the model is constrained to use tools.
type ToolChoiceMode string

const (
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice constrains tool usage; Function is set only when Mode is
// ToolChoiceFunction.
type ToolChoice struct {
	Mode     ToolChoiceMode
	Function string
}

// ToolDefinition describes a callable tool offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Params holds the optional sampling/limit knobs common to every dialect.
type Params struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
}

// CompletionRequest is the canonical internal request form every dialect
// decodes into and encodes out of.
type CompletionRequest struct {
	// Model is routing input; it is resolved to an upstream id before
	// being sent to a provider, never forwarded verbatim.
	Model      string           `json:"model"`
	Messages   []Message        `json:"messages"`
	Params     Params           `json:"-"`
	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice ToolChoice       `json:"-"`
	Stream     bool             `json:"stream,omitempty"`
}

// Clone returns a shallow copy safe to mutate the Model field of without
// affecting the original (mirrors the failover loop's request.clone()).
func (r CompletionRequest) Clone() CompletionRequest {
	out := r
	out.Messages = append([]Message(nil), r.Messages...)
	return out
}

// FinishReason is the canonical reason a choice stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
)

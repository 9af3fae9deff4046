// Package anthropic defines the wire shapes for Anthropic's Messages API
// and translates between them and the gateway's canonical types. As with
// wire/openai, one struct set serves both our own /v1/messages ingress
// endpoint and the Anthropic provider driver's upstream calls.
package anthropic

// APIVersion is the value Anthropic requires on the anthropic-version
// header on every request.
const APIVersion = "2023-06-01"

type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	StopSeq     []string  `json:"stop_sequences,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  *ToolChoice `json:"tool_choice,omitempty"`
}

// Message content is always an array of blocks on the wire; a bare string
// is accepted on decode for convenience but we always encode the array
// form, matching what Anthropic's own clients send.
type Message struct {
	Role    string  `json:"role"`
	Content any     `json:"content"`
}

type ContentBlock struct {
	Type         string       `json:"type"`
	Text         string       `json:"text,omitempty"`
	Source       *ImageSource `json:"source,omitempty"`
	ID           string       `json:"id,omitempty"`            // tool_use block id
	Name         string       `json:"name,omitempty"`          // tool_use block name
	Input        any          `json:"input,omitempty"`         // tool_use block arguments (object)
	ToolUseID    string       `json:"tool_use_id,omitempty"`   // tool_result block
	ToolResultText string     `json:"content,omitempty"`       // tool_result block text
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema,omitempty"`
}

type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamEvent is the discriminated-union wrapper for every named SSE
// event Anthropic can emit. Only the fields relevant to event.Type are
// populated; see Decoder in stream.go for the state machine that
// assembles these into canonical events.
type StreamEvent struct {
	Type         string        `json:"type"`
	Message      *EventMessage `json:"message,omitempty"`
	Index        int           `json:"index"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *EventDelta   `json:"delta,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
}

type EventMessage struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// EventDelta covers text_delta, input_json_delta (partial tool-call JSON
// arguments), and the message_delta event's stop_reason — exactly one
// group of fields is populated depending on context.
type EventDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type ErrorBody struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

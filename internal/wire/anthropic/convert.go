package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/omnidotdev/synapse/internal/types"
)

// ToCanonical translates a decoded wire Request into the canonical
// CompletionRequest. System is a top-level string in Anthropic's format
// rather than a message with role "system", so it's synthesized back
// into a leading system message to keep internal/types provider-agnostic.
func ToCanonical(req *Request) (*types.CompletionRequest, error) {
	out := &types.CompletionRequest{
		Model:  req.Model,
		Stream: req.Stream,
		Params: types.Params{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			Stop:        req.StopSeq,
			MaxTokens:   &req.MaxTokens,
		},
	}

	if req.System != "" {
		out.Messages = append(out.Messages, types.Message{Role: types.RoleSystem, Content: types.TextContent(req.System)})
	}

	for _, m := range req.Messages {
		msgs, err := messagesToCanonical(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msgs...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, types.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Type {
		case "auto":
			out.ToolChoice = types.ToolChoice{Mode: types.ToolChoiceAuto}
		case "any":
			out.ToolChoice = types.ToolChoice{Mode: types.ToolChoiceRequired}
		case "tool":
			out.ToolChoice = types.ToolChoice{Mode: types.ToolChoiceFunction, Function: req.ToolChoice.Name}
		}
	}

	return out, nil
}

// messagesToCanonical may fan one wire message out into more than one
// canonical message: an assistant turn mixing a text block and tool_use
// blocks maps onto a single canonical message with both Content and
// ToolCalls, but a user turn carrying tool_result blocks maps onto one
// canonical "tool" message per result, since internal/types represents
// tool results as their own role rather than a content-block type.
func messagesToCanonical(m Message) ([]types.Message, error) {
	blocks, err := normalizeBlocks(m.Content)
	if err != nil {
		return nil, err
	}

	if m.Role == "user" {
		var toolResults []types.Message
		var textParts []string
		var parts []types.ContentPart
		for _, b := range blocks {
			switch b.Type {
			case "tool_result":
				toolResults = append(toolResults, types.Message{
					Role: types.RoleTool, ToolCallID: b.ToolUseID, Content: types.TextContent(b.ToolResultText),
				})
			case "text":
				textParts = append(textParts, b.Text)
				parts = append(parts, types.ContentPart{Type: "text", Text: b.Text})
			case "image":
				if b.Source != nil {
					parts = append(parts, types.ContentPart{Type: "image_url", ImageURL: "data:" + b.Source.MediaType + ";base64," + b.Source.Data})
				}
			}
		}
		var msgs []types.Message
		if len(parts) > 0 {
			if len(parts) == 1 && parts[0].Type == "text" {
				msgs = append(msgs, types.Message{Role: types.RoleUser, Content: types.TextContent(parts[0].Text)})
			} else {
				msgs = append(msgs, types.Message{Role: types.RoleUser, Content: types.PartsContent(parts)})
			}
		}
		return append(msgs, toolResults...), nil
	}

	// assistant
	out := types.Message{Role: types.RoleAssistant}
	var textParts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "tool_use":
			args, _ := json.Marshal(b.Input)
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: b.ID, Function: types.FunctionCall{Name: b.Name, Arguments: string(args)}})
		}
	}
	out.Content = types.TextContent(strings.Join(textParts, ""))
	return []types.Message{out}, nil
}

func normalizeBlocks(content any) ([]ContentBlock, error) {
	switch v := content.(type) {
	case string:
		return []ContentBlock{{Type: "text", Text: v}}, nil
	case []any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var blocks []ContentBlock
		if err := json.Unmarshal(data, &blocks); err != nil {
			return nil, err
		}
		return blocks, nil
	default:
		return nil, nil
	}
}

// FromCanonical builds a wire Request for egress to the Anthropic API.
func FromCanonical(req *types.CompletionRequest) *Request {
	out := &Request{
		Model: req.Model, Stream: req.Stream,
		Temperature: req.Params.Temperature, TopP: req.Params.TopP, StopSeq: req.Params.Stop,
	}
	if req.Params.MaxTokens != nil {
		out.MaxTokens = *req.Params.MaxTokens
	} else {
		out.MaxTokens = 4096
	}

	var systemParts []string
	// Tool results arrive as canonical role=="tool" messages; Anthropic
	// expects them folded into the *next* user message's content blocks,
	// so we buffer and flush them as we walk the list.
	var pendingToolResults []ContentBlock

	for _, m := range req.Messages {
		switch m.Role {
		case types.RoleSystem:
			systemParts = append(systemParts, m.Content.AsText())
		case types.RoleTool:
			pendingToolResults = append(pendingToolResults, ContentBlock{Type: "tool_result", ToolUseID: m.ToolCallID, ToolResultText: m.Content.AsText()})
		case types.RoleAssistant:
			var blocks []ContentBlock
			if text := m.Content.AsText(); text != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: text})
			}
			for _, tc := range m.ToolCalls {
				var input any
				json.Unmarshal([]byte(tc.Function.Arguments), &input)
				blocks = append(blocks, ContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input})
			}
			out.Messages = append(out.Messages, Message{Role: "assistant", Content: blocks})
		default: // user
			var blocks []ContentBlock
			if len(pendingToolResults) > 0 {
				blocks = append(blocks, pendingToolResults...)
				pendingToolResults = nil
			}
			blocks = append(blocks, userBlocksFromContent(m.Content)...)
			out.Messages = append(out.Messages, Message{Role: "user", Content: blocks})
		}
	}
	if len(pendingToolResults) > 0 {
		out.Messages = append(out.Messages, Message{Role: "user", Content: pendingToolResults})
	}
	if len(systemParts) > 0 {
		out.System = strings.Join(systemParts, "\n")
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	switch req.ToolChoice.Mode {
	case types.ToolChoiceRequired:
		out.ToolChoice = &ToolChoice{Type: "any"}
	case types.ToolChoiceFunction:
		out.ToolChoice = &ToolChoice{Type: "tool", Name: req.ToolChoice.Function}
	case types.ToolChoiceAuto:
		out.ToolChoice = &ToolChoice{Type: "auto"}
	}

	return out
}

func userBlocksFromContent(c types.Content) []ContentBlock {
	if c.Parts != nil {
		var blocks []ContentBlock
		for _, p := range c.Parts {
			if p.Type == "image_url" {
				blocks = append(blocks, ContentBlock{Type: "image", Source: dataURLToSource(p.ImageURL)})
			} else {
				blocks = append(blocks, ContentBlock{Type: "text", Text: p.Text})
			}
		}
		return blocks
	}
	return []ContentBlock{{Type: "text", Text: c.AsText()}}
}

func dataURLToSource(dataURL string) *ImageSource {
	// Expect "data:<media_type>;base64,<data>"; anything else is passed
	// through as an empty source rather than guessing.
	prefix, data, ok := strings.Cut(dataURL, ";base64,")
	if !ok {
		return &ImageSource{}
	}
	mediaType := strings.TrimPrefix(prefix, "data:")
	return &ImageSource{Type: "base64", MediaType: mediaType, Data: data}
}

// ResponseFromCanonical builds a wire Response for our own /v1/messages
// ingress endpoint.
func ResponseFromCanonical(resp *types.CompletionResponse) *Response {
	if len(resp.Choices) == 0 {
		return &Response{ID: resp.ID, Type: "message", Role: "assistant", Model: resp.Model}
	}
	choice := resp.Choices[0]
	out := &Response{
		ID: resp.ID, Type: "message", Role: "assistant", Model: resp.Model,
		StopReason: anthropicStopReason(choice.FinishReason),
		Usage:      Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}
	if choice.Message.Text != "" {
		out.Content = append(out.Content, ContentBlock{Type: "text", Text: choice.Message.Text})
	}
	for _, tc := range choice.Message.ToolCalls {
		var input any
		json.Unmarshal([]byte(tc.Function.Arguments), &input)
		out.Content = append(out.Content, ContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	return out
}

func anthropicStopReason(r types.FinishReason) string {
	switch r {
	case types.FinishStop:
		return "end_turn"
	case types.FinishLength:
		return "max_tokens"
	case types.FinishToolCalls:
		return "tool_use"
	default:
		return "end_turn"
	}
}

func canonicalFinishReason(stopReason string) types.FinishReason {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return types.FinishStop
	case "max_tokens":
		return types.FinishLength
	case "tool_use":
		return types.FinishToolCalls
	default:
		return types.FinishStop
	}
}

// ResponseToCanonical decodes an upstream Anthropic Response.
func ResponseToCanonical(resp *Response) *types.CompletionResponse {
	cm := types.ChoiceMessage{Role: types.RoleAssistant}
	var textParts []string
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "tool_use":
			args, _ := json.Marshal(b.Input)
			cm.ToolCalls = append(cm.ToolCalls, types.BuildToolCall(b.ID, b.Name, string(args)))
		}
	}
	cm.Text = strings.Join(textParts, "")

	finish := canonicalFinishReason(resp.StopReason)
	if len(cm.ToolCalls) > 0 {
		finish = types.FinishToolCalls
	}

	return &types.CompletionResponse{
		ID: resp.ID, Object: "message", Model: resp.Model,
		Usage:   types.Usage{PromptTokens: resp.Usage.InputTokens, CompletionTokens: resp.Usage.OutputTokens, TotalTokens: resp.Usage.InputTokens + resp.Usage.OutputTokens},
		Choices: []types.Choice{{Index: 0, Message: cm, FinishReason: finish}},
	}
}

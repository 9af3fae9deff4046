package openai

import (
	"encoding/json"
	"fmt"

	"github.com/omnidotdev/synapse/internal/types"
)

// ToCanonical translates a decoded wire Request into our canonical
// CompletionRequest. Used both when a client POSTs to our own
// /v1/chat/completions endpoint and, symmetrically, is the inverse of
// FromCanonical when round-tripping through tests.
func ToCanonical(req *Request) (*types.CompletionRequest, error) {
	out := &types.CompletionRequest{
		Model:  req.Model,
		Stream: req.Stream,
		Params: types.Params{
			Temperature:      req.Temperature,
			TopP:             req.TopP,
			MaxTokens:        req.MaxTokens,
			Stop:             req.Stop,
			FrequencyPenalty: req.FrequencyPenalty,
			PresencePenalty:  req.PresencePenalty,
			Seed:             req.Seed,
		},
	}

	for _, m := range req.Messages {
		cm, err := messageToCanonical(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, cm)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, types.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	out.ToolChoice = toolChoiceToCanonical(req.ToolChoice)

	return out, nil
}

func messageToCanonical(m Message) (types.Message, error) {
	content, err := contentToCanonical(m.Content)
	if err != nil {
		return types.Message{}, err
	}

	cm := types.Message{
		Role:       types.Role(m.Role),
		Content:    content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		cm.ToolCalls = append(cm.ToolCalls, types.ToolCall{
			ID: tc.ID,
			Function: types.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return cm, nil
}

// contentToCanonical normalizes the `any`-typed wire content field: OpenAI
// accepts either a bare string or an array of {type, text|image_url}
// objects. We re-marshal and type-switch rather than trying to assert
// directly off the json.Unmarshal-produced any, since json.Unmarshal
// always hands us map[string]any/[]any for object/array values.
func contentToCanonical(raw any) (types.Content, error) {
	switch v := raw.(type) {
	case nil:
		return types.Content{}, nil
	case string:
		return types.TextContent(v), nil
	case []any:
		data, err := json.Marshal(v)
		if err != nil {
			return types.Content{}, fmt.Errorf("openai: re-marshaling content parts: %w", err)
		}
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return types.Content{}, fmt.Errorf("openai: decoding content parts: %w", err)
		}
		var out []types.ContentPart
		for _, p := range parts {
			cp := types.ContentPart{Type: p.Type, Text: p.Text}
			if p.ImageURL != nil {
				cp.ImageURL = p.ImageURL.URL
				cp.Detail = p.ImageURL.Detail
			}
			out = append(out, cp)
		}
		return types.PartsContent(out), nil
	default:
		return types.Content{}, fmt.Errorf("openai: unsupported content shape %T", raw)
	}
}

func toolChoiceToCanonical(raw any) types.ToolChoice {
	switch v := raw.(type) {
	case nil:
		return types.ToolChoice{}
	case string:
		switch v {
		case "auto":
			return types.ToolChoice{Mode: types.ToolChoiceAuto}
		case "none":
			return types.ToolChoice{Mode: types.ToolChoiceNone}
		case "required":
			return types.ToolChoice{Mode: types.ToolChoiceRequired}
		}
	case map[string]any:
		if fn, ok := v["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok {
				return types.ToolChoice{Mode: types.ToolChoiceFunction, Function: name}
			}
		}
	}
	return types.ToolChoice{Mode: types.ToolChoiceAuto}
}

// FromCanonical builds a wire Request from a canonical CompletionRequest,
// for egress to an OpenAI-compatible upstream. includeUsage should only be
// set true for the canonical api.openai.com host (see provider/openai.go).
func FromCanonical(req *types.CompletionRequest, includeUsage bool) *Request {
	out := &Request{
		Model:            req.Model,
		Stream:           req.Stream,
		Temperature:      req.Params.Temperature,
		TopP:             req.Params.TopP,
		MaxTokens:        req.Params.MaxTokens,
		Stop:             req.Params.Stop,
		FrequencyPenalty: req.Params.FrequencyPenalty,
		PresencePenalty:  req.Params.PresencePenalty,
		Seed:             req.Params.Seed,
	}
	if req.Stream && includeUsage {
		out.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, messageFromCanonical(m))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{Type: "function", Function: ToolFunction{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		}})
	}
	out.ToolChoice = toolChoiceFromCanonical(req.ToolChoice)

	return out
}

func messageFromCanonical(m types.Message) Message {
	wm := Message{
		Role:       string(m.Role),
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	if m.Content.Parts != nil {
		var parts []ContentPart
		for _, p := range m.Content.Parts {
			cp := ContentPart{Type: p.Type, Text: p.Text}
			if p.ImageURL != "" {
				cp.ImageURL = &ImageURL{URL: p.ImageURL, Detail: p.Detail}
			}
			parts = append(parts, cp)
		}
		wm.Content = parts
	} else {
		wm.Content = m.Content.AsText()
	}
	for _, tc := range m.ToolCalls {
		wm.ToolCalls = append(wm.ToolCalls, ToolCall{
			ID: tc.ID, Type: "function",
			Function: FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}
	return wm
}

func toolChoiceFromCanonical(tc types.ToolChoice) any {
	switch tc.Mode {
	case types.ToolChoiceAuto, "":
		return nil
	case types.ToolChoiceNone:
		return "none"
	case types.ToolChoiceRequired:
		return "required"
	case types.ToolChoiceFunction:
		return map[string]any{"type": "function", "function": map[string]any{"name": tc.Function}}
	}
	return nil
}

// ResponseFromCanonical builds a wire Response for replying to a client.
func ResponseFromCanonical(resp *types.CompletionResponse) *Response {
	out := &Response{
		ID: resp.ID, Object: "chat.completion", Created: resp.Created, Model: resp.Model,
		Usage: &Usage{
			PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens: resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		reason := finishReasonString(c.FinishReason)
		out.Choices = append(out.Choices, Choice{
			Index:        c.Index,
			Message:      messageFromChoice(c.Message),
			FinishReason: reason,
		})
	}
	return out
}

func messageFromChoice(cm types.ChoiceMessage) Message {
	m := Message{Role: string(types.RoleAssistant), Content: cm.Text}
	for _, tc := range cm.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, ToolCall{ID: tc.ID, Type: "function", Function: FunctionCall{
			Name: tc.Function.Name, Arguments: tc.Function.Arguments,
		}})
	}
	return m
}

func finishReasonString(r types.FinishReason) *string {
	if r == "" {
		return nil
	}
	s := string(r)
	return &s
}

// ResponseToCanonical decodes an upstream OpenAI-compatible Response into
// our canonical CompletionResponse.
func ResponseToCanonical(resp *Response) *types.CompletionResponse {
	out := &types.CompletionResponse{
		ID: resp.ID, Object: resp.Object, Created: resp.Created, Model: resp.Model,
	}
	if resp.Usage != nil {
		out.Usage = types.Usage{
			PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens: resp.Usage.TotalTokens,
		}
	}
	for _, c := range resp.Choices {
		cm := types.ChoiceMessage{Role: types.Role(c.Message.Role), Text: textOf(c.Message.Content)}
		for _, tc := range c.Message.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, types.BuildToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
		}
		var reason types.FinishReason
		if c.FinishReason != nil {
			reason = types.FinishReason(*c.FinishReason)
		}
		out.Choices = append(out.Choices, types.Choice{Index: c.Index, Message: cm, FinishReason: reason})
	}
	return out
}

func textOf(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}

// ChunkToEvents translates one decoded upstream ChunkResponse into zero or
// more canonical StreamEvents. toolIndex tracks the internal monotone
// index assigned the first time each upstream tool-call index is seen
// (spec's tool-call streaming invariant): it must be shared across calls
// for the lifetime of one response stream.
func ChunkToEvents(chunk *ChunkResponse, toolIndex map[int]int, nextIndex *int) []types.StreamEvent {
	var events []types.StreamEvent

	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			events = append(events, types.NewDeltaEvent(types.Delta{
				ChoiceIndex: choice.Index, Text: choice.Delta.Content,
			}))
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx, seen := toolIndex[tc.Index]
			if !seen {
				idx = *nextIndex
				toolIndex[tc.Index] = idx
				*nextIndex++
			}
			events = append(events, types.NewDeltaEvent(types.Delta{
				ChoiceIndex: choice.Index,
				ToolCall: &types.ToolCallDelta{
					Index: idx, ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
				},
			}))
		}
		if choice.FinishReason != nil {
			events = append(events, types.NewDeltaEvent(types.Delta{
				ChoiceIndex: choice.Index, FinishReason: types.FinishReason(*choice.FinishReason),
			}))
		}
	}

	if chunk.Usage != nil {
		events = append(events, types.NewUsageEvent(types.Usage{
			PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens: chunk.Usage.TotalTokens,
		}))
	}

	return events
}

// EventToChunk translates one canonical StreamEvent into a wire chunk for
// egress to an OpenAI-dialect client. Returns ok=false for events that
// don't produce a chunk on this dialect (Done has no OpenAI payload — the
// stream package sends "data: [DONE]" literally instead).
func EventToChunk(id, model string, created int64, ev types.StreamEvent) (*ChunkResponse, bool) {
	switch ev.Kind {
	case types.StreamKindDelta:
		choice := ChunkChoice{Index: ev.Delta.ChoiceIndex}
		if ev.Delta.Text != "" {
			choice.Delta.Content = ev.Delta.Text
		}
		if ev.Delta.ToolCall != nil {
			choice.Delta.ToolCalls = []ChunkToolCall{{
				Index: ev.Delta.ToolCall.Index, ID: ev.Delta.ToolCall.ID,
				Function: FunctionCall{Name: ev.Delta.ToolCall.Name, Arguments: ev.Delta.ToolCall.Arguments},
			}}
		}
		if ev.Delta.FinishReason != "" {
			choice.FinishReason = finishReasonString(ev.Delta.FinishReason)
		}
		return &ChunkResponse{ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
			Choices: []ChunkChoice{choice}}, true
	case types.StreamKindUsage:
		return &ChunkResponse{ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
			Choices: []ChunkChoice{}, Usage: &Usage{
				PromptTokens: ev.Usage.PromptTokens, CompletionTokens: ev.Usage.CompletionTokens,
				TotalTokens: ev.Usage.TotalTokens,
			}}, true
	default:
		return nil, false
	}
}

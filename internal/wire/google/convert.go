package google

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/omnidotdev/synapse/internal/types"
)

// FromCanonical builds a Gemini request from a canonical
// CompletionRequest. System messages are pulled out into
// systemInstruction, and the assistant role is renamed to "model" — the
// two structural differences from OpenAI's flat message list.
func FromCanonical(req *types.CompletionRequest) *Request {
	out := &Request{}

	var systemParts []string
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			systemParts = append(systemParts, m.Content.AsText())
			continue
		}
		out.Contents = append(out.Contents, contentFromCanonical(m))
	}
	if len(systemParts) > 0 {
		out.SystemInstruction = &Content{Parts: []Part{{Text: strings.Join(systemParts, "\n")}}}
	}

	cfg := &GenerationConfig{
		Temperature: req.Params.Temperature, TopP: req.Params.TopP,
		MaxOutputTokens: req.Params.MaxTokens, StopSequences: req.Params.Stop,
	}
	out.GenerationConfig = cfg

	if len(req.Tools) > 0 {
		var decls []FunctionDeclaration
		for _, t := range req.Tools {
			decls = append(decls, FunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		out.Tools = []Tool{{FunctionDeclarations: decls}}
	}
	switch req.ToolChoice.Mode {
	case types.ToolChoiceRequired:
		out.ToolConfig = &ToolConfig{FunctionCallingConfig{Mode: "ANY"}}
	case types.ToolChoiceNone:
		out.ToolConfig = &ToolConfig{FunctionCallingConfig{Mode: "NONE"}}
	}

	return out
}

func contentFromCanonical(m types.Message) Content {
	role := "user"
	switch m.Role {
	case types.RoleAssistant:
		role = "model"
	case types.RoleTool:
		role = "user" // function responses travel as a user-role turn in Gemini
	}

	c := Content{Role: role}
	switch m.Role {
	case types.RoleTool:
		var response any
		if err := json.Unmarshal([]byte(m.Content.AsText()), &response); err != nil {
			response = m.Content.AsText()
		}
		c.Parts = append(c.Parts, Part{FunctionResponse: &FunctionResponse{Name: m.Name, Response: response}})
	default:
		if m.Content.Parts != nil {
			for _, p := range m.Content.Parts {
				if p.Type == "image_url" {
					c.Parts = append(c.Parts, Part{InlineData: inlineDataFromURL(p.ImageURL)})
				} else {
					c.Parts = append(c.Parts, Part{Text: p.Text})
				}
			}
		} else if text := m.Content.AsText(); text != "" {
			c.Parts = append(c.Parts, Part{Text: text})
		}
		for _, tc := range m.ToolCalls {
			var args any
			json.Unmarshal([]byte(tc.Function.Arguments), &args)
			c.Parts = append(c.Parts, Part{FunctionCall: &FunctionCall{Name: tc.Function.Name, Args: args}})
		}
	}
	return c
}

func inlineDataFromURL(dataURL string) *Blob {
	prefix, data, ok := strings.Cut(dataURL, ";base64,")
	if !ok {
		return &Blob{}
	}
	return &Blob{MimeType: strings.TrimPrefix(prefix, "data:"), Data: data}
}

// ResponseToCanonical decodes an upstream Gemini Response.
func ResponseToCanonical(resp *Response, model string) (*types.CompletionResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("google: response has no candidates")
	}
	cand := resp.Candidates[0]

	cm := types.ChoiceMessage{Role: types.RoleAssistant}
	var textParts []string
	for _, p := range cand.Content.Parts {
		if p.FunctionCall != nil {
			args, _ := json.Marshal(p.FunctionCall.Args)
			cm.ToolCalls = append(cm.ToolCalls, types.BuildToolCall("", p.FunctionCall.Name, string(args)))
			continue
		}
		textParts = append(textParts, p.Text)
	}
	cm.Text = strings.Join(textParts, "")

	finish := canonicalFinishReason(cand.FinishReason)
	if len(cm.ToolCalls) > 0 {
		finish = types.FinishToolCalls
	}

	out := &types.CompletionResponse{Object: "message", Model: model, Choices: []types.Choice{{Index: 0, Message: cm, FinishReason: finish}}}
	if resp.UsageMetadata != nil {
		out.Usage = types.Usage{
			PromptTokens: resp.UsageMetadata.PromptTokenCount, CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens: resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

func canonicalFinishReason(r string) types.FinishReason {
	switch r {
	case "STOP":
		return types.FinishStop
	case "MAX_TOKENS":
		return types.FinishLength
	case "SAFETY", "RECITATION":
		return types.FinishContentFilter
	default:
		return types.FinishStop
	}
}

// ChunkToEvents translates one decoded streamGenerateContent chunk into
// canonical StreamEvents. Gemini, unlike OpenAI, repeats the full
// accumulated text in some SDKs but the REST streamGenerateContent
// endpoint sends genuine incremental deltas per chunk, so no
// accumulation is needed here.
func ChunkToEvents(resp *Response, nextToolIndex *int) []types.StreamEvent {
	var events []types.StreamEvent
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.FunctionCall != nil {
				args, _ := json.Marshal(p.FunctionCall.Args)
				idx := *nextToolIndex
				*nextToolIndex++
				events = append(events, types.NewDeltaEvent(types.Delta{
					ChoiceIndex: cand.Index,
					ToolCall:    &types.ToolCallDelta{Index: idx, Name: p.FunctionCall.Name, Arguments: string(args)},
				}))
				continue
			}
			if p.Text != "" {
				events = append(events, types.NewDeltaEvent(types.Delta{ChoiceIndex: cand.Index, Text: p.Text}))
			}
		}
		if cand.FinishReason != "" {
			events = append(events, types.NewDeltaEvent(types.Delta{ChoiceIndex: cand.Index, FinishReason: canonicalFinishReason(cand.FinishReason)}))
		}
	}
	if resp.UsageMetadata != nil {
		events = append(events, types.NewUsageEvent(types.Usage{
			PromptTokens: resp.UsageMetadata.PromptTokenCount, CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens: resp.UsageMetadata.TotalTokenCount,
		}))
	}
	return events
}

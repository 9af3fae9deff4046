package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	awscfg "github.com/aws/aws-sdk-go-v2/config"

	"github.com/omnidotdev/synapse/internal/llmerr"
	canonical "github.com/omnidotdev/synapse/internal/types"
)

// BedrockProvider talks to AWS Bedrock's model-agnostic Converse and
// ConverseStream APIs — the one driver in this package that doesn't
// translate through an internal/wire package, since the AWS SDK already
// exposes a typed, cross-model request/response shape that plays the
// same role our wire structs play for the other three dialects.
type BedrockProvider struct {
	name    string
	client  *bedrockruntime.Client
	mgmt    *bedrock.Client
	caps    Capabilities
}

// NewBedrockProvider builds a client from static credentials (when
// configured) or the default AWS credential chain otherwise.
func NewBedrockProvider(ctx context.Context, name, region, accessKeyID, secretAccessKey string) (*BedrockProvider, error) {
	var opts []func(*awscfg.LoadOptions) error
	opts = append(opts, awscfg.WithRegion(region))
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: loading AWS config: %w", err)
	}

	return &BedrockProvider{
		name:   name,
		client: bedrockruntime.NewFromConfig(cfg),
		mgmt:   bedrock.NewFromConfig(cfg),
		caps:   Capabilities{Streaming: true, ToolCalling: true, Vision: true, LongContext: true},
	}, nil
}

func (p *BedrockProvider) Name() string              { return p.name }
func (p *BedrockProvider) Capabilities() Capabilities { return p.caps }

// ListModels satisfies discovery.Lister via the Bedrock control-plane's
// ListFoundationModels, only available on the management client
// (bedrockruntime has no equivalent call).
func (p *BedrockProvider) ListModels(ctx context.Context) ([]string, error) {
	out, err := p.mgmt.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, fmt.Errorf("bedrock: listing foundation models: %w", err)
	}
	models := make([]string, 0, len(out.ModelSummaries))
	for _, m := range out.ModelSummaries {
		if m.ModelId != nil {
			models = append(models, *m.ModelId)
		}
	}
	return models, nil
}

func (p *BedrockProvider) Complete(ctx context.Context, req *canonical.CompletionRequest) (*canonical.CompletionResponse, error) {
	messages, system, err := toBedrockMessages(req.Messages)
	if err != nil {
		return nil, llmerr.Internal(err)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		Messages:        messages,
		System:          system,
		InferenceConfig: toInferenceConfig(req.Params),
		ToolConfig:      toToolConfig(req.Tools, req.ToolChoice),
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, translateBedrockError(err)
	}

	return bedrockOutputToCanonical(out, req.Model)
}

func (p *BedrockProvider) CompleteStream(ctx context.Context, req *canonical.CompletionRequest) (<-chan StreamResult, error) {
	messages, system, err := toBedrockMessages(req.Messages)
	if err != nil {
		return nil, llmerr.Internal(err)
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(req.Model),
		Messages:        messages,
		System:          system,
		InferenceConfig: toInferenceConfig(req.Params),
		ToolConfig:      toToolConfig(req.Tools, req.ToolChoice),
	}

	out, err := p.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, translateBedrockError(err)
	}

	ch := make(chan StreamResult)

	go func() {
		defer close(ch)

		stream := out.GetStream()
		defer stream.Close()

		var inputTokens, outputTokens int

		for event := range stream.Events() {
			switch v := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch d := v.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					send(ctx, ch, StreamResult{Event: canonical.NewDeltaEvent(canonical.Delta{Text: d.Value})})
				case *types.ContentBlockDeltaMemberToolUse:
					send(ctx, ch, StreamResult{Event: canonical.NewDeltaEvent(canonical.Delta{
						ToolCall: &canonical.ToolCallDelta{Index: int(v.Value.ContentBlockIndex), Arguments: aws.ToString(d.Value.Input)},
					})})
				}
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if tu, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					send(ctx, ch, StreamResult{Event: canonical.NewDeltaEvent(canonical.Delta{
						ToolCall: &canonical.ToolCallDelta{Index: int(v.Value.ContentBlockIndex), ID: aws.ToString(tu.Value.ToolUseId), Name: aws.ToString(tu.Value.Name)},
					})})
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				send(ctx, ch, StreamResult{Event: canonical.NewDeltaEvent(canonical.Delta{FinishReason: bedrockStopReason(v.Value.StopReason)})})
			case *types.ConverseStreamOutputMemberMetadata:
				if v.Value.Usage != nil {
					inputTokens = int(aws.ToInt32(v.Value.Usage.InputTokens))
					outputTokens = int(aws.ToInt32(v.Value.Usage.OutputTokens))
					send(ctx, ch, StreamResult{Event: canonical.NewUsageEvent(canonical.Usage{
						PromptTokens: inputTokens, CompletionTokens: outputTokens, TotalTokens: inputTokens + outputTokens,
					})})
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(ctx, ch, StreamResult{Err: translateBedrockError(err)})
			return
		}
		send(ctx, ch, StreamResult{Event: canonical.DoneEvent})
	}()

	return ch, nil
}

func toInferenceConfig(params canonical.Params) *types.InferenceConfiguration {
	cfg := &types.InferenceConfiguration{}
	if params.Temperature != nil {
		t := float32(*params.Temperature)
		cfg.Temperature = &t
	}
	if params.TopP != nil {
		t := float32(*params.TopP)
		cfg.TopP = &t
	}
	if params.MaxTokens != nil {
		m := int32(*params.MaxTokens)
		cfg.MaxTokens = &m
	}
	cfg.StopSequences = params.Stop
	return cfg
}

func toToolConfig(tools []canonical.ToolDefinition, choice canonical.ToolChoice) *types.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	cfg := &types.ToolConfiguration{}
	for _, t := range tools {
		schema, _ := json.Marshal(t.Parameters)
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name: aws.String(t.Name), Description: aws.String(t.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: documentFromJSON(schema)},
		}})
	}
	switch choice.Mode {
	case canonical.ToolChoiceRequired:
		cfg.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
	case canonical.ToolChoiceFunction:
		cfg.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(choice.Function)}}
	case canonical.ToolChoiceAuto:
		cfg.ToolChoice = &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
	}
	return cfg
}

// documentFromJSON converts a raw JSON schema into the SDK's
// smithydocument.Marshaler-backed Document interface. Bedrock's
// InputSchema wants this opaque document type rather than a typed Go
// struct, since tool schemas are caller-defined JSON Schema.
func documentFromJSON(raw []byte) bedrockDocument {
	var v any
	json.Unmarshal(raw, &v)
	return bedrockDocument{v: v}
}

// bedrockDocument is a minimal smithydocument.Marshaler so arbitrary
// caller-supplied JSON Schema can cross into the Bedrock SDK's opaque
// Document type without a hand-rolled schema struct.
type bedrockDocument struct{ v any }

func (d bedrockDocument) MarshalSmithyDocument() ([]byte, error) { return json.Marshal(d.v) }
func (d bedrockDocument) UnmarshalSmithyDocument(b []byte) error { return json.Unmarshal(b, &d.v) }

func toBedrockMessages(msgs []canonical.Message) ([]types.Message, []types.SystemContentBlock, error) {
	var out []types.Message
	var system []types.SystemContentBlock

	for _, m := range msgs {
		if m.Role == canonical.RoleSystem {
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Content.AsText()})
			continue
		}

		role := types.ConversationRoleUser
		if m.Role == canonical.RoleAssistant {
			role = types.ConversationRoleAssistant
		}

		var blocks []types.ContentBlock
		if m.Role == canonical.RoleTool {
			blocks = append(blocks, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content.AsText()}},
			}})
		} else {
			if text := m.Content.AsText(); text != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: text})
			}
			for _, tc := range m.ToolCalls {
				var input any
				json.Unmarshal([]byte(tc.Function.Arguments), &input)
				blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID), Name: aws.String(tc.Function.Name), Input: bedrockDocument{v: input},
				}})
			}
		}

		out = append(out, types.Message{Role: role, Content: blocks})
	}

	return out, system, nil
}

func bedrockOutputToCanonical(out *bedrockruntime.ConverseOutput, model string) (*canonical.CompletionResponse, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock: unexpected output shape")
	}

	cm := canonical.ChoiceMessage{Role: canonical.RoleAssistant}
	var textParts []string
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			textParts = append(textParts, b.Value)
		case *types.ContentBlockMemberToolUse:
			args, _ := json.Marshal(documentToAny(b.Value.Input))
			cm.ToolCalls = append(cm.ToolCalls, canonical.BuildToolCall(aws.ToString(b.Value.ToolUseId), aws.ToString(b.Value.Name), string(args)))
		}
	}
	for _, part := range textParts {
		cm.Text += part
	}

	resp := &canonical.CompletionResponse{Object: "message", Model: model, Choices: []canonical.Choice{{
		Index: 0, Message: cm, FinishReason: bedrockStopReason(out.StopReason),
	}}}
	if out.Usage != nil {
		resp.Usage = canonical.Usage{
			PromptTokens: int(aws.ToInt32(out.Usage.InputTokens)), CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens: int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

func documentToAny(doc any) any {
	if d, ok := doc.(bedrockDocument); ok {
		return d.v
	}
	return doc
}

func bedrockStopReason(r types.StopReason) canonical.FinishReason {
	switch r {
	case types.StopReasonMaxTokens:
		return canonical.FinishLength
	case types.StopReasonToolUse:
		return canonical.FinishToolCalls
	case types.StopReasonContentFiltered:
		return canonical.FinishContentFilter
	default:
		return canonical.FinishStop
	}
}

func translateBedrockError(err error) error {
	var throttling *types.ThrottlingException
	var notFound *types.ResourceNotFoundException
	var accessDenied *types.AccessDeniedException
	var validation *types.ValidationException

	switch {
	case errors.As(err, &throttling):
		return llmerr.RateLimited(0)
	case errors.As(err, &notFound):
		return llmerr.ModelNotFound(notFound.ErrorMessage())
	case errors.As(err, &accessDenied):
		return llmerr.Unauthorized()
	case errors.As(err, &validation):
		return llmerr.InvalidRequest(validation.ErrorMessage())
	default:
		return llmerr.Upstream(err.Error())
	}
}

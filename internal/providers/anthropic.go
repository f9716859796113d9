package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider is the one concrete Provider this module ships. It is
// deliberately thin: no retry policy, no prompt templating, no streaming.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int64
}

// NewAnthropicProvider constructs a provider bound to apiKey, using
// defaultModel when a ChatRequest does not name one.
func NewAnthropicProvider(apiKey, defaultModel string) *AnthropicProvider {
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-5"
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
		maxTokens:    4096,
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

// Chat implements Provider.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages:  toAnthropicMessages(req.Messages),
	}

	if system := extractSystem(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			param := anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: toAnthropicSchema(t.Parameters),
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &param})
		}
		params.Tools = tools
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("anthropic chat: %w", err)
	}

	return fromAnthropicMessage(msg), nil
}

func extractSystem(messages []Message) string {
	for _, m := range messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var pendingToolResults []anthropic.ContentBlockParamUnion

	// All tool results for one assistant turn must land in a single user
	// message; buffer consecutive tool messages and flush as one.
	flushToolResults := func() {
		if len(pendingToolResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingToolResults...))
			pendingToolResults = nil
		}
	}

	for _, m := range messages {
		switch m.Role {
		case "system":
			continue // surfaced via params.System instead
		case "user":
			flushToolResults()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			flushToolResults()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case "tool":
			pendingToolResults = append(pendingToolResults,
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		}
	}
	flushToolResults()
	return out
}

func toAnthropicSchema(params map[string]interface{}) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{Properties: params["properties"]}
	if required, ok := params["required"].([]string); ok {
		schema.Required = required
	}
	return schema
}

func fromAnthropicMessage(msg *anthropic.Message) ChatResponse {
	resp := ChatResponse{FinishReason: string(msg.StopReason)}
	resp.Usage = Usage{
		PromptTokens:     msg.Usage.InputTokens,
		CompletionTokens: msg.Usage.OutputTokens,
		TotalTokens:      msg.Usage.InputTokens + msg.Usage.OutputTokens,
	}

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			_ = json.Unmarshal(b.Input, &args)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}
	return resp
}

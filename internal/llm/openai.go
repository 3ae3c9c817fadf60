package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAIProvider implements Provider against the Chat Completions streaming
// API, accumulating tool_calls deltas by index the way the API emits them.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: openai API key is required")
	}
	defaultModel := strings.TrimSpace(cfg.DefaultModel)
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: defaultModel,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *StreamEvent, error) {
	if req == nil {
		return nil, errors.New("llm: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertOpenAIMessages(req.Messages),
		Stream:   true,
	}
	if req.ResponseFormat == ResponseFormatJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, NewProviderError("openai", model, err)
	}

	out := make(chan *StreamEvent, 8)
	go p.processStream(stream, out, model)
	return out, nil
}

type openaiToolCallBuild struct {
	id   string
	name string
	args strings.Builder
}

// processStream converts OpenAI's tool_calls deltas, which arrive keyed by
// array index and may split id/name/arguments across separate chunks, into
// one ToolCall event per completed call once the stream reports finish
// reason "tool_calls" (or ends).
func (p *OpenAIProvider) processStream(stream *openai.ChatCompletionStream, out chan<- *StreamEvent, model string) {
	defer close(out)
	defer stream.Close()

	calls := map[int]*openaiToolCallBuild{}
	order := []int{}

	flushCalls := func() {
		for _, idx := range order {
			b := calls[idx]
			if b == nil || b.id == "" || b.name == "" {
				continue
			}
			args := json.RawMessage(b.args.String())
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			out <- &StreamEvent{Kind: EventToolCall, ToolCall: &ToolCall{ID: b.id, Name: b.name, Arguments: args}}
		}
		calls = map[int]*openaiToolCallBuild{}
		order = nil
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				flushCalls()
				out <- &StreamEvent{Kind: EventDone}
				return
			}
			out <- &StreamEvent{Kind: EventError, Err: NewProviderError("openai", model, err)}
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			out <- &StreamEvent{Kind: EventDeltaText, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			b, ok := calls[index]
			if !ok {
				b = &openaiToolCallBuild{}
				calls[index] = b
				order = append(order, index)
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				b.args.WriteString(tc.Function.Arguments)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			flushCalls()
		}
	}
}

func convertOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "tool":
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case "system":
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		case "assistant":
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content})
		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		}
	}
	return result
}

func convertOpenAITools(defs []ToolDef) []openai.Tool {
	result := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		var schema map[string]any
		params := d.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		if err := json.Unmarshal(params, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  schema,
			},
		})
	}
	return result
}

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// OllamaProvider implements Provider against an Ollama-compatible server. It
// speaks two endpoints, matching §6 exactly: `/api/chat` (non-streaming,
// used whenever a tool list or JSON response_format is in play) and
// `/api/generate` (streaming, used for free-form assistant text with an
// optional thinking channel).
type OllamaProvider struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaProvider{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Complete dispatches to the chat or generate endpoint depending on whether
// req carries tools or a forced response_format.
func (p *OllamaProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *StreamEvent, error) {
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
	if model == "" {
		return nil, NewProviderError("ollama", req.Model, errors.New("model is required"))
	}

	if len(req.Tools) > 0 || req.ResponseFormat == ResponseFormatJSON {
		return p.completeChat(ctx, req, model)
	}
	return p.completeGenerate(ctx, req, model)
}

// completeChat issues a single non-streaming /api/chat call and replays the
// result as a delta (+ tool_call events) followed by done, per §6.
func (p *OllamaProvider) completeChat(ctx context.Context, req *CompletionRequest, model string) (<-chan *StreamEvent, error) {
	payload := ollamaChatRequest{
		Model:    model,
		Stream:   false,
		Messages: buildOllamaMessages(req),
	}
	if req.ResponseFormat == ResponseFormatJSON {
		payload.Format = "json"
	}
	if len(req.Tools) > 0 {
		payload.Tools = buildOllamaTools(req.Tools)
	}
	if req.Params != nil {
		payload.Options = req.Params
	}

	resp, err := p.post(ctx, "/api/chat", payload, model)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, NewProviderError("ollama", model, fmt.Errorf("read response: %w", err))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, NewProviderError("ollama", model, fmt.Errorf("decode response: %w", err))
	}
	if chatResp.Error != "" {
		return nil, NewProviderError("ollama", model, errors.New(chatResp.Error))
	}

	out := make(chan *StreamEvent, 8)
	go func() {
		defer close(out)
		if chatResp.Message != nil {
			if chatResp.Message.Content != "" {
				out <- &StreamEvent{Kind: EventDeltaText, Text: chatResp.Message.Content}
			}
			seen := map[string]struct{}{}
			for _, tc := range chatResp.Message.ToolCalls {
				callID := strings.TrimSpace(tc.ID)
				if callID == "" {
					callID = toolCallKey(tc)
				}
				if callID == "" {
					callID = uuid.NewString()
				}
				if _, ok := seen[callID]; ok {
					continue
				}
				seen[callID] = struct{}{}
				args := tc.Function.Arguments
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				out <- &StreamEvent{
					Kind: EventToolCall,
					ToolCall: &ToolCall{
						ID:        callID,
						Name:      strings.TrimSpace(tc.Function.Name),
						Arguments: args,
					},
				}
			}
		}
		out <- &StreamEvent{
			Kind:         EventDone,
			InputTokens:  chatResp.PromptEvalCount,
			OutputTokens: chatResp.EvalCount,
		}
	}()
	return out, nil
}

// completeGenerate issues a streaming /api/generate call, parsing
// newline-delimited `{response, thinking, done}` objects.
func (p *OllamaProvider) completeGenerate(ctx context.Context, req *CompletionRequest, model string) (<-chan *StreamEvent, error) {
	payload := ollamaGenerateRequest{
		Model:  model,
		Prompt: renderPrompt(req.Messages),
		Stream: true,
	}
	if req.Params != nil {
		payload.Options = req.Params
	}

	resp, err := p.post(ctx, "/api/generate", payload, model)
	if err != nil {
		return nil, err
	}

	out := make(chan *StreamEvent)
	go p.streamGenerate(ctx, resp.Body, out, model)
	return out, nil
}

func (p *OllamaProvider) streamGenerate(ctx context.Context, body io.ReadCloser, out chan *StreamEvent, model string) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- &StreamEvent{Kind: EventError, Err: ctx.Err()}
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaGenerateResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			out <- &StreamEvent{Kind: EventError, Err: NewProviderError("ollama", model, fmt.Errorf("decode response: %w", err))}
			return
		}
		if chunk.Error != "" {
			out <- &StreamEvent{Kind: EventError, Err: NewProviderError("ollama", model, errors.New(chunk.Error))}
			return
		}
		if chunk.Thinking != "" {
			out <- &StreamEvent{Kind: EventDeltaThinking, Thinking: chunk.Thinking}
		}
		if chunk.Response != "" {
			out <- &StreamEvent{Kind: EventDeltaText, Text: chunk.Response}
		}
		if chunk.Done {
			out <- &StreamEvent{
				Kind:         EventDone,
				InputTokens:  chunk.PromptEvalCount,
				OutputTokens: chunk.EvalCount,
			}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		out <- &StreamEvent{Kind: EventError, Err: NewProviderError("ollama", model, err)}
	}
}

func (p *OllamaProvider) post(ctx context.Context, path string, payload any, model string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProviderError("ollama", model, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError("ollama", model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewProviderError("ollama", model, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if readErr != nil {
			return nil, NewProviderError("ollama", model, fmt.Errorf("status %d (read body failed: %w)", resp.StatusCode, readErr)).WithStatus(resp.StatusCode)
		}
		return nil, NewProviderError("ollama", model, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
	}
	return resp, nil
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []ollamaTool        `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	Error           string             `json:"error"`
	EvalCount       int                `json:"eval_count"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

type ollamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFuncSpec `json:"function"`
}

type ollamaToolFuncSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Thinking        string `json:"thinking"`
	Done            bool   `json:"done"`
	Error           string `json:"error"`
	EvalCount       int    `json:"eval_count"`
	PromptEvalCount int    `json:"prompt_eval_count"`
}

func buildOllamaMessages(req *CompletionRequest) []ollamaChatMessage {
	messages := make([]ollamaChatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := msg.Role
		if role == "" {
			role = "user"
		}
		messages = append(messages, ollamaChatMessage{Role: role, Content: msg.Content})
	}
	return messages
}

func buildOllamaTools(defs []ToolDef) []ollamaTool {
	tools := make([]ollamaTool, 0, len(defs))
	for _, d := range defs {
		params := d.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		tools = append(tools, ollamaTool{
			Type: "function",
			Function: ollamaToolFuncSpec{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

// renderPrompt flattens a message list into a single prompt string for
// `/api/generate`, which has no notion of conversational roles.
func renderPrompt(messages []Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Role {
		case "system":
			b.WriteString(msg.Content)
		case "assistant":
			b.WriteString("Assistant: ")
			b.WriteString(msg.Content)
		default:
			b.WriteString(msg.Content)
		}
	}
	return b.String()
}

func toolCallKey(tc ollamaToolCall) string {
	if id := strings.TrimSpace(tc.ID); id != "" {
		return id
	}
	name := strings.TrimSpace(tc.Function.Name)
	args := strings.TrimSpace(string(tc.Function.Arguments))
	if name == "" && args == "" {
		return ""
	}
	return name + ":" + args
}

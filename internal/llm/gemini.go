package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
}

// GeminiProvider implements Provider against the Gemini API's
// GenerateContentStream, which surfaces its events as a Go 1.23 iterator
// rather than a channel. Gemini never assigns tool call IDs, so the provider
// mints one per call the way the engine's tool loop expects.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: gemini API key is required")
	}
	defaultModel := strings.TrimSpace(cfg.DefaultModel)
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewProviderError("gemini", defaultModel, err)
	}

	return &GeminiProvider{client: client, defaultModel: defaultModel}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *StreamEvent, error) {
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

	contents := convertGeminiMessages(req.Messages)
	config := buildGeminiConfig(req)

	out := make(chan *StreamEvent, 8)
	go func() {
		defer close(out)

		streamIter := p.client.Models.GenerateContentStream(ctx, model, contents, config)
		for resp, err := range streamIter {
			select {
			case <-ctx.Done():
				out <- &StreamEvent{Kind: EventError, Err: ctx.Err()}
				return
			default:
			}
			if err != nil {
				out <- &StreamEvent{Kind: EventError, Err: NewProviderError("gemini", model, err)}
				return
			}
			if resp == nil {
				continue
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" {
						out <- &StreamEvent{Kind: EventDeltaText, Text: part.Text}
					}
					if part.FunctionCall != nil {
						argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
						if jsonErr != nil {
							argsJSON = []byte("{}")
						}
						out <- &StreamEvent{
							Kind: EventToolCall,
							ToolCall: &ToolCall{
								ID:        "call_" + uuid.NewString(),
								Name:      part.FunctionCall.Name,
								Arguments: argsJSON,
							},
						}
					}
				}
			}
		}
		out <- &StreamEvent{Kind: EventDone}
	}()

	return out, nil
}

func convertGeminiMessages(messages []Message) []*genai.Content {
	var result []*genai.Content
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		content := &genai.Content{}
		switch msg.Role {
		case "assistant":
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if msg.Role == "tool" {
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"result": msg.Content}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Response: response},
			})
		} else if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result
}

func buildGeminiConfig(req *CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	for _, msg := range req.Messages {
		if msg.Role == "system" && msg.Content != "" {
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: msg.Content}}}
			break
		}
	}

	if req.ResponseFormat == ResponseFormatJSON {
		config.ResponseMIMEType = "application/json"
	}

	if len(req.Tools) > 0 {
		config.Tools = convertGeminiTools(req.Tools)
	}

	return config
}

func convertGeminiTools(defs []ToolDef) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		var schema *genai.Schema
		params := d.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		if err := json.Unmarshal(params, &schema); err != nil {
			schema = &genai.Schema{Type: genai.TypeObject}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

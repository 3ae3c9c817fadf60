package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockConfig configures the Bedrock provider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

// BedrockProvider implements Provider against AWS Bedrock's ConverseStream
// API, authenticating via the standard AWS credential chain (or explicit
// static credentials when provided).
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
}

var _ Provider = (*BedrockProvider)(nil)

// loadBedrockAWSConfig resolves credentials the same way for both the
// runtime ConverseStream client and the control-plane discovery client:
// explicit static credentials when given, the standard AWS credential chain
// otherwise.
func loadBedrockAWSConfig(ctx context.Context, cfg BedrockConfig) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		return awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	}
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
}

// NewBedrockProvider creates a new Bedrock provider.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	defaultModel := strings.TrimSpace(cfg.DefaultModel)
	if defaultModel == "" {
		defaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	awsCfg, err := loadBedrockAWSConfig(ctx, cfg)
	if err != nil {
		return nil, NewProviderError("bedrock", defaultModel, err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: defaultModel,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *StreamEvent, error) {
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

	messages, system := convertBedrockMessages(req.Messages)

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if system != "" {
		converseReq.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if len(req.Tools) > 0 {
		converseReq.ToolConfig = convertBedrockTools(req.Tools)
	}

	stream, err := p.client.ConverseStream(ctx, converseReq)
	if err != nil {
		return nil, NewProviderError("bedrock", model, err)
	}

	out := make(chan *StreamEvent, 8)
	go p.processStream(ctx, stream, out, model)
	return out, nil
}

func (p *BedrockProvider) processStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, out chan<- *StreamEvent, model string) {
	defer close(out)
	eventStream := stream.GetStream()
	defer eventStream.Close()

	var toolID, toolName string
	var toolInput strings.Builder
	inTool := false

	eventChan := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			out <- &StreamEvent{Kind: EventError, Err: ctx.Err()}
			return
		case event, ok := <-eventChan:
			if !ok {
				if err := eventStream.Err(); err != nil {
					out <- &StreamEvent{Kind: EventError, Err: NewProviderError("bedrock", model, err)}
				} else {
					out <- &StreamEvent{Kind: EventDone}
				}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					toolID = aws.ToString(toolUse.Value.ToolUseId)
					toolName = aws.ToString(toolUse.Value.Name)
					toolInput.Reset()
					inTool = true
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						out <- &StreamEvent{Kind: EventDeltaText, Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if inTool {
					args := json.RawMessage(toolInput.String())
					if len(args) == 0 {
						args = json.RawMessage(`{}`)
					}
					out <- &StreamEvent{Kind: EventToolCall, ToolCall: &ToolCall{ID: toolID, Name: toolName, Arguments: args}}
					inTool = false
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				out <- &StreamEvent{Kind: EventDone}
				return
			}
		}
	}
}

func convertBedrockMessages(messages []Message) ([]types.Message, string) {
	result := make([]types.Message, 0, len(messages))
	var system string

	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content
			continue
		}

		var content []types.ContentBlock
		if msg.Role == "tool" {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: msg.Content}},
				},
			})
		} else if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}

		role := types.ConversationRoleUser
		if msg.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		if len(content) > 0 {
			result = append(result, types.Message{Role: role, Content: content})
		}
	}

	return result, system
}

func convertBedrockTools(defs []ToolDef) *types.ToolConfiguration {
	tools := make([]types.Tool, 0, len(defs))
	for _, d := range defs {
		var inputDoc any
		params := d.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		if err := json.Unmarshal(params, &inputDoc); err != nil {
			inputDoc = map[string]any{}
		}
		tools = append(tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(inputDoc)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: tools}
}

// VerifyBedrockModel confirms cfg's credentials can reach the Bedrock
// control plane and, when modelID is non-empty, that it names one of the
// account's available foundation models. Grounded on the teacher's
// bedrock.DiscoverModels (internal/providers/bedrock/discovery.go), scoped
// down from its cached discovery catalog to the single reachability check
// the doctor subcommand needs.
func VerifyBedrockModel(ctx context.Context, cfg BedrockConfig, modelID string) error {
	awsCfg, err := loadBedrockAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bedrock: load aws config: %w", err)
	}

	client := bedrock.NewFromConfig(awsCfg)
	out, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return fmt.Errorf("bedrock: list foundation models: %w", err)
	}
	if modelID == "" {
		return nil
	}
	for _, m := range out.ModelSummaries {
		if m.ModelId != nil && *m.ModelId == modelID {
			return nil
		}
	}
	return fmt.Errorf("bedrock: model %q not found among available foundation models", modelID)
}

package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/harun/magpie/internal/config"
)

// OpenAIProvider generates text and image analysis via chat completions
type OpenAIProvider struct {
	name        string
	client      openai.Client
	model       string
	visionModel string
	maxTokens   int
	temperature float64
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg config.LLMProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4-turbo"
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	name := cfg.Name
	if name == "" {
		name = cfg.Type
	}

	return &OpenAIProvider{
		name:        name,
		client:      openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       model,
		visionModel: visionModel,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name returns the configured provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// GenerateText makes a chat completion call with an optional system prompt
func (p *OpenAIProvider) GenerateText(ctx context.Context, req TextRequest) (Result, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	return p.complete(ctx, p.model, messages)
}

// AnalyzeImage sends the image as a data URI content part
func (p *OpenAIProvider) AnalyzeImage(ctx context.Context, req ImageRequest) (Result, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read image: %w", err)
	}
	mediaType := imageMediaType(req.Path)
	if mediaType == "" {
		return Result{}, fmt.Errorf("unsupported image type: %s", req.Path)
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURI,
		}),
	}))

	return p.complete(ctx, p.visionModel, messages)
}

// AnalyzeVideo is not supported by the chat completions surface used here,
// so the provider yields to the next backend.
func (p *OpenAIProvider) AnalyzeVideo(ctx context.Context, req VideoRequest) (Result, error) {
	return Result{Provider: p.name}, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessageParamUnion) (Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.maxTokens))
	}
	if p.temperature > 0 {
		params.Temperature = openai.Float(p.temperature)
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("openai completion call failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return Result{Provider: p.name}, nil
	}
	return Result{Text: response.Choices[0].Message.Content, Provider: p.name}, nil
}

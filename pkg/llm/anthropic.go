package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harun/magpie/internal/config"
)

// AnthropicProvider generates text and image analysis via Claude
type AnthropicProvider struct {
	name        string
	client      anthropic.Client
	model       string
	visionModel string
	maxTokens   int
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(cfg config.LLMProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4"
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

	return &AnthropicProvider{
		name:        name,
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       model,
		visionModel: visionModel,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name returns the configured provider name
func (p *AnthropicProvider) Name() string {
	return p.name
}

// GenerateText makes a Messages API call with an optional system prompt
func (p *AnthropicProvider) GenerateText(ctx context.Context, req TextRequest) (Result, error) {
	params := anthropic.MessageNewParams{
		Model: anthropic.Model(p.model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		MaxTokens: int64(p.maxTokens),
	}
	p.applyOptions(&params, req.System)

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("anthropic message call failed: %w", err)
	}
	return p.toResult(response), nil
}

// AnalyzeImage sends the image as a base64 block alongside the prompt
func (p *AnthropicProvider) AnalyzeImage(ctx context.Context, req ImageRequest) (Result, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read image: %w", err)
	}
	mediaType := imageMediaType(req.Path)
	if mediaType == "" {
		return Result{}, fmt.Errorf("unsupported image type: %s", req.Path)
	}

	params := anthropic.MessageNewParams{
		Model: anthropic.Model(p.visionModel),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)),
				anthropic.NewTextBlock(req.Prompt),
			),
		},
		MaxTokens: int64(p.maxTokens),
	}
	p.applyOptions(&params, req.System)

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("anthropic image call failed: %w", err)
	}
	return p.toResult(response), nil
}

// AnalyzeVideo is not supported by the Messages API surface used here, so
// the provider yields to the next backend.
func (p *AnthropicProvider) AnalyzeVideo(ctx context.Context, req VideoRequest) (Result, error) {
	return Result{Provider: p.name}, nil
}

func (p *AnthropicProvider) applyOptions(params *anthropic.MessageNewParams, system string) {
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}
	if p.temperature > 0 {
		params.Temperature = anthropic.Float(p.temperature)
	}
}

func (p *AnthropicProvider) toResult(response *anthropic.Message) Result {
	content := ""
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		}
	}
	return Result{Text: content, Provider: p.name}
}

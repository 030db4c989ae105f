package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/harun/magpie/internal/config"
)

// GeminiProvider generates text, image, and video analysis via the Google
// GenAI API. Unlike the other backends it handles video natively.
type GeminiProvider struct {
	name        string
	client      *genai.Client
	model       string
	visionModel string
	maxTokens   int
	temperature float64
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(cfg config.LLMProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = "gemini-1.5-pro"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	name := cfg.Name
	if name == "" {
		name = cfg.Type
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiProvider{
		name:        name,
		client:      client,
		model:       model,
		visionModel: visionModel,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name returns the configured provider name
func (p *GeminiProvider) Name() string {
	return p.name
}

// GenerateText makes a GenerateContent call with an optional system prompt
func (p *GeminiProvider) GenerateText(ctx context.Context, req TextRequest) (Result, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}
	return p.generate(ctx, p.model, contents, req.System)
}

// AnalyzeImage sends the image file as an inline-data part
func (p *GeminiProvider) AnalyzeImage(ctx context.Context, req ImageRequest) (Result, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read image: %w", err)
	}
	mediaType := imageMediaType(req.Path)
	if mediaType == "" {
		return Result{}, fmt.Errorf("unsupported image type: %s", req.Path)
	}

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				genai.NewPartFromBytes(data, mediaType),
				genai.NewPartFromText(req.Prompt),
			},
		},
	}
	return p.generate(ctx, p.visionModel, contents, req.System)
}

// AnalyzeVideo sends the video file as an inline-data part
func (p *GeminiProvider) AnalyzeVideo(ctx context.Context, req VideoRequest) (Result, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read video: %w", err)
	}
	mediaType := videoMediaType(req.Path)
	if mediaType == "" {
		return Result{}, fmt.Errorf("unsupported video type: %s", req.Path)
	}

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				genai.NewPartFromBytes(data, mediaType),
				genai.NewPartFromText(req.Prompt),
			},
		},
	}
	return p.generate(ctx, p.visionModel, contents, req.System)
}

func (p *GeminiProvider) generate(ctx context.Context, model string, contents []*genai.Content, system string) (Result, error) {
	genCfg := &genai.GenerateContentConfig{}
	if p.maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(p.maxTokens)
	}
	if p.temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(p.temperature))
	}
	if system != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}

	result, err := p.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return Result{}, fmt.Errorf("gemini generate call failed: %w", err)
	}
	// Safety-blocked or empty candidates come back as empty text, which
	// the manager treats as a fallback signal rather than an error.
	return Result{Text: result.Text(), Provider: p.name}, nil
}

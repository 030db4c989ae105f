package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values beyond the structural checks in
// Config.Validate, for the validate CLI command.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Google AI API key format (should start with AIza)")
		}
	}

	return nil
}

// ValidateLLMProviderType validates a language backend type
func (v *Validator) ValidateLLMProviderType(ptype string) error {
	validTypes := []string{"anthropic", "openai", "gemini"}
	for _, valid := range validTypes {
		if ptype == valid {
			return nil
		}
	}
	return fmt.Errorf("unknown llm provider type: %s (known: %s)", ptype, strings.Join(validTypes, ", "))
}

// ValidateVectorProviderType validates a vector backend type
func (v *Validator) ValidateVectorProviderType(ptype string) error {
	validTypes := []string{"sqlite", "postgres"}
	for _, valid := range validTypes {
		if ptype == valid {
			return nil
		}
	}
	return fmt.Errorf("unknown vector provider type: %s (known: %s)", ptype, strings.Join(validTypes, ", "))
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateProbability validates a probability value
func (v *Validator) ValidateProbability(p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("probability must be within [0, 1], got %g", p)
	}
	return nil
}

// ValidateConfig performs comprehensive validation and collects every
// problem rather than stopping at the first. Unknown backend types are
// reported here as warnings-by-error because the fallback managers will
// skip those entries at runtime.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	for i, p := range cfg.LLM.Providers {
		if !p.Enabled {
			continue
		}
		if err := v.ValidateLLMProviderType(p.Type); err != nil {
			errors = append(errors, fmt.Errorf("llm provider %d (%s): %w", i, p.Name, err))
			continue
		}
		if err := v.ValidateAPIKey(p.APIKey, p.Type); err != nil {
			errors = append(errors, fmt.Errorf("llm provider %d (%s): %w", i, p.Name, err))
		}
		if p.Model == "" {
			errors = append(errors, fmt.Errorf("llm provider %d (%s): model is required", i, p.Name))
		}
	}

	for i, p := range cfg.Vector.Providers {
		if !p.Enabled {
			continue
		}
		if err := v.ValidateVectorProviderType(p.Type); err != nil {
			errors = append(errors, fmt.Errorf("vector provider %d (%s): %w", i, p.Name, err))
			continue
		}
		switch p.Type {
		case "sqlite":
			if p.Path == "" {
				errors = append(errors, fmt.Errorf("vector provider %d (%s): path is required", i, p.Name))
			}
		case "postgres":
			if p.DSN == "" {
				errors = append(errors, fmt.Errorf("vector provider %d (%s): dsn is required", i, p.Name))
			}
		}
	}

	if engine := cfg.Vector.Embedding.Engine; engine != "" && engine != "openai" && engine != "genai" {
		errors = append(errors, fmt.Errorf("vector.embedding.engine must be openai or genai, got %s", engine))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateProbability(cfg.Posting.MediaProbability); err != nil {
		errors = append(errors, fmt.Errorf("posting.media_probability: %w", err))
	}

	return errors
}

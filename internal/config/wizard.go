package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Wizard walks a first-time user through a minimal working configuration:
// platform credentials, at least one language backend, and a persona file.
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard reading from stdin.
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard.
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Magpie Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	fmt.Println("Platform account:")
	fmt.Println()

	for {
		fmt.Print("Username: ")
		username, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if username == "" {
			fmt.Println("Error: username is required")
			continue
		}
		cfg.Social.Username = username
		break
	}

	fmt.Print("Password (press Enter to rely on a cookie file): ")
	password, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.Social.Password = password

	fmt.Print("Email (used for login challenges, optional): ")
	email, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.Social.Email = email

	fmt.Print("TOTP secret for two-factor login (optional): ")
	secret, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.Social.TwoFASecret = secret

	fmt.Println()
	fmt.Println("Language backends (at least one is required, tried in order):")
	fmt.Println()

	for _, vendor := range []struct {
		ptype string
		label string
		model string
	}{
		{"anthropic", "Anthropic", "claude-sonnet-4-20250514"},
		{"openai", "OpenAI", "gpt-4o"},
		{"gemini", "Gemini", "gemini-2.0-flash"},
	} {
		for {
			fmt.Printf("%s API key (press Enter to skip): ", vendor.label)
			key, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			if err := validator.ValidateAPIKey(key, vendor.ptype); err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			cfg.LLM.Providers = append(cfg.LLM.Providers, LLMProviderConfig{
				Name:    vendor.ptype,
				Type:    vendor.ptype,
				Enabled: true,
				APIKey:  key,
				Model:   vendor.model,
			})
			break
		}
	}

	if len(cfg.LLM.Providers) == 0 {
		return nil, fmt.Errorf("at least one language backend is required")
	}

	fmt.Println()
	fmt.Print("Enable the local vector store for context retrieval? (y/n) [y]: ")
	enable, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if enable == "" || strings.ToLower(enable) == "y" {
		cfg.Vector.Providers = append(cfg.Vector.Providers, VectorProviderConfig{
			Name:    "local",
			Type:    "sqlite",
			Enabled: true,
		})
		cfg.Vector.Embedding.APIKey = cfg.llmKeyFor("openai")
		if cfg.Vector.Embedding.APIKey == "" {
			fmt.Print("OpenAI API key for embeddings: ")
			key, err := w.readLine()
			if err != nil {
				return nil, err
			}
			cfg.Vector.Embedding.APIKey = key
		}
	}

	fmt.Println()
	fmt.Print("Persona file path [persona.json]: ")
	personaPath, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if personaPath == "" {
		personaPath = "persona.json"
	}
	cfg.Persona.Path = personaPath

	fmt.Println()
	fmt.Print("Media directory for image posts (press Enter to skip): ")
	mediaDir, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if mediaDir != "" {
		cfg.Posting.MediaDir = mediaDir
	}

	fmt.Println()
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (c *Config) llmKeyFor(ptype string) string {
	for _, p := range c.LLM.Providers {
		if p.Type == ptype {
			return p.APIKey
		}
	}
	return ""
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

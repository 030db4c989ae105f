package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main magpie configuration
type Config struct {
	// Data directory for ledgers, cookies and queue state
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Persona
	Persona PersonaConfig `json:"persona" mapstructure:"persona"`

	// Social (X) client
	Social SocialConfig `json:"social" mapstructure:"social"`

	// Timeline action processing
	Actions ActionsConfig `json:"actions" mapstructure:"actions"`

	// Original content posting
	Posting PostingConfig `json:"posting" mapstructure:"posting"`

	// Control loop timing
	Loop LoopConfig `json:"loop" mapstructure:"loop"`

	// Language backends, in fallback order
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Vector backends, in fallback order
	Vector VectorConfig `json:"vector" mapstructure:"vector"`

	// Durable ledgers
	Ledger LedgerConfig `json:"ledger" mapstructure:"ledger"`

	// Deferred posting queue
	Queue QueueConfig `json:"queue" mapstructure:"queue"`

	// Ops console (status, metrics, event stream)
	Console ConsoleConfig `json:"console" mapstructure:"console"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// PersonaConfig locates the character file
type PersonaConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// SocialConfig holds X client configuration
type SocialConfig struct {
	Username      string `json:"username" mapstructure:"username"`
	Password      string `json:"password" mapstructure:"password"`
	Email         string `json:"email" mapstructure:"email"`
	TwoFASecret   string `json:"two_fa_secret" mapstructure:"two_fa_secret"`
	CookieFile    string `json:"cookie_file" mapstructure:"cookie_file"`
	UserAgent     string `json:"user_agent" mapstructure:"user_agent"`
	Proxy         string `json:"proxy" mapstructure:"proxy"`
	BaseURL       string `json:"base_url" mapstructure:"base_url"`
	DryRun        bool   `json:"dry_run" mapstructure:"dry_run"`
	BrowserLogin  bool   `json:"browser_login" mapstructure:"browser_login"`
	MaxPostLength int    `json:"max_post_length" mapstructure:"max_post_length"`
	RetryLimit    int    `json:"retry_limit" mapstructure:"retry_limit"`
	TimeoutSecs   int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// ActionsConfig controls the timeline interaction pass
type ActionsConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	IntervalSecs int    `json:"interval_seconds" mapstructure:"interval_seconds"`
	MaxPerCycle  int    `json:"max_per_cycle" mapstructure:"max_per_cycle"`
	Timeline     string `json:"timeline" mapstructure:"timeline"` // home, following
}

// PostingConfig controls the content scheduling pass
type PostingConfig struct {
	Enabled          bool    `json:"enabled" mapstructure:"enabled"`
	IntervalMinSecs  int     `json:"interval_min_seconds" mapstructure:"interval_min_seconds"`
	IntervalMaxSecs  int     `json:"interval_max_seconds" mapstructure:"interval_max_seconds"`
	PostImmediately  bool    `json:"post_immediately" mapstructure:"post_immediately"`
	MaxPerCycle      int     `json:"max_per_cycle" mapstructure:"max_per_cycle"`
	MaxMediaPerCycle int     `json:"max_media_per_cycle" mapstructure:"max_media_per_cycle"`
	MediaProbability float64 `json:"media_probability" mapstructure:"media_probability"`
	MediaDir         string  `json:"media_dir" mapstructure:"media_dir"`
	WatchMediaDir    bool    `json:"watch_media_dir" mapstructure:"watch_media_dir"`
}

// LoopConfig controls the control loop tick
type LoopConfig struct {
	SleepMinSecs float64 `json:"sleep_min_seconds" mapstructure:"sleep_min_seconds"`
	SleepMaxSecs float64 `json:"sleep_max_seconds" mapstructure:"sleep_max_seconds"`
	// MaxCycles bounds the loop for tests and debugging; 0 runs forever
	MaxCycles int `json:"max_cycles" mapstructure:"max_cycles"`
}

// LLMConfig holds language backend configuration
type LLMConfig struct {
	Providers []LLMProviderConfig `json:"providers" mapstructure:"providers"`
}

// LLMProviderConfig represents one language backend entry.
// Slice order defines fallback priority.
type LLMProviderConfig struct {
	Name        string  `json:"name" mapstructure:"name"`
	Type        string  `json:"type" mapstructure:"type"` // anthropic, openai, gemini
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Model       string  `json:"model" mapstructure:"model"`
	VisionModel string  `json:"vision_model" mapstructure:"vision_model"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// VectorConfig holds vector backend configuration
type VectorConfig struct {
	Providers []VectorProviderConfig `json:"providers" mapstructure:"providers"`
	Embedding EmbeddingConfig        `json:"embedding" mapstructure:"embedding"`
}

// VectorProviderConfig represents one vector backend entry.
// Slice order defines fallback priority.
type VectorProviderConfig struct {
	Name    string `json:"name" mapstructure:"name"`
	Type    string `json:"type" mapstructure:"type"` // sqlite, postgres
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"` // sqlite database file
	DSN     string `json:"dsn" mapstructure:"dsn"`   // postgres connection string
	Table   string `json:"table" mapstructure:"table"`
}

// EmbeddingConfig selects the embedding engine used by stores that embed
// text themselves.
type EmbeddingConfig struct {
	Engine     string `json:"engine" mapstructure:"engine"` // openai, genai
	APIKey     string `json:"api_key" mapstructure:"api_key"`
	Model      string `json:"model" mapstructure:"model"`
	Dimensions int    `json:"dimensions" mapstructure:"dimensions"`
}

// LedgerConfig locates the durable idempotence state
type LedgerConfig struct {
	InteractionsFile string `json:"interactions_file" mapstructure:"interactions_file"`
	MediaLogFile     string `json:"media_log_file" mapstructure:"media_log_file"`
}

// QueueConfig controls the deferred posting queue
type QueueConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	File          string `json:"file" mapstructure:"file"`
	PostingWindow string `json:"posting_window" mapstructure:"posting_window"` // cron expression, empty allows any time
	DelayMinSecs  int    `json:"delay_min_seconds" mapstructure:"delay_min_seconds"`
	DelayMaxSecs  int    `json:"delay_max_seconds" mapstructure:"delay_max_seconds"`
}

// ConsoleConfig holds ops console server configuration
type ConsoleConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	Console    bool   `json:"console" mapstructure:"console"`
	Pretty     bool   `json:"pretty" mapstructure:"pretty"`
	Redaction  bool   `json:"redaction" mapstructure:"redaction"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		DataDir: "",
		Social: SocialConfig{
			CookieFile:    "",
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			BaseURL:       "https://api.twitter.com",
			DryRun:        false,
			MaxPostLength: 280,
			RetryLimit:    5,
			TimeoutSecs:   30,
		},
		Actions: ActionsConfig{
			Enabled:      true,
			IntervalSecs: 3600,
			MaxPerCycle:  5,
			Timeline:     "home",
		},
		Posting: PostingConfig{
			Enabled:          true,
			IntervalMinSecs:  7200,
			IntervalMaxSecs:  36000,
			PostImmediately:  false,
			MaxPerCycle:      3,
			MaxMediaPerCycle: 1,
			MediaProbability: 0.3,
			MediaDir:         "media",
			WatchMediaDir:    true,
		},
		Loop: LoopConfig{
			SleepMinSecs: 1,
			SleepMaxSecs: 1,
			MaxCycles:    0,
		},
		LLM: LLMConfig{
			Providers: []LLMProviderConfig{},
		},
		Vector: VectorConfig{
			Providers: []VectorProviderConfig{},
			Embedding: EmbeddingConfig{
				Engine:     "openai",
				Model:      "text-embedding-3-small",
				Dimensions: 1536,
			},
		},
		Queue: QueueConfig{
			Enabled:      false,
			DelayMinSecs: 0,
			DelayMaxSecs: 0,
		},
		Console: ConsoleConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8990,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			Pretty:     true,
			Redaction:  true,
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid. Backend entries with an
// unknown type are deliberately not rejected here: the fallback managers
// skip and log them entry by entry at construction time.
func (c *Config) Validate() error {
	if c.Social.MaxPostLength <= 0 {
		return fmt.Errorf("social.max_post_length must be positive")
	}
	if c.Social.RetryLimit < 0 {
		return fmt.Errorf("social.retry_limit must be >= 0")
	}

	if c.Actions.IntervalSecs < 0 {
		return fmt.Errorf("actions.interval_seconds must be >= 0")
	}
	if c.Actions.MaxPerCycle < 0 {
		return fmt.Errorf("actions.max_per_cycle must be >= 0")
	}
	if c.Actions.Timeline != "" && c.Actions.Timeline != "home" && c.Actions.Timeline != "following" {
		return fmt.Errorf("actions.timeline must be home or following, got %s", c.Actions.Timeline)
	}

	if c.Posting.IntervalMinSecs < 0 || c.Posting.IntervalMaxSecs < 0 {
		return fmt.Errorf("posting interval bounds must be >= 0")
	}
	if c.Posting.IntervalMaxSecs < c.Posting.IntervalMinSecs {
		return fmt.Errorf("posting.interval_max_seconds must be >= posting.interval_min_seconds")
	}
	if c.Posting.MediaProbability < 0 || c.Posting.MediaProbability > 1 {
		return fmt.Errorf("posting.media_probability must be within [0, 1], got %g", c.Posting.MediaProbability)
	}
	if c.Posting.MaxPerCycle < 0 || c.Posting.MaxMediaPerCycle < 0 {
		return fmt.Errorf("posting per-cycle caps must be >= 0")
	}

	if c.Loop.SleepMinSecs < 0 || c.Loop.SleepMaxSecs < 0 {
		return fmt.Errorf("loop sleep bounds must be >= 0")
	}
	if c.Loop.SleepMaxSecs < c.Loop.SleepMinSecs {
		return fmt.Errorf("loop.sleep_max_seconds must be >= loop.sleep_min_seconds")
	}
	if c.Loop.MaxCycles < 0 {
		return fmt.Errorf("loop.max_cycles must be >= 0")
	}

	seen := make(map[string]bool)
	for i, p := range c.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("llm provider %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("llm provider %s: duplicate name", p.Name)
		}
		seen[p.Name] = true
	}

	seen = make(map[string]bool)
	for i, p := range c.Vector.Providers {
		if p.Name == "" {
			return fmt.Errorf("vector provider %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("vector provider %s: duplicate name", p.Name)
		}
		seen[p.Name] = true
	}

	if c.Queue.Enabled {
		if c.Queue.DelayMinSecs < 0 || c.Queue.DelayMaxSecs < c.Queue.DelayMinSecs {
			return fmt.Errorf("queue delay bounds are invalid")
		}
	}

	if c.Console.Enabled {
		if c.Console.Port <= 0 || c.Console.Port > 65535 {
			return fmt.Errorf("console.port must be within (0, 65535], got %d", c.Console.Port)
		}
	}

	return nil
}

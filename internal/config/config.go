package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main turbogenius configuration
type Config struct {
	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Generation engine
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Title summarization engine
	Summarizer SummarizerConfig `json:"summarizer" mapstructure:"summarizer"`

	// Sessions
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Response streams
	Stream StreamConfig `json:"stream" mapstructure:"stream"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// EngineConfig holds generation engine and prompt budget settings
type EngineConfig struct {
	Provider      string  `json:"provider" mapstructure:"provider"` // openai, llama.cpp, vllm
	BaseURL       string  `json:"base_url" mapstructure:"base_url"`
	APIKey        string  `json:"api_key" mapstructure:"api_key"`
	Model         string  `json:"model" mapstructure:"model"`
	ContextLength int     `json:"context_length" mapstructure:"context_length"`
	BudgetRatio   float64 `json:"budget_ratio" mapstructure:"budget_ratio"`
	Template      string  `json:"template" mapstructure:"template"`   // llama3, chatml
	Tokenizer     string  `json:"tokenizer" mapstructure:"tokenizer"` // bytes, remote
	MaxTokens     int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature   float64 `json:"temperature" mapstructure:"temperature"`
	TopP          float64 `json:"top_p" mapstructure:"top_p"`
}

// SummarizerConfig holds title summarizer settings
type SummarizerConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // openai, llama.cpp, vllm, anthropic
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Model     string `json:"model" mapstructure:"model"`
	MaxLength int    `json:"max_length" mapstructure:"max_length"` // runes
}

// SessionConfig holds session settings. A zero IdleTTL keeps sessions
// until they are deleted.
type SessionConfig struct {
	SystemPrompt  string        `json:"system_prompt" mapstructure:"system_prompt"`
	IdleTTL       time.Duration `json:"idle_ttl" mapstructure:"idle_ttl"`
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval"`
}

// StreamConfig holds response stream settings
type StreamConfig struct {
	Pacing                 time.Duration `json:"pacing" mapstructure:"pacing"`
	Buffer                 int           `json:"buffer" mapstructure:"buffer"`
	MaxDuration            time.Duration `json:"max_duration" mapstructure:"max_duration"`
	MaxPromptBytes         int64         `json:"max_prompt_bytes" mapstructure:"max_prompt_bytes"`
	MaxConcurrentPerClient int           `json:"max_concurrent_per_client" mapstructure:"max_concurrent_per_client"`
	RequestsPerMinute      int           `json:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ShutdownTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			Provider:      "llama.cpp",
			BaseURL:       "http://127.0.0.1:8080/v1",
			Model:         "default",
			ContextLength: 8192,
			BudgetRatio:   0.9,
			Template:      "llama3",
			Tokenizer:     "bytes",
			MaxTokens:     1024,
			Temperature:   0.6,
			TopP:          0.9,
		},
		Summarizer: SummarizerConfig{
			Provider:  "llama.cpp",
			BaseURL:   "http://127.0.0.1:8080/v1",
			Model:     "default",
			MaxLength: 48,
		},
		Session: SessionConfig{
			SystemPrompt:  "You are a helpful, concise assistant.",
			IdleTTL:       0,
			SweepInterval: time.Minute,
		},
		Stream: StreamConfig{
			Pacing:                 0,
			Buffer:                 64,
			MaxDuration:            5 * time.Minute,
			MaxPromptBytes:         64 * 1024,
			MaxConcurrentPerClient: 2,
			RequestsPerMinute:      60,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := NewValidator()

	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway: invalid port %d", c.Gateway.Port)
	}
	if c.Gateway.ShutdownTimeout < 0 {
		return fmt.Errorf("gateway: shutdown_timeout must not be negative")
	}

	if err := v.ValidateEngineProvider(c.Engine.Provider); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := v.ValidateBaseURL(c.Engine.BaseURL); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := v.ValidateTemplate(c.Engine.Template); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := v.ValidateTokenizer(c.Engine.Tokenizer, c.Engine.BaseURL); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Engine.ContextLength <= 0 {
		return fmt.Errorf("engine: context_length must be positive")
	}
	if c.Engine.BudgetRatio <= 0 || c.Engine.BudgetRatio > 1 {
		return fmt.Errorf("engine: budget_ratio must be in (0, 1], got %v", c.Engine.BudgetRatio)
	}
	if c.Engine.MaxTokens < 0 {
		return fmt.Errorf("engine: max_tokens must not be negative")
	}
	if err := v.ValidateSampling(c.Engine.Temperature, c.Engine.TopP); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if err := v.ValidateSummarizerProvider(c.Summarizer.Provider); err != nil {
		return fmt.Errorf("summarizer: %w", err)
	}
	if err := v.ValidateBaseURL(c.Summarizer.BaseURL); err != nil {
		return fmt.Errorf("summarizer: %w", err)
	}
	if c.Summarizer.Provider == "anthropic" && c.Summarizer.Model == "" {
		return fmt.Errorf("summarizer: model is required for anthropic")
	}
	if c.Summarizer.MaxLength < 0 {
		return fmt.Errorf("summarizer: max_length must not be negative")
	}

	if c.Session.IdleTTL < 0 {
		return fmt.Errorf("session: idle_ttl must not be negative")
	}
	if c.Session.IdleTTL > 0 && c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session: sweep_interval is required when idle_ttl is set")
	}

	if c.Stream.Pacing < 0 {
		return fmt.Errorf("stream: pacing must not be negative")
	}
	if c.Stream.Buffer < 0 || c.Stream.MaxPromptBytes < 0 || c.Stream.MaxConcurrentPerClient < 0 || c.Stream.RequestsPerMinute < 0 {
		return fmt.Errorf("stream: limits must not be negative")
	}
	if c.Stream.MaxDuration < 0 {
		return fmt.Errorf("stream: max_duration must not be negative")
	}

	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	return nil
}

package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var (
	engineProviders     = []string{"openai", "llama.cpp", "vllm"}
	summarizerProviders = []string{"openai", "llama.cpp", "vllm", "anthropic"}
	templates           = []string{"llama3", "chatml"}
	tokenizers          = []string{"bytes", "remote", "llama.cpp"}
	logLevels           = []string{"debug", "info", "warn", "error"}
)

// Validator validates configuration values
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
	}

	return nil
}

// ValidateEngineProvider validates a generation engine provider
func (v *Validator) ValidateEngineProvider(provider string) error {
	return oneOf("engine provider", provider, engineProviders, true)
}

// ValidateSummarizerProvider validates a summarizer provider
func (v *Validator) ValidateSummarizerProvider(provider string) error {
	return oneOf("summarizer provider", provider, summarizerProviders, true)
}

// ValidateTemplate validates a prompt template name
func (v *Validator) ValidateTemplate(name string) error {
	return oneOf("template", name, templates, true)
}

// ValidateTokenizer validates a tokenizer name. Remote tokenizers need the
// engine base URL.
func (v *Validator) ValidateTokenizer(name, baseURL string) error {
	if err := oneOf("tokenizer", name, tokenizers, true); err != nil {
		return err
	}
	if (name == "remote" || name == "llama.cpp") && baseURL == "" {
		return fmt.Errorf("tokenizer %s requires base_url", name)
	}
	return nil
}

// ValidateBaseURL validates an optional engine endpoint
func (v *Validator) ValidateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base_url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base_url %q: host is required", raw)
	}
	return nil
}

// ValidateSampling validates temperature and top_p
func (v *Validator) ValidateSampling(temperature, topP float64) error {
	if temperature < 0 || temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", temperature)
	}
	if topP < 0 || topP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1, got %v", topP)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	return oneOf("log level", level, logLevels, false)
}

// ValidateConfig reports soft problems that do not stop the gateway from
// starting, such as malformed API keys for hosted providers
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if cfg.Engine.Provider == "openai" {
		if err := v.ValidateAPIKey(cfg.Engine.APIKey, "openai"); err != nil {
			errs = append(errs, fmt.Errorf("engine: %w", err))
		}
	}
	switch cfg.Summarizer.Provider {
	case "openai", "anthropic":
		if err := v.ValidateAPIKey(cfg.Summarizer.APIKey, cfg.Summarizer.Provider); err != nil {
			errs = append(errs, fmt.Errorf("summarizer: %w", err))
		}
	}

	if cfg.Engine.MaxTokens >= cfg.Engine.ContextLength {
		errs = append(errs, fmt.Errorf("engine: max_tokens %d leaves no room for the prompt in context_length %d",
			cfg.Engine.MaxTokens, cfg.Engine.ContextLength))
	}
	if cfg.Session.IdleTTL > 0 && cfg.Session.IdleTTL < cfg.Stream.MaxDuration {
		errs = append(errs, fmt.Errorf("session: idle_ttl %s is shorter than stream max_duration %s",
			cfg.Session.IdleTTL, cfg.Stream.MaxDuration))
	}

	return errs
}

func oneOf(what, value string, valid []string, allowEmpty bool) error {
	if value == "" && allowEmpty {
		return nil
	}
	if slices.Contains(valid, value) {
		return nil
	}
	return fmt.Errorf("invalid %s: %q (must be one of: %s)", what, value, strings.Join(valid, ", "))
}

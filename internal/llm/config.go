package llm

import (
	"fmt"
	"os"
	"time"
)

// Provider names accepted in Config.Provider.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// Config selects and configures the LLM backend.
type Config struct {
	Provider string `yaml:"provider" toml:"provider"`

	Anthropic  AnthropicConfig  `yaml:"anthropic" toml:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" toml:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini" toml:"gemini"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" toml:"openrouter"`
	Retry      RetryConfig      `yaml:"retry" toml:"retry"`

	// Timeout bounds one Generate call including retries.
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
	Model  string `yaml:"model" toml:"model"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
	Model  string `yaml:"model" toml:"model"`
}

type OpenRouterConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// RetryConfig is exponential backoff with jitter. MaxAttempts <= 1
// disables retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait" toml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait" toml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier" toml:"multiplier"`
}

// DefaultConfig uses the mock provider so nothing leaves the machine until a
// real provider is chosen.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderMock,
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "google/gemini-2.0-flash-exp"},
		Retry: RetryConfig{
			MaxAttempts: 2,
			InitialWait: 250 * time.Millisecond,
			MaxWait:     time.Second,
			Multiplier:  2.0,
		},
		Timeout: 10 * time.Second,
	}
}

// ConfigFromEnv returns DefaultConfig with MCA_* overrides applied.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides fields from MCA_LLM_PROVIDER and the per-provider
// MCA_<PROVIDER>_API_KEY / _MODEL / _BASE_URL variables.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Provider, "MCA_LLM_PROVIDER")

	setString(&c.Anthropic.APIKey, "MCA_ANTHROPIC_API_KEY")
	setString(&c.Anthropic.Model, "MCA_ANTHROPIC_MODEL")

	setString(&c.OpenAI.APIKey, "MCA_OPENAI_API_KEY")
	setString(&c.OpenAI.Model, "MCA_OPENAI_MODEL")
	setString(&c.OpenAI.BaseURL, "MCA_OPENAI_BASE_URL")

	setString(&c.Gemini.APIKey, "MCA_GEMINI_API_KEY")
	setString(&c.Gemini.Model, "MCA_GEMINI_MODEL")

	setString(&c.OpenRouter.APIKey, "MCA_OPENROUTER_API_KEY")
	setString(&c.OpenRouter.Model, "MCA_OPENROUTER_MODEL")
	setString(&c.OpenRouter.BaseURL, "MCA_OPENROUTER_BASE_URL")
}

// Validate checks that the selected provider has an API key.
func (c Config) Validate() error {
	var key, env string
	switch c.Provider {
	case ProviderAnthropic:
		key, env = c.Anthropic.APIKey, "MCA_ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		key, env = c.OpenAI.APIKey, "MCA_OPENAI_API_KEY"
	case ProviderGemini:
		key, env = c.Gemini.APIKey, "MCA_GEMINI_API_KEY"
	case ProviderOpenRouter:
		key, env = c.OpenRouter.APIKey, "MCA_OPENROUTER_API_KEY"
	case ProviderMock:
		return nil
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if key == "" {
		return fmt.Errorf("%s is required for the %s provider", env, c.Provider)
	}
	return nil
}

package external

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/abhisek/mca/internal/llm"
)

// Classifier kinds accepted in Config.Kind.
const (
	KindNone = "none"
	KindHTTP = "http"
	KindLLM  = "llm"
)

// DefaultTimeout bounds one external call within a turn.
const DefaultTimeout = 2 * time.Second

// Config selects the external classifier.
type Config struct {
	Kind    string         `yaml:"kind" toml:"kind"`
	BaseURL string         `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration  `yaml:"timeout" toml:"timeout"`
	Options map[string]any `yaml:"options" toml:"options"`
}

func DefaultConfig() Config {
	return Config{Kind: KindNone, Timeout: DefaultTimeout}
}

// httpOptions are the free-form options understood by the HTTP kind.
type httpOptions struct {
	Headers map[string]string `mapstructure:"headers"`
}

// llmOptions are the free-form options understood by the LLM kind.
type llmOptions struct {
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// Validate checks the kind and its required fields.
func (c Config) Validate() error {
	switch c.Kind {
	case "", KindNone, KindLLM:
	case KindHTTP:
		if c.BaseURL == "" {
			return fmt.Errorf("external: base_url is required for the http classifier")
		}
	default:
		return fmt.Errorf("external: unknown classifier kind %q", c.Kind)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("external: timeout must not be negative")
	}
	return nil
}

// New builds the configured classifier. Kind none returns (nil, nil).
// provider is only used by the LLM kind.
func New(cfg Config, provider llm.Provider, log *zap.Logger) (Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindHTTP:
		var o httpOptions
		if err := mapstructure.Decode(cfg.Options, &o); err != nil {
			return nil, fmt.Errorf("external: decode http options: %w", err)
		}
		// The per-turn deadline is set by the caller's context; the client
		// timeout is a backstop for calls made without one.
		opts := []HTTPOption{WithHTTPClient(&http.Client{Timeout: 2 * cfg.EffectiveTimeout()})}
		for k, v := range o.Headers {
			opts = append(opts, WithHeader(k, v))
		}
		return NewHTTPClassifier(cfg.BaseURL, opts...), nil
	case KindLLM:
		if provider == nil {
			return nil, fmt.Errorf("external: llm classifier needs a provider")
		}
		var o llmOptions
		if err := mapstructure.Decode(cfg.Options, &o); err != nil {
			return nil, fmt.Errorf("external: decode llm options: %w", err)
		}
		c := NewLLMClassifier(provider, log)
		if o.MaxTokens > 0 {
			c.maxTokens = o.MaxTokens
		}
		c.temperature = o.Temperature
		return c, nil
	}
	return nil, nil
}

// EffectiveTimeout is Timeout, or DefaultTimeout when unset.
func (c Config) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

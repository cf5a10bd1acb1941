package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/azchat/internal/conversation"
)

// PlaceholderAPIKey is the sentinel shipped as the default key. A service still
// carrying it is reported as not configured.
const PlaceholderAPIKey = "YOUR_AZURE_OPENAI_API_KEY"

// Config contains all runtime settings for the chat relay.
type Config struct {
	BindAddr          string
	ShutdownTimeout   time.Duration
	MetricsNamespace  string
	CORSOrigins       []string
	TrustProxyHeaders bool
	RedactPII         bool
	LogLevel          string
	LogFormat         string

	AzureAPIKey     string
	AzureEndpoint   string
	AzureAPIVersion string
	DeploymentName  string

	CompletionMode             string
	CompletionTimeout          time.Duration
	CompletionMaxTokens        int
	CompletionTemperature      float64
	CompletionTopP             float64
	CompletionFrequencyPenalty float64
	CompletionPresencePenalty  float64

	ConversationMaxTurns     int
	ConversationSystemPrompt string
	ConversationIdleTTL      time.Duration

	TranscriptURL string
}

// AzureConfigured reports whether a real API key has been supplied.
func (c Config) AzureConfigured() bool {
	return c.AzureAPIKey != "" && c.AzureAPIKey != PlaceholderAPIKey
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":5000"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "azchat"),
		CORSOrigins:              listFromEnv("APP_CORS_ORIGINS", []string{"*"}),
		LogLevel:                 envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:                envOrDefault("APP_LOG_FORMAT", "json"),
		AzureAPIKey:              envOrDefault("AZURE_OPENAI_API_KEY", PlaceholderAPIKey),
		AzureEndpoint:            envOrDefault("AZURE_OPENAI_ENDPOINT", "https://your-resource-name.openai.azure.com/"),
		AzureAPIVersion:          envOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
		DeploymentName:           envOrDefault("DEPLOYMENT_NAME", "gpt-4o"),
		CompletionMode:           envOrDefault("COMPLETION_MODE", "azure"),
		ConversationSystemPrompt: envOrDefault("CONVERSATION_SYSTEM_PROMPT", conversation.DefaultSystemPrompt),
		TranscriptURL:            trimmedEnv("TRANSCRIPT_URL"),
		RedactPII:                true,
		ShutdownTimeout:          15 * time.Second,
		CompletionTimeout:        60 * time.Second,
		CompletionMaxTokens:      500,
		CompletionTemperature:    0.7,
		CompletionTopP:           0.9,
		ConversationMaxTurns:     conversation.DefaultMaxTurns,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ConversationIdleTTL, err = durationFromEnv("CONVERSATION_IDLE_TTL", cfg.ConversationIdleTTL); err != nil {
		return Config{}, err
	}
	if cfg.TrustProxyHeaders, err = boolFromEnv("APP_TRUST_PROXY_HEADERS", cfg.TrustProxyHeaders); err != nil {
		return Config{}, err
	}
	if cfg.RedactPII, err = boolFromEnv("APP_REDACT_PII", cfg.RedactPII); err != nil {
		return Config{}, err
	}
	if cfg.CompletionMaxTokens, err = intFromEnv("COMPLETION_MAX_TOKENS", cfg.CompletionMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.ConversationMaxTurns, err = intFromEnv("CONVERSATION_MAX_TURNS", cfg.ConversationMaxTurns); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTemperature, err = floatFromEnv("COMPLETION_TEMPERATURE", cfg.CompletionTemperature); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTopP, err = floatFromEnv("COMPLETION_TOP_P", cfg.CompletionTopP); err != nil {
		return Config{}, err
	}
	if cfg.CompletionFrequencyPenalty, err = floatFromEnv("COMPLETION_FREQUENCY_PENALTY", cfg.CompletionFrequencyPenalty); err != nil {
		return Config{}, err
	}
	if cfg.CompletionPresencePenalty, err = floatFromEnv("COMPLETION_PRESENCE_PENALTY", cfg.CompletionPresencePenalty); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.ConversationMaxTurns <= 0:
		return fmt.Errorf("CONVERSATION_MAX_TURNS must be positive")
	case c.ConversationIdleTTL < 0:
		return fmt.Errorf("CONVERSATION_IDLE_TTL must be >= 0")
	case c.CompletionTimeout <= 0:
		return fmt.Errorf("COMPLETION_TIMEOUT must be positive")
	case c.CompletionMaxTokens <= 0:
		return fmt.Errorf("COMPLETION_MAX_TOKENS must be positive")
	case c.CompletionTemperature < 0 || c.CompletionTemperature > 2:
		return fmt.Errorf("COMPLETION_TEMPERATURE must be within [0, 2]")
	case c.CompletionTopP < 0 || c.CompletionTopP > 1:
		return fmt.Errorf("COMPLETION_TOP_P must be within [0, 1]")
	case c.CompletionFrequencyPenalty < -2 || c.CompletionFrequencyPenalty > 2:
		return fmt.Errorf("COMPLETION_FREQUENCY_PENALTY must be within [-2, 2]")
	case c.CompletionPresencePenalty < -2 || c.CompletionPresencePenalty > 2:
		return fmt.Errorf("COMPLETION_PRESENCE_PENALTY must be within [-2, 2]")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func listFromEnv(key string, fallback []string) []string {
	v := trimmedEnv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

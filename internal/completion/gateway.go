package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/azchat/internal/conversation"
)

// Params are the sampling settings sent with every completion request.
type Params struct {
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// DefaultParams mirrors the settings the service has always shipped with.
func DefaultParams() Params {
	return Params{
		MaxTokens:   500,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// Gateway produces the next assistant turn for a conversation.
type Gateway interface {
	Complete(ctx context.Context, turns []conversation.Turn, p Params) (conversation.Turn, error)
}

// Config controls gateway construction.
type Config struct {
	Mode       string
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string
	Timeout    time.Duration
}

func New(cfg Config) (Gateway, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "azure"
	}

	switch mode {
	case "azure":
		return NewAzureClient(AzureConfig{
			APIKey:     cfg.APIKey,
			Endpoint:   cfg.Endpoint,
			APIVersion: cfg.APIVersion,
			Deployment: cfg.Deployment,
			Timeout:    cfg.Timeout,
		})
	case "mock":
		return NewMockGateway(), nil
	default:
		return nil, fmt.Errorf("unsupported completion mode %q", cfg.Mode)
	}
}

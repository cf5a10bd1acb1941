package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/antoniostano/azchat/internal/chat"
	"github.com/antoniostano/azchat/internal/completion"
	"github.com/antoniostano/azchat/internal/config"
	"github.com/antoniostano/azchat/internal/conversation"
	"github.com/antoniostano/azchat/internal/httpapi"
	"github.com/antoniostano/azchat/internal/observability"
	"github.com/antoniostano/azchat/internal/policy"
	"github.com/antoniostano/azchat/internal/transcript"
)

type BuildResult struct {
	Config        config.Config
	API           *httpapi.Server
	Conversations *conversation.Store
	Chat          *chat.Service
	Metrics       *observability.Metrics

	// Cleanup releases external resources (transcript backend connections).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	archive, err := transcript.NewStore(ctx, cfg.TranscriptURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}

	gateway, err := completion.New(completion.Config{
		Mode:       cfg.CompletionMode,
		APIKey:     cfg.AzureAPIKey,
		Endpoint:   cfg.AzureEndpoint,
		APIVersion: cfg.AzureAPIVersion,
		Deployment: cfg.DeploymentName,
		Timeout:    cfg.CompletionTimeout,
	})
	if err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("completion gateway init failed: %w", err)
	}

	store := conversation.NewStore(conversation.Options{
		SystemPrompt: cfg.ConversationSystemPrompt,
		MaxTurns:     cfg.ConversationMaxTurns,
		IdleTTL:      cfg.ConversationIdleTTL,
	})

	svc := chat.New(chat.Options{
		Store:    store,
		Gateway:  gateway,
		Archive:  archive,
		Metrics:  metrics,
		Redactor: policy.NewRedactor(cfg.RedactPII),
		Params: completion.Params{
			MaxTokens:        cfg.CompletionMaxTokens,
			Temperature:      cfg.CompletionTemperature,
			TopP:             cfg.CompletionTopP,
			FrequencyPenalty: cfg.CompletionFrequencyPenalty,
			PresencePenalty:  cfg.CompletionPresencePenalty,
		},
		Configured: cfg.AzureConfigured(),
		Logger:     log.With().Str("component", "chat").Logger(),
	})
	store.SetExpireHook(svc.Expired)

	api := httpapi.New(cfg, svc, metrics, log.With().Str("component", "httpapi").Logger())

	return &BuildResult{
		Config:        cfg,
		API:           api,
		Conversations: store,
		Chat:          svc,
		Metrics:       metrics,
		Cleanup:       archive.Close,
	}, nil
}

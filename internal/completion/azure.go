package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antoniostano/azchat/internal/conversation"
	"github.com/antoniostano/azchat/internal/reliability"
)

// AzureConfig addresses a single Azure OpenAI chat deployment.
type AzureConfig struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string
	Timeout    time.Duration
}

// AzureClient calls the Azure OpenAI chat completions endpoint.
type AzureClient struct {
	apiKey string
	url    string
	client *http.Client
}

func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("azure openai endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("azure openai endpoint: %w", err)
	}
	deployment := strings.TrimSpace(cfg.Deployment)
	if deployment == "" {
		return nil, errors.New("azure openai deployment name is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	q := url.Values{}
	q.Set("api-version", strings.TrimSpace(cfg.APIVersion))
	return &AzureClient{
		apiKey: cfg.APIKey,
		url:    endpoint + "/openai/deployments/" + url.PathEscape(deployment) + "/chat/completions?" + q.Encode(),
		client: &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Messages         []conversation.Turn `json:"messages"`
	MaxTokens        int                 `json:"max_tokens,omitempty"`
	Temperature      float64             `json:"temperature"`
	TopP             float64             `json:"top_p"`
	FrequencyPenalty float64             `json:"frequency_penalty"`
	PresencePenalty  float64             `json:"presence_penalty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AzureClient) Complete(ctx context.Context, turns []conversation.Turn, p Params) (conversation.Turn, error) {
	payload, err := json.Marshal(chatRequest{
		Messages:         turns,
		MaxTokens:        p.MaxTokens,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
	})
	if err != nil {
		return conversation.Turn{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return conversation.Turn{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return conversation.Turn{}, &TransportError{Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return conversation.Turn{}, &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	switch reliability.ClassifyHTTPStatus(res.StatusCode) {
	case reliability.ClassOK:
	case reliability.ClassAuth:
		return conversation.Turn{}, ErrAuth
	case reliability.ClassRateLimited:
		return conversation.Turn{}, ErrRateLimited
	default:
		return conversation.Turn{}, &UpstreamError{StatusCode: res.StatusCode, Detail: errorDetail(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return conversation.Turn{}, &UpstreamError{StatusCode: res.StatusCode, Detail: "malformed completion response: " + truncate(string(body), 200)}
	}
	if len(parsed.Choices) == 0 {
		return conversation.Turn{}, &UpstreamError{StatusCode: res.StatusCode, Detail: "completion returned no choices"}
	}
	return conversation.Turn{
		Role:    conversation.RoleAssistant,
		Content: parsed.Choices[0].Message.Content,
	}, nil
}

func errorDetail(body []byte) string {
	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response body"
	}
	return truncate(text, 400)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

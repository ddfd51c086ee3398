package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenRouter calls the OpenRouter chat completions API
type OpenRouter struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewOpenRouter creates an OpenRouter model. The API key comes from cfg or
// OPENROUTER_API_KEY and is required.
func NewOpenRouter(cfg Config) (*OpenRouter, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = envOr(EnvOpenRouterAPIKey, "")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, EnvOpenRouterAPIKey)
	}
	url := cfg.BaseURL
	if url == "" {
		url = DefaultOpenRouterURL
	}
	model := cfg.Model
	if model == "" {
		model = envOr(EnvOpenRouterModel, DefaultOpenRouterModel)
	}
	return &OpenRouter{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: newHTTPClient(cfg.Timeout),
	}, nil
}

type chatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Generate returns the first choice's message content
func (o *OpenRouter) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatCompletionRequest{
		Model:    o.model,
		Messages: chatMessages(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", upstream(ctx, fmt.Errorf("calling openrouter: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", upstream(ctx, statusError("openrouter", resp))
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", upstream(ctx, fmt.Errorf("decoding openrouter response: %w", err))
	}
	if len(result.Choices) == 0 {
		return "", upstream(ctx, fmt.Errorf("openrouter returned no choices"))
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// Model returns the model name
func (o *OpenRouter) Model() string {
	return o.model
}

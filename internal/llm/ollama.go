package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Ollama talks to a local Ollama server's chat endpoint
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama model. Unset fields fall back to OLLAMA_URL
// and OLLAMA_MODEL, then to the defaults.
func NewOllama(cfg Config) *Ollama {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = envOr(EnvOllamaURL, DefaultOllamaURL)
	}
	model := cfg.Model
	if model == "" {
		model = envOr(EnvOllamaModel, DefaultOllamaModel)
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(cfg.Timeout),
	}
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatChunk struct {
	Message *message `json:"message"`
	Done    bool     `json:"done"`
}

// Generate streams the chat response and returns the concatenated message
// content. Malformed stream lines are skipped.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Messages: chatMessages(prompt),
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", upstream(ctx, fmt.Errorf("calling ollama: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", upstream(ctx, statusError("ollama", resp))
	}

	var answer strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Message != nil {
			answer.WriteString(chunk.Message.Content)
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", upstream(ctx, fmt.Errorf("reading ollama stream: %w", err))
	}

	return strings.TrimSpace(answer.String()), nil
}

// Model returns the model name
func (o *Ollama) Model() string {
	return o.model
}

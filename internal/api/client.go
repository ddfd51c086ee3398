package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dshills/whispernote/internal/indexer"
	"github.com/dshills/whispernote/pkg/types"
)

// DefaultClientTimeout bounds a single API call. Indexing a large
// directory and LLM answers can both be slow.
const DefaultClientTimeout = 10 * time.Minute

// Error is a non-2xx response from the API
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known status codes back to the errors that produce them
func (e *Error) Unwrap() error {
	switch e.StatusCode {
	case http.StatusConflict:
		return indexer.ErrIndexingInProgress
	case http.StatusBadGateway:
		return types.ErrUpstream
	default:
		return nil
	}
}

// Client talks to a running API server. It implements Backend so the CLI
// can work against a server instead of a local index.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Health checks that the server is reachable
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &out); err != nil {
		return err
	}
	if out["status"] != "ok" {
		return fmt.Errorf("unexpected health status %q", out["status"])
	}
	return nil
}

func (c *Client) IndexDirectory(ctx context.Context, dir string, extensions []string) (indexer.Metrics, error) {
	var out MetricsResponse
	req := IndexRequest{Directory: dir, FileExtensions: extensions}
	if err := c.do(ctx, http.MethodPost, "/api/v1/index", req, &out); err != nil {
		return indexer.Metrics{}, err
	}
	return out.Metrics(), nil
}

func (c *Client) Status(ctx context.Context) (indexer.Metrics, error) {
	var out MetricsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/index", nil, &out); err != nil {
		return indexer.Metrics{}, err
	}
	return out.Metrics(), nil
}

func (c *Client) Query(ctx context.Context, question string, maxResults int) (*types.QueryResult, error) {
	var out QueryResponse
	req := QueryRequest{Query: question, MaxResults: maxResults}
	if err := c.do(ctx, http.MethodPost, "/api/v1/query", req, &out); err != nil {
		return nil, err
	}
	return &types.QueryResult{Answer: out.Answer, Context: out.Context}, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errResp ErrorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &Error{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty response from %s", path)
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/safecities/safecities/internal/faults"
	"github.com/safecities/safecities/internal/models"
)

// Provider selects the wire format spoken by the client
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// Config holds the inference client configuration
type Config struct {
	Provider       Provider // Default: openai
	BaseURL        string   // Default: https://api.openai.com
	APIKey         string
	ChatModel      string  // Default: gpt-4
	EmbeddingModel string  // Default: text-embedding-ada-002
	Temperature    float64 // Default: 0.7
	Timeout        time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Provider:       ProviderOpenAI,
		BaseURL:        "https://api.openai.com",
		ChatModel:      "gpt-4",
		EmbeddingModel: "text-embedding-ada-002",
		Temperature:    0.7,
	}
}

// DefaultOllamaURL is used when the ollama provider has no base URL
const DefaultOllamaURL = "http://localhost:11434"

// Client talks to an OpenAI-compatible or Ollama server
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a new inference client
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}
	if config.BaseURL == "" {
		if config.Provider == ProviderOllama {
			config.BaseURL = DefaultOllamaURL
		} else {
			config.BaseURL = DefaultConfig().BaseURL
		}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Config returns the client configuration
func (c *Client) Config() *Config {
	return c.config
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Stream      bool                 `json:"stream"`
	Options     map[string]any       `json:"options,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message models.ChatMessage `json:"message"`
	} `json:"choices"`
}

type ollamaChatResponse struct {
	Message models.ChatMessage `json:"message"`
	Done    bool               `json:"done"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Complete sends a chat completion request and returns the reply text
func (c *Client) Complete(ctx context.Context, messages []models.ChatMessage, opts CompletionOptions) (string, error) {
	temperature := c.config.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	req := chatRequest{
		Model:    c.config.ChatModel,
		Messages: messages,
	}

	switch c.config.Provider {
	case ProviderOllama:
		req.Options = map[string]any{"temperature": temperature}
		if opts.MaxTokens > 0 {
			req.Options["num_predict"] = opts.MaxTokens
		}
		var resp ollamaChatResponse
		if err := c.post(ctx, "/api/chat", req, &resp); err != nil {
			return "", err
		}
		return resp.Message.Content, nil
	default:
		req.Temperature = &temperature
		req.MaxTokens = opts.MaxTokens
		var resp openAIChatResponse
		if err := c.post(ctx, "/v1/chat/completions", req, &resp); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", faults.New(faults.CategoryProvider, "empty_completion", "completion returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	}
}

// Embed returns the embedding vector for text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embedRequest{
		Model: c.config.EmbeddingModel,
		Input: text,
	}

	var vector []float32
	switch c.config.Provider {
	case ProviderOllama:
		var resp ollamaEmbedResponse
		if err := c.post(ctx, "/api/embed", req, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embeddings) > 0 {
			vector = resp.Embeddings[0]
		}
	default:
		var resp openAIEmbedResponse
		if err := c.post(ctx, "/v1/embeddings", req, &resp); err != nil {
			return nil, err
		}
		if len(resp.Data) > 0 {
			vector = resp.Data[0].Embedding
		}
	}

	if len(vector) == 0 {
		return nil, faults.New(faults.CategoryProvider, "empty_embedding", "embedding response contained no vector")
	}
	return vector, nil
}

// ListModels returns the model names the server advertises
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	path := "/v1/models"
	if c.config.Provider == ProviderOllama {
		path = "/api/tags"
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(result.Data)+len(result.Models))
	for _, m := range result.Data {
		names = append(names, m.ID)
	}
	for _, m := range result.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return faults.Wrap(fmt.Errorf("failed to marshal request: %w", err), faults.CategoryInternal, "marshal_request", false)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return faults.Wrap(fmt.Errorf("failed to create request: %w", err), faults.CategoryInternal, "build_request", false)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return faults.Wrap(fmt.Errorf("failed to make request: %w", err), faults.CategoryProvider, "request_failed", true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return faults.Wrap(
			fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
			faults.CategoryProvider, "bad_status", retryable,
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return faults.Wrap(fmt.Errorf("failed to decode response: %w", err), faults.CategoryProvider, "decode_response", false)
	}
	return nil
}

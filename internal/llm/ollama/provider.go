// Package ollama provides a provider for a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/DevSymphony/fillin/internal/llm"
)

const (
	providerName     = "ollama"
	displayName      = "Ollama (local)"
	defaultHost      = "http://localhost:11434"
	defaultModel     = "llama3.1"
	defaultTimeout   = 5 * time.Minute
	defaultMaxTokens = 800
)

func init() {
	llm.RegisterProvider(providerName, newProvider, llm.ProviderInfo{
		Name:         providerName,
		DisplayName:  displayName,
		DefaultModel: defaultModel,
		Available:    true,
		Models: []llm.ModelInfo{
			{ID: "llama3.1", DisplayName: "llama3.1", Description: "General purpose", Recommended: true},
			{ID: "qwen2.5-coder", DisplayName: "qwen2.5-coder", Description: "Code oriented"},
		},
	})
}

// Provider talks to the Ollama chat API.
type Provider struct {
	host       string
	model      string
	httpClient *http.Client
	verbose    bool
}

var _ llm.RawProvider = (*Provider)(nil)

func newProvider(cfg llm.Config) (llm.RawProvider, error) {
	host := strings.TrimSuffix(cfg.Host, "/")
	if host == "" {
		host = defaultHost
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Provider{
		host:       host,
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
		verbose:    cfg.Verbose,
	}, nil
}

func (p *Provider) Name() string {
	return providerName
}

// Ping checks that the server is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cannot connect to Ollama at %s: %w", p.host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *options  `json:"options,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model   string  `json:"model"`
	Message message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func (p *Provider) ExecuteRaw(ctx context.Context, req llm.Request) (string, error) {
	var messages []message
	if req.System != "" {
		messages = append(messages, message{Role: "system", Content: req.System})
	}
	messages = append(messages, message{Role: "user", Content: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: messages,
		Options:  &options{Temperature: req.Temperature, NumPredict: maxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if p.verbose {
		fmt.Fprintf(os.Stderr, "[ollama] Model: %s, Prompt: %d chars\n", p.model, len(req.Prompt))
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(b))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if chat.Error != "" {
		return "", fmt.Errorf("ollama error: %s", chat.Error)
	}

	return chat.Message.Content, nil
}

// Close releases HTTP client resources.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

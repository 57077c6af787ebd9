// Package gemini provides the Google Gemini API LLM provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/DevSymphony/fillin/internal/llm"
	"github.com/DevSymphony/fillin/internal/util/env"
)

const (
	providerName     = "gemini"
	displayName      = "Google Gemini"
	apiKeyEnv        = "GEMINI_API_KEY"
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 800
)

// ErrAPIKeyRequired is returned when no Gemini API key is configured.
var ErrAPIKeyRequired = errors.New("gemini: API key is required (set GEMINI_API_KEY environment variable)")

func init() {
	llm.RegisterProvider(providerName, newProvider, llm.ProviderInfo{
		Name:         providerName,
		DisplayName:  displayName,
		DefaultModel: defaultModel,
		Available:    env.GetAPIKey(apiKeyEnv) != "",
		Models: []llm.ModelInfo{
			{ID: "gemini-2.5-flash", DisplayName: "gemini-2.5-flash", Description: "Fast and cheap", Recommended: true},
			{ID: "gemini-2.5-pro", DisplayName: "gemini-2.5-pro", Description: "Stronger reasoning"},
		},
		APIKey: llm.APIKeyConfig{
			Required:   true,
			EnvVarName: apiKeyEnv,
		},
	})
}

// Provider implements llm.RawProvider on top of the genai SDK.
type Provider struct {
	client  *genai.Client
	model   string
	verbose bool
}

var _ llm.RawProvider = (*Provider)(nil)

func newProvider(cfg llm.Config) (llm.RawProvider, error) {
	apiKey := env.GetAPIKey(apiKeyEnv)
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{client: client, model: model, verbose: cfg.Verbose}, nil
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) ExecuteRaw(ctx context.Context, req llm.Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	if p.verbose {
		fmt.Fprintf(os.Stderr, "[gemini] Model: %s, Prompt: %d chars\n", p.model, len(req.Prompt))
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return "", fmt.Errorf("no candidates in response")
	}
	return content, nil
}

// Close is a no-op, the genai client holds no closable resources.
func (p *Provider) Close() error {
	return nil
}

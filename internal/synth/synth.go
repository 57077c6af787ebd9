// Package synth turns natural-language prompts into rule snippets with a
// remote language model.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DevSymphony/fillin/internal/llm"
	"github.com/DevSymphony/fillin/internal/placeholder"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultExampleLimit = 10
	DefaultMaxTokens    = 800
)

var (
	// ErrSynthesisFailed wraps every remote completion failure.
	ErrSynthesisFailed = errors.New("synthesis failed")
	// ErrNotConfigured is returned when no LLM provider is available.
	ErrNotConfigured = errors.New("no LLM provider configured")
	// ErrInvalidRequest is returned before any remote call for incomplete requests.
	ErrInvalidRequest = errors.New("invalid synthesis request")
)

// Request describes the rule to synthesize.
type Request struct {
	Prompt    string `json:"prompt"`
	FieldName string `json:"field_name"`
	// Context is optional free text, such as the document around the marker.
	Context string `json:"context,omitempty"`
	// Sample is example data shown to the model, trimmed to the example limit.
	Sample       map[string]string `json:"sample,omitempty"`
	ExampleLimit int               `json:"example_limit,omitempty"`
}

// Result is a synthesized snippet and the raw model text behind it.
type Result struct {
	FieldName     string `json:"field_name"`
	GeneratedCode string `json:"generated_code"`
	ModelNote     string `json:"ai_response"`
}

// Synthesizer produces rule code from prompts.
type Synthesizer interface {
	// Synthesize asks for a function computing the field from data.
	Synthesize(ctx context.Context, req Request) (Result, error)
	// SynthesizeValue asks for a plain value and wraps it in a returning function.
	SynthesizeValue(ctx context.Context, req Request) (Result, error)
}

// FunctionName is the deterministic function name for a field.
func FunctionName(field string) string {
	return "generate_" + placeholder.SafeName(field)
}

// WrapValue returns a snippet whose generate function returns value verbatim.
func WrapValue(field, value string) string {
	return fmt.Sprintf("func %s(data map[string]string) string {\n\treturn %s\n}", FunctionName(field), strconv.Quote(value))
}

// Options configures an LLM-backed synthesizer.
type Options struct {
	Timeout      time.Duration
	ExampleLimit int
	MaxTokens    int
	// Packages are advertised to the model as importable.
	Packages []string
}

// LLM is a Synthesizer backed by an llm.Provider.
type LLM struct {
	provider llm.Provider
	opts     Options
	logger   *zap.Logger
}

var _ Synthesizer = (*LLM)(nil)

// New creates an LLM synthesizer. A nil logger disables logging.
func New(provider llm.Provider, opts Options, logger *zap.Logger) *LLM {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ExampleLimit <= 0 {
		opts.ExampleLimit = DefaultExampleLimit
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLM{provider: provider, opts: opts, logger: logger}
}

// Provider returns the name of the backing provider.
func (s *LLM) Provider() string {
	return s.provider.Name()
}

func (s *LLM) Synthesize(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	raw, err := s.complete(ctx, llm.Request{
		System:    codeInstruction(req.FieldName, s.opts.Packages),
		Prompt:    s.userPrompt(req, "Generate the Go function now."),
		MaxTokens: s.opts.MaxTokens,
	}, req.FieldName)
	if err != nil {
		return Result{}, err
	}

	code, err := llm.ParseResponse(raw, llm.ParseOptions{Format: llm.Code})
	if err != nil || code == "" {
		return Result{}, fmt.Errorf("%w: model returned no code", ErrSynthesisFailed)
	}

	return Result{FieldName: req.FieldName, GeneratedCode: code, ModelNote: raw}, nil
}

func (s *LLM) SynthesizeValue(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	raw, err := s.complete(ctx, llm.Request{
		System:    valueInstruction(req.FieldName),
		Prompt:    s.userPrompt(req, "Reply with the value only."),
		MaxTokens: s.opts.MaxTokens,
	}, req.FieldName)
	if err != nil {
		return Result{}, err
	}

	value := strings.TrimSpace(raw)
	return Result{FieldName: req.FieldName, GeneratedCode: WrapValue(req.FieldName, value), ModelNote: raw}, nil
}

func (s *LLM) complete(ctx context.Context, req llm.Request, field string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.provider.Execute(ctx, req, llm.Text)
	if err != nil {
		s.logger.Warn("synthesis request failed",
			zap.String("provider", s.provider.Name()),
			zap.String("field", field),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	s.logger.Debug("synthesis completed",
		zap.String("provider", s.provider.Name()),
		zap.String("field", field),
		zap.Int("chars", len(raw)),
		zap.Duration("elapsed", time.Since(start)))
	return raw, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.FieldName) == "" {
		return fmt.Errorf("%w: field_name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	return nil
}

func (s *LLM) userPrompt(req Request, closing string) string {
	limit := req.ExampleLimit
	if limit <= 0 {
		limit = s.opts.ExampleLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Field: %s\n", req.FieldName)
	fmt.Fprintf(&b, "Prompt: %s\n", req.Prompt)
	if req.Context != "" {
		fmt.Fprintf(&b, "\nDocument context:\n%s\n", req.Context)
	}
	if sample := trimSample(req.Sample, limit); len(sample) > 0 {
		data, _ := json.MarshalIndent(sample, "", "  ")
		fmt.Fprintf(&b, "\nSample data (JSON):\n%s\n", data)
	}
	b.WriteString("\n" + closing)
	return b.String()
}

// trimSample keeps the first limit keys in lexical order.
func trimSample(sample map[string]string, limit int) map[string]string {
	if len(sample) <= limit {
		return sample
	}
	keys := make([]string, 0, len(sample))
	for k := range sample {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, limit)
	for _, k := range keys[:limit] {
		out[k] = sample[k]
	}
	return out
}

func codeInstruction(field string, packages []string) string {
	fn := FunctionName(field)
	pkgs := "strings, strconv, fmt"
	if len(packages) > 0 {
		pkgs = strings.Join(packages, ", ")
	}
	return "You are a Go code generator. Generate a single Go function named " + fn +
		" that accepts one argument data of type map[string]string and returns a string value for the template placeholder. " +
		"Use only Go and only these standard packages: " + pkgs + ". Do not declare a package clause. " +
		"Do NOT include ANY markdown or explanation. The function must handle missing keys and never panic. Example:\n" +
		"func generate_X(data map[string]string) string {\n\treturn strings.TrimSpace(data[\"X\"])\n}"
}

func valueInstruction(field string) string {
	return "You write the text that fills the template placeholder " + field +
		". Reply with the final text only, without quotes, markdown or explanation."
}

// Unavailable is a Synthesizer that fails every call with ErrNotConfigured.
type Unavailable struct {
	Reason error
}

var _ Synthesizer = Unavailable{}

func (u Unavailable) Synthesize(context.Context, Request) (Result, error) {
	return Result{}, u.err()
}

func (u Unavailable) SynthesizeValue(context.Context, Request) (Result, error) {
	return Result{}, u.err()
}

func (u Unavailable) err() error {
	if u.Reason == nil {
		return ErrNotConfigured
	}
	return fmt.Errorf("%w: %v", ErrNotConfigured, u.Reason)
}

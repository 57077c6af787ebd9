package synth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevSymphony/fillin/internal/llm"
	"github.com/DevSymphony/fillin/internal/sandbox"
)

type fakeProvider struct {
	response string
	err      error
	last     llm.Request
	deadline bool
}

func (f *fakeProvider) Execute(ctx context.Context, req llm.Request, format llm.ResponseFormat) (string, error) {
	f.last = req
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return "", f.err
	}
	return llm.ParseResponse(f.response, llm.ParseOptions{Format: format})
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Close() error { return nil }

func TestFunctionName(t *testing.T) {
	assert.Equal(t, "generate_Total", FunctionName("Total"))
	assert.Equal(t, "generate_Offer_Summary", FunctionName("Offer Summary"))
}

func TestWrapValue(t *testing.T) {
	awkward := "He said \"hi\"\n\\ and `ticks` /*X*/"
	code := WrapValue("Greeting", awkward)

	assert.Contains(t, code, "func generate_Greeting(data map[string]string) string")

	v, err := sandbox.New(sandbox.Options{}).Evaluate(context.Background(), code, nil)
	require.NoError(t, err)
	assert.Equal(t, awkward, v)
}

func TestSynthesize(t *testing.T) {
	t.Run("strips fences and keeps the raw note", func(t *testing.T) {
		raw := "```go\nfunc generate_Total(data map[string]string) string {\n\treturn data[\"a\"]\n}\n```"
		p := &fakeProvider{response: raw}
		s := New(p, Options{}, nil)

		res, err := s.Synthesize(context.Background(), Request{Prompt: "copy a", FieldName: "Total", Sample: map[string]string{"a": "1"}})
		require.NoError(t, err)

		assert.Equal(t, "Total", res.FieldName)
		assert.Equal(t, "func generate_Total(data map[string]string) string {\n\treturn data[\"a\"]\n}", res.GeneratedCode)
		assert.Equal(t, raw, res.ModelNote)
		assert.Contains(t, p.last.System, "generate_Total")
		assert.Contains(t, p.last.Prompt, `"a": "1"`)
		assert.Equal(t, DefaultMaxTokens, p.last.MaxTokens)
		assert.Zero(t, p.last.Temperature)
		assert.True(t, p.deadline)
	})

	t.Run("remote failure is a synthesis failure", func(t *testing.T) {
		s := New(&fakeProvider{err: errors.New("status 500")}, Options{}, nil)
		_, err := s.Synthesize(context.Background(), Request{Prompt: "p", FieldName: "F"})
		assert.ErrorIs(t, err, ErrSynthesisFailed)
		assert.ErrorContains(t, err, "status 500")
	})

	t.Run("empty completion is a failure", func(t *testing.T) {
		s := New(&fakeProvider{response: "   "}, Options{}, nil)
		_, err := s.Synthesize(context.Background(), Request{Prompt: "p", FieldName: "F"})
		assert.ErrorIs(t, err, ErrSynthesisFailed)
	})

	t.Run("missing fields are rejected before calling out", func(t *testing.T) {
		p := &fakeProvider{response: "x"}
		s := New(p, Options{}, nil)
		_, err := s.Synthesize(context.Background(), Request{FieldName: "F"})
		assert.ErrorContains(t, err, "prompt is required")
		assert.NotErrorIs(t, err, ErrSynthesisFailed)
		assert.Empty(t, p.last.Prompt)
	})

	t.Run("sample trimmed to the example limit", func(t *testing.T) {
		p := &fakeProvider{response: "return 1"}
		s := New(p, Options{ExampleLimit: 2}, nil)
		_, err := s.Synthesize(context.Background(), Request{
			Prompt: "p", FieldName: "F",
			Sample: map[string]string{"a": "1", "b": "2", "c": "3"},
		})
		require.NoError(t, err)
		assert.Contains(t, p.last.Prompt, `"b"`)
		assert.NotContains(t, p.last.Prompt, `"c"`)
	})
}

func TestSynthesizeValue(t *testing.T) {
	p := &fakeProvider{response: "  Dear \"valued\" customer\n"}
	s := New(p, Options{Timeout: time.Second}, nil)

	res, err := s.SynthesizeValue(context.Background(), Request{Prompt: "a greeting", FieldName: "Greeting"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.GeneratedCode, "func generate_Greeting("))
	assert.Contains(t, res.GeneratedCode, `"Dear \"valued\" customer"`)
	assert.Equal(t, p.response, res.ModelNote)
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{Reason: errors.New("missing key")}.Synthesize(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorContains(t, err, "missing key")

	_, err = Unavailable{}.SynthesizeValue(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

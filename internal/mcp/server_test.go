package mcp

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevSymphony/fillin/internal/rule"
	"github.com/DevSymphony/fillin/internal/sandbox"
	"github.com/DevSymphony/fillin/internal/storage"
	"github.com/DevSymphony/fillin/internal/synth"
)

type stubSynth struct {
	calls int
	err   error
}

func (s *stubSynth) Synthesize(_ context.Context, req synth.Request) (synth.Result, error) {
	s.calls++
	if s.err != nil {
		return synth.Result{}, s.err
	}
	return synth.Result{
		FieldName:     req.FieldName,
		GeneratedCode: "func " + synth.FunctionName(req.FieldName) + "() string { return \"generated\" }",
		ModelNote:     "note",
	}, nil
}

func (s *stubSynth) SynthesizeValue(ctx context.Context, req synth.Request) (synth.Result, error) {
	return s.Synthesize(ctx, req)
}

func textOf(t *testing.T, result map[string]any) string {
	t.Helper()
	content := result["content"].([]map[string]any)
	require.Len(t, content, 1)
	return content[0]["text"].(string)
}

func newTestServer(t *testing.T, sy synth.Synthesizer) (*Server, string) {
	t.Helper()
	repo, err := storage.NewJSON(t.TempDir())
	require.NoError(t, err)

	tpl, err := repo.Upload(context.Background(), storage.UploadRequest{
		Content: []byte("<p>Hello /*Company*/, dear /*Name*/</p>"),
		Name:    "Offer",
	})
	require.NoError(t, err)

	return NewServer(repo, sy, sandbox.New(sandbox.Options{}), nil, "test"), tpl.ID
}

func TestScanPlaceholders(t *testing.T) {
	s, _ := newTestServer(t, nil)

	result, rpcErr := s.handleScanPlaceholders(ScanPlaceholdersInput{Document: "/*A*/ /*B*/ /*A*/"})
	require.Nil(t, rpcErr)
	text := textOf(t, result)
	assert.Contains(t, text, "Found 2 placeholder(s)")
	assert.Contains(t, text, "1. A")
	assert.Contains(t, text, "2. B")

	result, rpcErr = s.handleScanPlaceholders(ScanPlaceholdersInput{})
	require.Nil(t, rpcErr)
	assert.Equal(t, "No placeholders found.", textOf(t, result))
}

func TestListTemplates(t *testing.T) {
	s, id := newTestServer(t, nil)

	result, rpcErr := s.handleListTemplates(context.Background())
	require.Nil(t, rpcErr)
	assert.Contains(t, textOf(t, result), id+"  Offer")
}

func TestRuleTools(t *testing.T) {
	ctx := context.Background()
	sy := &stubSynth{}
	s, id := newTestServer(t, sy)

	t.Run("static rule and preview", func(t *testing.T) {
		_, rpcErr := s.handleSaveRule(ctx, SaveRuleInput{TemplateID: id, FieldName: "Company", Type: "static", Value: "Acme"})
		require.Nil(t, rpcErr)

		result, rpcErr := s.handlePreview(ctx, PreviewInput{TemplateID: id})
		require.Nil(t, rpcErr)
		assert.Contains(t, textOf(t, result), "Hello Acme")
		assert.Contains(t, textOf(t, result), "/*Name*/")
	})

	t.Run("prompt rule without code is synthesized", func(t *testing.T) {
		result, rpcErr := s.handleSaveRule(ctx, SaveRuleInput{TemplateID: id, FieldName: "Name", Type: "prompt", Prompt: "a name"})
		require.Nil(t, rpcErr)
		assert.Equal(t, 1, sy.calls)
		assert.Contains(t, textOf(t, result), "generate_Name")

		got, err := s.repo.LoadRule(ctx, id, "Name")
		require.NoError(t, err)
		assert.Equal(t, rule.KindPrompt, got.Kind)
		assert.Equal(t, "note", got.ModelNote)
	})

	t.Run("prompt rule with code skips synthesis", func(t *testing.T) {
		_, rpcErr := s.handleSaveRule(ctx, SaveRuleInput{TemplateID: id, FieldName: "Name", Type: "prompt", Prompt: "p", Code: `return "x"`})
		require.Nil(t, rpcErr)
		assert.Equal(t, 1, sy.calls)
	})

	t.Run("list rules", func(t *testing.T) {
		result, rpcErr := s.handleListRules(ctx, TemplateInput{TemplateID: id})
		require.Nil(t, rpcErr)
		text := textOf(t, result)
		assert.Contains(t, text, `Company: [static] "Acme"`)
		assert.Contains(t, text, "Name: [prompt] p")
	})

	t.Run("editable preview", func(t *testing.T) {
		result, rpcErr := s.handlePreview(ctx, PreviewInput{TemplateID: id, Mode: "editable"})
		require.Nil(t, rpcErr)
		assert.Contains(t, textOf(t, result), `data-field="Company"`)
	})

	t.Run("export", func(t *testing.T) {
		result, rpcErr := s.handleExportCode(ctx, ExportCodeInput{TemplateID: id})
		require.Nil(t, rpcErr)
		assert.Contains(t, textOf(t, result), "package fields")
	})

	t.Run("delete", func(t *testing.T) {
		_, rpcErr := s.handleDeleteRule(ctx, DeleteRuleInput{TemplateID: id, FieldName: "Company"})
		require.Nil(t, rpcErr)

		_, rpcErr = s.handleDeleteRule(ctx, DeleteRuleInput{TemplateID: id, FieldName: "Company"})
		require.NotNil(t, rpcErr)
		assert.Equal(t, codeInvalidParams, rpcErr.Code)
	})
}

func TestToolErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown template", func(t *testing.T) {
		s, _ := newTestServer(t, nil)
		_, rpcErr := s.handlePreview(ctx, PreviewInput{TemplateID: "missing"})
		require.NotNil(t, rpcErr)
		assert.Equal(t, codeInvalidParams, rpcErr.Code)
	})

	t.Run("unknown rule type", func(t *testing.T) {
		s, id := newTestServer(t, nil)
		_, rpcErr := s.handleSaveRule(ctx, SaveRuleInput{TemplateID: id, FieldName: "A", Type: "macro"})
		require.NotNil(t, rpcErr)
		assert.Contains(t, rpcErr.Message, "unknown rule type")
	})

	t.Run("synthesis unavailable", func(t *testing.T) {
		s, id := newTestServer(t, nil)
		_, rpcErr := s.handleSaveRule(ctx, SaveRuleInput{TemplateID: id, FieldName: "A", Type: "prompt", Prompt: "p"})
		require.NotNil(t, rpcErr)
		assert.Equal(t, codeInternal, rpcErr.Code)
		assert.Contains(t, rpcErr.Message, synth.ErrNotConfigured.Error())
	})

	t.Run("synthesis failure", func(t *testing.T) {
		s, id := newTestServer(t, &stubSynth{err: errors.Join(synth.ErrSynthesisFailed, errors.New("timeout"))})
		_, rpcErr := s.handleSaveRule(ctx, SaveRuleInput{TemplateID: id, FieldName: "A", Type: "prompt", Prompt: "p"})
		require.NotNil(t, rpcErr)
		assert.Contains(t, rpcErr.Message, "timeout")
	})

	t.Run("missing ids", func(t *testing.T) {
		s, _ := newTestServer(t, nil)
		_, rpcErr := s.handleListRules(ctx, TemplateInput{})
		require.NotNil(t, rpcErr)
		assert.Equal(t, codeInvalidParams, rpcErr.Code)
	})
}

func TestToolsAreRegistered(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestServer(t, nil)

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := s.newSDKServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer func() { _ = serverSession.Close() }()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	tools, err := session.ListTools(ctx, &sdkmcp.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	want := append([]string(nil), toolNames...)
	sort.Strings(want)
	assert.Equal(t, want, names)
}

func TestSummarizeKeepsRunesWhole(t *testing.T) {
	got := summarize(rule.Static(strings.Repeat("é", 100)))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 80, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))

	assert.Equal(t, "return 1", summarize(rule.Script("return\n\t1")))
}

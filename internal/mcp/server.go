package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/DevSymphony/fillin/internal/logging"
	"github.com/DevSymphony/fillin/internal/placeholder"
	"github.com/DevSymphony/fillin/internal/render"
	"github.com/DevSymphony/fillin/internal/rule"
	"github.com/DevSymphony/fillin/internal/storage"
	"github.com/DevSymphony/fillin/internal/synth"
)

// JSON-RPC error codes used in tool failures.
const (
	codeInvalidParams = -32602
	codeInternal      = -32603
)

// Evaluator runs rule code and parses it for export.
type Evaluator interface {
	render.Evaluator
	render.Parser
}

// Server is a MCP (Model Context Protocol) server.
// It communicates via JSON-RPC over stdio.
type Server struct {
	repo    storage.Repository
	synth   synth.Synthesizer
	eval    Evaluator
	logger  *zap.Logger
	version string
}

// NewServer creates a new MCP server instance. A nil synthesizer makes
// prompt rules without code fail with a configuration error.
func NewServer(repo storage.Repository, synthesizer synth.Synthesizer, eval Evaluator, logger *zap.Logger, version string) *Server {
	if synthesizer == nil {
		synthesizer = synth.Unavailable{}
	}
	return &Server{
		repo:    repo,
		synth:   synthesizer,
		eval:    eval,
		logger:  logging.OrNop(logger),
		version: version,
	}
}

// RPCError is an error type used for internal error handling.
type RPCError struct {
	Code    int
	Message string
}

func rpcError(err error) *RPCError {
	code := codeInternal
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, rule.ErrInvalid) || errors.Is(err, synth.ErrInvalidRequest) {
		code = codeInvalidParams
	}
	return &RPCError{Code: code, Message: err.Error()}
}

func invalidParams(format string, args ...any) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// textResult wraps text in an MCP content array.
func textResult(text string) map[string]any {
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
	}
}

// ScanPlaceholdersInput represents the input schema for the scan_placeholders tool.
type ScanPlaceholdersInput struct {
	Document string `json:"document" jsonschema:"Raw HTML document text containing /*Name*/ markers"`
}

// ListTemplatesInput represents the input schema for the list_templates tool.
type ListTemplatesInput struct {
	// No parameters - returns all templates
}

// TemplateInput is the input of tools addressing one template.
type TemplateInput struct {
	TemplateID string `json:"template_id" jsonschema:"Template identifier returned by upload"`
}

// SaveRuleInput represents the input schema for the save_rule tool.
type SaveRuleInput struct {
	TemplateID string `json:"template_id" jsonschema:"Template identifier"`
	FieldName  string `json:"field_name" jsonschema:"Placeholder name without the /* */ delimiters"`
	Type       string `json:"type" jsonschema:"Rule type: static, script or prompt"`
	Value      string `json:"value,omitempty" jsonschema:"Literal value for static rules"`
	Code       string `json:"code,omitempty" jsonschema:"Go snippet for script rules, or pre-generated code for prompt rules"`
	Prompt     string `json:"prompt,omitempty" jsonschema:"Natural language description for prompt rules"`
}

// DeleteRuleInput represents the input schema for the delete_rule tool.
type DeleteRuleInput struct {
	TemplateID string `json:"template_id" jsonschema:"Template identifier"`
	FieldName  string `json:"field_name" jsonschema:"Placeholder name"`
}

// PreviewInput represents the input schema for the preview tool.
type PreviewInput struct {
	TemplateID string `json:"template_id" jsonschema:"Template identifier"`
	Mode       string `json:"mode,omitempty" jsonschema:"preview (default) or editable"`
}

// ExportCodeInput represents the input schema for the export_code tool.
type ExportCodeInput struct {
	TemplateID string `json:"template_id" jsonschema:"Template identifier"`
	Package    string `json:"package,omitempty" jsonschema:"Package clause of the generated file (default fields)"`
}

var toolNames = []string{
	"scan_placeholders", "list_templates", "list_rules", "save_rule", "delete_rule", "preview", "export_code",
}

// Start runs the server over stdio until the client disconnects or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	fmt.Fprintln(os.Stderr, "fillin MCP server started (stdio mode)")
	fmt.Fprintf(os.Stderr, "Available tools: %s\n", strings.Join(toolNames, ", "))

	return s.newSDKServer().Run(ctx, &sdkmcp.StdioTransport{})
}

func addTool[In any](server *sdkmcp.Server, name, description string, handle func(context.Context, In) (map[string]any, *RPCError)) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        name,
		Description: description,
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, input In) (*sdkmcp.CallToolResult, map[string]any, error) {
		result, rpcErr := handle(ctx, input)
		if rpcErr != nil {
			return &sdkmcp.CallToolResult{IsError: true}, nil, fmt.Errorf("%s", rpcErr.Message)
		}
		return nil, result, nil
	})
}

func (s *Server) newSDKServer() *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "fillin",
		Version: s.version,
	}, nil)

	addTool(server, "scan_placeholders",
		"List the unique /*Name*/ placeholders of an HTML document in first-occurrence order.",
		func(_ context.Context, in ScanPlaceholdersInput) (map[string]any, *RPCError) {
			return s.handleScanPlaceholders(in)
		})
	addTool(server, "list_templates",
		"List uploaded templates with their ids and names.",
		func(ctx context.Context, _ ListTemplatesInput) (map[string]any, *RPCError) {
			return s.handleListTemplates(ctx)
		})
	addTool(server, "list_rules",
		"List the placeholders of a template and the rule attached to each.",
		s.handleListRules)
	addTool(server, "save_rule",
		"Attach a rule to a placeholder. type is static (value), script (code) or prompt (prompt, code generated when omitted).",
		s.handleSaveRule)
	addTool(server, "delete_rule",
		"Remove the rule of a placeholder.",
		s.handleDeleteRule)
	addTool(server, "preview",
		"Render a template with every rule applied (mode=preview) or with markers wrapped for editing (mode=editable).",
		s.handlePreview)
	addTool(server, "export_code",
		"Generate a standalone Go source file computing every placeholder of a template.",
		s.handleExportCode)

	return server
}

func (s *Server) handleScanPlaceholders(in ScanPlaceholdersInput) (map[string]any, *RPCError) {
	found := placeholder.Scan(in.Document)
	if len(found) == 0 {
		return textResult("No placeholders found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d placeholder(s):\n", len(found))
	for _, p := range found {
		fmt.Fprintf(&b, "%d. %s\n", p.Index+1, p.Name)
	}
	return textResult(b.String()), nil
}

func (s *Server) handleListTemplates(ctx context.Context) (map[string]any, *RPCError) {
	templates, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	if len(templates) == 0 {
		return textResult("No templates uploaded yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d template(s):\n\n", len(templates))
	for _, t := range templates {
		fmt.Fprintf(&b, "- %s  %s\n", t.ID, t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, "  %s\n", t.Description)
		}
	}
	return textResult(b.String()), nil
}

func (s *Server) handleListRules(ctx context.Context, in TemplateInput) (map[string]any, *RPCError) {
	if in.TemplateID == "" {
		return nil, invalidParams("template_id is required")
	}
	snap, err := storage.Load(ctx, s.repo, in.TemplateID)
	if err != nil {
		return nil, rpcError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Template %s (%s): %d placeholder(s)\n\n", snap.Template.ID, snap.Template.Name, len(snap.Placeholders))
	for _, p := range snap.Placeholders {
		r, ok := snap.Rules.Get(p.Name)
		if !ok {
			fmt.Fprintf(&b, "- %s: no rule\n", p.Name)
			continue
		}
		fmt.Fprintf(&b, "- %s: [%s] %s\n", p.Name, r.Kind, summarize(r))
	}
	return textResult(b.String()), nil
}

func summarize(r rule.Rule) string {
	var s string
	switch r.Kind {
	case rule.KindStatic:
		s = fmt.Sprintf("%q", r.Value)
	case rule.KindScript:
		s = r.Code
	case rule.KindPrompt:
		s = r.Prompt
	}
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 80 {
		s = string(r[:77]) + "..."
	}
	return s
}

func (s *Server) handleSaveRule(ctx context.Context, in SaveRuleInput) (map[string]any, *RPCError) {
	if in.TemplateID == "" || in.FieldName == "" {
		return nil, invalidParams("template_id and field_name are required")
	}

	var r rule.Rule
	switch rule.Kind(in.Type) {
	case rule.KindStatic:
		r = rule.Static(in.Value)
	case rule.KindScript:
		r = rule.Script(in.Code)
	case rule.KindPrompt:
		r = rule.Prompt(in.Prompt, in.Code, "")
		if in.Code == "" {
			res, rpcErr := s.synthesize(ctx, in)
			if rpcErr != nil {
				return nil, rpcErr
			}
			r.GeneratedCode, r.ModelNote = res.GeneratedCode, res.ModelNote
		}
	default:
		return nil, invalidParams("unknown rule type %q (want static, script or prompt)", in.Type)
	}

	saved, err := storage.Rules(s.repo, in.TemplateID).Put(ctx, in.FieldName, r)
	if err != nil {
		return nil, rpcError(err)
	}
	s.logger.Info("rule saved via mcp", zap.String("template_id", in.TemplateID), zap.String("field", in.FieldName), zap.String("type", string(saved.Kind)))

	text := fmt.Sprintf("Saved %s rule for %s in template %s.", saved.Kind, in.FieldName, in.TemplateID)
	if saved.Kind == rule.KindPrompt {
		text += "\n\nGenerated code:\n" + saved.GeneratedCode
	}
	return textResult(text), nil
}

func (s *Server) synthesize(ctx context.Context, in SaveRuleInput) (synth.Result, *RPCError) {
	sample, err := s.repo.SampleData(ctx, in.TemplateID)
	if err != nil {
		return synth.Result{}, rpcError(err)
	}
	req := synth.Request{Prompt: in.Prompt, FieldName: in.FieldName, Sample: sample}
	if doc, err := s.repo.Document(ctx, in.TemplateID); err == nil {
		req.Context = placeholder.Surrounding(doc, in.FieldName, 300)
	}

	res, err := s.synth.Synthesize(ctx, req)
	if err != nil {
		return synth.Result{}, rpcError(err)
	}
	return res, nil
}

func (s *Server) handleDeleteRule(ctx context.Context, in DeleteRuleInput) (map[string]any, *RPCError) {
	if in.TemplateID == "" || in.FieldName == "" {
		return nil, invalidParams("template_id and field_name are required")
	}
	deleted, err := storage.Rules(s.repo, in.TemplateID).Delete(ctx, in.FieldName)
	if err != nil {
		return nil, rpcError(err)
	}
	if !deleted {
		return nil, invalidParams("no rule for %s in template %s", in.FieldName, in.TemplateID)
	}
	return textResult(fmt.Sprintf("Deleted rule for %s.", in.FieldName)), nil
}

func (s *Server) handlePreview(ctx context.Context, in PreviewInput) (map[string]any, *RPCError) {
	if in.TemplateID == "" {
		return nil, invalidParams("template_id is required")
	}
	snap, err := storage.Load(ctx, s.repo, in.TemplateID)
	if err != nil {
		return nil, rpcError(err)
	}

	switch in.Mode {
	case "editable":
		return textResult(render.Editable(snap.Document, snap.Placeholders, snap.Rules)), nil
	case "", "preview":
		res := render.Preview(ctx, snap.Document, snap.Placeholders, snap.Rules, s.eval, snap.Data)

		var b strings.Builder
		b.WriteString(res.HTML)
		var failures []string
		for _, f := range res.Fields {
			if f.State == render.StateError {
				failures = append(failures, fmt.Sprintf("- %s: %s", f.Name, f.Error))
			}
		}
		if len(failures) > 0 {
			b.WriteString("\n\nFailed fields:\n" + strings.Join(failures, "\n"))
		}
		return textResult(b.String()), nil
	default:
		return nil, invalidParams("unknown mode %q", in.Mode)
	}
}

func (s *Server) handleExportCode(ctx context.Context, in ExportCodeInput) (map[string]any, *RPCError) {
	if in.TemplateID == "" {
		return nil, invalidParams("template_id is required")
	}
	snap, err := storage.Load(ctx, s.repo, in.TemplateID)
	if err != nil {
		return nil, rpcError(err)
	}
	src, err := render.Export(in.Package, snap.Placeholders, snap.Rules, s.eval)
	if err != nil {
		return nil, rpcError(err)
	}
	return textResult(string(src)), nil
}

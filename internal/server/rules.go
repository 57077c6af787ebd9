package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/DevSymphony/fillin/internal/placeholder"
	"github.com/DevSymphony/fillin/internal/render"
	"github.com/DevSymphony/fillin/internal/rule"
	"github.com/DevSymphony/fillin/internal/storage"
	"github.com/DevSymphony/fillin/internal/synth"
)

const (
	maxRuleBytes  = 1 << 20
	contextRadius = 300
)

type generateRequest struct {
	Prompt       string `json:"prompt"`
	FieldName    string `json:"field_name"`
	Context      string `json:"context,omitempty"`
	TemplateID   string `json:"template_id,omitempty"`
	ExampleLimit int    `json:"example_limit,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	req := synth.Request{
		Prompt:       body.Prompt,
		FieldName:    body.FieldName,
		Context:      body.Context,
		ExampleLimit: body.ExampleLimit,
	}
	if req.ExampleLimit <= 0 {
		req.ExampleLimit = s.exampleLimit
	}

	if body.TemplateID != "" {
		sample, err := s.repo.SampleData(r.Context(), body.TemplateID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		req.Sample = sample

		if req.Context == "" {
			if doc, err := s.repo.Document(r.Context(), body.TemplateID); err == nil {
				req.Context = placeholder.Surrounding(doc, body.FieldName, contextRadius)
			}
		}
	}

	res, err := s.synth.Synthesize(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGenerateSimple(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.synth.SynthesizeValue(r.Context(), synth.Request{
		Prompt:    body.Prompt,
		FieldName: body.FieldName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSaveRule accepts the rule fields inline next to template_id and
// field_name; an untyped body with a prompt is a prompt rule.
func (s *Server) handleSaveRule(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRuleBytes))
	if err != nil {
		s.writeError(w, r, badRequest("failed to read request body"))
		return
	}

	var ids struct {
		TemplateID string `json:"template_id"`
		FieldName  string `json:"field_name"`
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		s.writeError(w, r, badRequest("invalid JSON: %v", err))
		return
	}
	if ids.TemplateID == "" || ids.FieldName == "" {
		s.writeError(w, r, badRequest("template_id and field_name are required"))
		return
	}

	var incoming rule.Rule
	if err := json.Unmarshal(raw, &incoming); err != nil {
		s.writeError(w, r, badRequest("invalid rule: %v", err))
		return
	}

	saved, err := storage.Rules(s.repo, ids.TemplateID).Put(r.Context(), ids.FieldName, incoming)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Rule saved",
		"template_id": ids.TemplateID,
		"field_name":  ids.FieldName,
		"rule":        saved,
	})
}

func (s *Server) handleRuleTemplates(w http.ResponseWriter, r *http.Request) {
	ids, err := s.repo.RuleTemplates(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": ids})
}

func (s *Server) handleTemplateRules(w http.ResponseWriter, r *http.Request) {
	set, err := s.repo.LoadRules(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if set == nil {
		set = rule.Set{}
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, field := r.PathValue("id"), r.PathValue("field")

	got, ok, err := storage.Rules(s.repo, id).Get(r.Context(), field)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, fmt.Errorf("rule %s/%s: %w", id, field, storage.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, field := r.PathValue("id"), r.PathValue("field")

	deleted, err := storage.Rules(s.repo, id).Delete(r.Context(), field)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !deleted {
		s.writeError(w, r, fmt.Errorf("rule %s/%s: %w", id, field, storage.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Rule deleted"})
}

// handleTestRule evaluates one rule. The body may carry data to use instead
// of the template's sample data, and a draft rule to try without saving it.
func (s *Server) handleTestRule(w http.ResponseWriter, r *http.Request) {
	id, field := r.PathValue("id"), r.PathValue("field")

	var body struct {
		Data map[string]string `json:"data"`
		Rule *rule.Rule        `json:"rule"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRuleBytes)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, badRequest("invalid JSON: %v", err))
		return
	}

	session, err := storage.Rules(s.repo, id).Session(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Rule != nil {
		if err := body.Rule.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
		session.Put(field, *body.Rule)
	}
	if _, ok := session.Get(field); !ok {
		s.writeError(w, r, fmt.Errorf("rule %s/%s: %w", id, field, storage.ErrNotFound))
		return
	}

	data := body.Data
	if data == nil {
		if data, err = s.repo.SampleData(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	p := placeholder.Placeholder{Name: field, Marker: placeholder.Marker(field)}
	fr := render.Resolve(r.Context(), p, session, s.eval, data)
	if fr.State == render.StateError {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"field_name": field,
			"error":      fr.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"field_name": field,
		"type":       fr.Kind,
		"value":      fr.Value,
	})
}

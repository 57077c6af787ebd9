// Package rule defines placeholder generation rules and the stores that hold them.
package rule

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Kind identifies which variant a Rule holds.
type Kind string

const (
	KindStatic Kind = "static"
	KindScript Kind = "script"
	KindPrompt Kind = "prompt"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid rule")

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Rule is a tagged variant describing how a placeholder value is computed.
// Only the fields belonging to Kind are meaningful.
type Rule struct {
	Kind Kind `json:"type"`

	// Static
	Value string `json:"value,omitempty"`

	// Script
	Code string `json:"code,omitempty"`

	// Prompt
	Prompt        string `json:"prompt,omitempty"`
	GeneratedCode string `json:"generated_code,omitempty"`
	ModelNote     string `json:"ai_response,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Static creates a rule that yields a fixed value.
func Static(value string) Rule {
	return Rule{Kind: KindStatic, Value: value}
}

// Script creates a rule evaluated as a function body.
func Script(code string) Rule {
	return Rule{Kind: KindScript, Code: code}
}

// Prompt creates a rule whose code was synthesized from a natural language prompt.
func Prompt(prompt, generatedCode, modelNote string) Rule {
	return Rule{Kind: KindPrompt, Prompt: prompt, GeneratedCode: generatedCode, ModelNote: modelNote}
}

// Executable returns the code to evaluate for script-shaped rules.
// The prompt text of a prompt rule is never returned.
func (r Rule) Executable() (string, bool) {
	switch r.Kind {
	case KindScript:
		return r.Code, true
	case KindPrompt:
		return r.GeneratedCode, true
	default:
		return "", false
	}
}

// Validate checks that the rule carries the data its kind requires.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindStatic:
		return nil
	case KindScript:
		if r.Code == "" {
			return fmt.Errorf("%w: script rule requires code", ErrInvalid)
		}
		return nil
	case KindPrompt:
		if r.Prompt == "" && r.GeneratedCode == "" {
			return fmt.Errorf("%w: prompt rule requires a prompt or generated code", ErrInvalid)
		}
		return nil
	case "":
		return fmt.Errorf("%w: rule type is required", ErrInvalid)
	default:
		return fmt.Errorf("%w: unknown rule type: %s", ErrInvalid, r.Kind)
	}
}

// UnmarshalJSON infers the kind of untyped rules so that the legacy
// {prompt, generated_code, ai_response} shape still decodes as a prompt rule.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Kind == "" {
		switch {
		case p.Prompt != "" || p.GeneratedCode != "":
			p.Kind = KindPrompt
		case p.Code != "":
			p.Kind = KindScript
		case p.Value != "":
			p.Kind = KindStatic
		}
	}
	*r = Rule(p)
	return nil
}

// Set maps placeholder names to their rules.
type Set map[string]Rule

// Get returns the rule for field, if present.
func (s Set) Get(field string) (Rule, bool) {
	r, ok := s[field]
	return r, ok
}

// Fields returns the field names with rules, sorted.
func (s Set) Fields() []string {
	fields := make([]string, 0, len(s))
	for f := range s {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Clone returns a shallow copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Reader is the read side of a rule store, consumed by the renderer.
type Reader interface {
	Get(field string) (Rule, bool)
}

// Package render produces the editable and preview views of a template.
package render

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/DevSymphony/fillin/internal/placeholder"
	"github.com/DevSymphony/fillin/internal/rule"
)

// WrapperClass marks the interactive element wrapping a marker in editable markup.
const WrapperClass = "fillin-placeholder"

// Field states reported by Preview and reflected in editable markup.
const (
	StateUnfilled = "unfilled"
	StateFilled   = "filled"
	StateOK       = "ok"
	StateError    = "error"
)

// Evaluator runs script-shaped rule code.
type Evaluator interface {
	Evaluate(ctx context.Context, code string, data map[string]string) (string, error)
}

// FieldResult reports how one placeholder was resolved during preview.
type FieldResult struct {
	Name  string    `json:"name"`
	Kind  rule.Kind `json:"type,omitempty"`
	State string    `json:"state"`
	Value string    `json:"value"`
	Error string    `json:"error,omitempty"`
}

// Result is a rendered preview.
type Result struct {
	HTML   string        `json:"html"`
	Fields []FieldResult `json:"fields"`
}

// Editable wraps every marker in an inert element carrying the field name and
// whether it has a rule. The marker text itself stays inside the wrapper.
func Editable(doc string, placeholders []placeholder.Placeholder, rules rule.Reader) string {
	wrapped := make(map[string]string, len(placeholders))
	for _, p := range placeholders {
		state := StateUnfilled
		if _, ok := rules.Get(p.Name); ok {
			state = StateFilled
		}
		wrapped[p.Marker] = fmt.Sprintf(
			`<span class="%s %s" data-field="%s" data-state="%s">%s</span>`,
			WrapperClass, state, html.EscapeString(p.Name), state, p.Marker,
		)
	}
	return substitute(doc, placeholders, wrapped)
}

// Preview replaces every marker with its computed value. Fields without a
// rule keep their marker; evaluation failures render as [Error: msg].
func Preview(ctx context.Context, doc string, placeholders []placeholder.Placeholder, rules rule.Reader, eval Evaluator, data map[string]string) Result {
	values := make(map[string]string, len(placeholders))
	fields := make([]FieldResult, 0, len(placeholders))

	for _, p := range placeholders {
		fr := Resolve(ctx, p, rules, eval, data)
		values[p.Marker] = fr.Value
		fields = append(fields, fr)
	}

	return Result{
		HTML:   substitute(doc, placeholders, values),
		Fields: fields,
	}
}

// Resolve computes the display value of a single placeholder.
func Resolve(ctx context.Context, p placeholder.Placeholder, rules rule.Reader, eval Evaluator, data map[string]string) FieldResult {
	r, ok := rules.Get(p.Name)
	if !ok {
		return FieldResult{Name: p.Name, State: StateUnfilled, Value: p.Marker}
	}

	fr := FieldResult{Name: p.Name, Kind: r.Kind, State: StateOK}

	code, executable := r.Executable()
	if !executable {
		fr.Value = r.Value
		return fr
	}

	if eval == nil {
		return failed(fr, fmt.Errorf("no evaluator configured"))
	}
	v, err := eval.Evaluate(ctx, code, data)
	if err != nil {
		return failed(fr, err)
	}
	fr.Value = v
	return fr
}

func failed(fr FieldResult, err error) FieldResult {
	fr.State = StateError
	fr.Error = err.Error()
	fr.Value = ErrorMarker(err)
	return fr
}

// ErrorMarker is the inline text substituted for a failed evaluation.
func ErrorMarker(err error) string {
	return "[Error: " + err.Error() + "]"
}

// substitute replaces every marker in one left-to-right pass so that
// replacement text is never rescanned.
func substitute(doc string, placeholders []placeholder.Placeholder, replacements map[string]string) string {
	if len(placeholders) == 0 {
		return doc
	}

	alternatives := make([]string, len(placeholders))
	for i, p := range placeholders {
		alternatives[i] = regexp.QuoteMeta(p.Marker)
	}
	pattern := regexp.MustCompile(strings.Join(alternatives, "|"))

	return pattern.ReplaceAllStringFunc(doc, func(marker string) string {
		if v, ok := replacements[marker]; ok {
			return v
		}
		return marker
	})
}

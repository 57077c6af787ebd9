package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/DevSymphony/fillin/internal/placeholder"
	"github.com/DevSymphony/fillin/internal/render"
	"github.com/DevSymphony/fillin/internal/rule"
	"github.com/DevSymphony/fillin/internal/storage"
	"github.com/DevSymphony/fillin/internal/synth"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage the rules attached to template placeholders",
	Long: `Manage the rules attached to template placeholders.

A rule is one of:
  - static: a literal value
  - script: a Go function body evaluated in the sandbox
  - prompt: Go code generated by the configured LLM from a description`,
}

var ruleListCmd = &cobra.Command{
	Use:   "list <template-id>",
	Short: "List placeholders with their rule and current value",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleList,
}

var ruleShowCmd = &cobra.Command{
	Use:   "show <template-id> <field>",
	Short: "Show the rule of one placeholder",
	Args:  cobra.ExactArgs(2),
	RunE:  runRuleShow,
}

var ruleSetCmd = &cobra.Command{
	Use:   "set <template-id> [field]",
	Short: "Attach a rule to a placeholder",
	Long: `Attach a rule to a placeholder. Exactly one of --static, --script or --prompt
is required. Without a field argument the placeholder is chosen interactively.

A prompt rule without --code is generated by the configured LLM.`,
	Example: `  fillin rule set 3f2a1c Company --static "Acme Corp"
  fillin rule set 3f2a1c Total --script 'return data["invoice.total"] + " EUR"'
  fillin rule set 3f2a1c Date --prompt "today's date in ISO format"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRuleSet,
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete <template-id> <field>",
	Short: "Remove the rule of a placeholder",
	Args:  cobra.ExactArgs(2),
	RunE:  runRuleDelete,
}

var (
	ruleStatic     string
	ruleScript     string
	ruleScriptFile string
	rulePrompt     string
	ruleCode       string
	ruleYes        bool
)

func init() {
	rootCmd.AddCommand(ruleCmd)
	ruleCmd.AddCommand(ruleListCmd, ruleShowCmd, ruleSetCmd, ruleDeleteCmd)

	ruleSetCmd.Flags().StringVar(&ruleStatic, "static", "", "literal value")
	ruleSetCmd.Flags().StringVar(&ruleScript, "script", "", "Go function body returning a string")
	ruleSetCmd.Flags().StringVar(&ruleScriptFile, "script-file", "", "read the script body from a file")
	ruleSetCmd.Flags().StringVar(&rulePrompt, "prompt", "", "natural language description for the LLM")
	ruleSetCmd.Flags().StringVar(&ruleCode, "code", "", "pre-generated code for a prompt rule")

	ruleDeleteCmd.Flags().BoolVarP(&ruleYes, "yes", "y", false, "do not ask for confirmation")
}

func runRuleList(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		snap, err := storage.Load(cmd.Context(), a.repo, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printTitle(out, snap.Template.ID, fmt.Sprintf("%s, %d placeholder(s)", snap.Template.Name, len(snap.Placeholders)))
		for _, p := range snap.Placeholders {
			fr := render.Resolve(cmd.Context(), p, snap.Rules, a.sandbox, snap.Data)
			kind := "-"
			if fr.Kind != "" {
				kind = string(fr.Kind)
			}
			value := fr.Value
			if fr.State == render.StateError {
				value = fr.Error
			}
			fmt.Fprintf(out, "  %-20s %-7s %-9s %s\n", p.Name, kind, stateTag(string(fr.State)), oneLine(value, 60))
		}
		return nil
	})
}

func runRuleShow(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		r, ok, err := storage.Rules(a.repo, args[0]).Get(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no rule for %s in template %s%s: %w", args[1], args[0], fieldHint(cmd.Context(), a.repo, args[0], args[1]), storage.ErrNotFound)
		}
		printRule(cmd.OutOrStdout(), args[1], r)
		return nil
	})
}

func printRule(w io.Writer, field string, r rule.Rule) {
	printTitle(w, field, string(r.Kind))
	switch r.Kind {
	case rule.KindStatic:
		fmt.Fprintln(w, indent("Value: "+r.Value))
	case rule.KindScript:
		fmt.Fprintln(w, indent("Code:"))
		fmt.Fprintln(w, r.Code)
	case rule.KindPrompt:
		fmt.Fprintln(w, indent("Prompt: "+r.Prompt))
		fmt.Fprintln(w, indent("Generated code:"))
		fmt.Fprintln(w, r.GeneratedCode)
	}
	if !r.UpdatedAt.IsZero() {
		fmt.Fprintln(w, indent("Updated: "+r.UpdatedAt.Format("2006-01-02 15:04:05")))
	}
}

func runRuleSet(cmd *cobra.Command, args []string) error {
	r, err := ruleFromFlags(cmd)
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		ctx := cmd.Context()
		id := args[0]

		doc, err := a.repo.Document(ctx, id)
		if err != nil {
			return err
		}
		found := placeholder.Scan(doc)

		var field string
		if len(args) == 2 {
			field = args[1]
			if !placeholder.Contains(found, field) {
				return fmt.Errorf("template %s has no placeholder %q%s", id, field, didYouMean(field, placeholder.Names(found)))
			}
		} else {
			field, err = selectField(found)
			if err != nil {
				return err
			}
		}

		if r.Kind == rule.KindPrompt && r.GeneratedCode == "" {
			res, err := synthesizeFor(ctx, a, id, doc, field, r.Prompt, false)
			if err != nil {
				return err
			}
			r.GeneratedCode, r.ModelNote = res.GeneratedCode, res.ModelNote
		}

		saved, err := storage.Rules(a.repo, id).Put(ctx, field, r)
		if err != nil {
			return err
		}
		printOK(cmd.OutOrStdout(), fmt.Sprintf("Saved %s rule for %s", saved.Kind, field))
		if saved.Kind == rule.KindPrompt {
			fmt.Fprintln(cmd.OutOrStdout(), saved.GeneratedCode)
		}
		return nil
	})
}

// ruleFromFlags builds the rule described by the set flags.
func ruleFromFlags(cmd *cobra.Command) (rule.Rule, error) {
	flags := cmd.Flags()
	var chosen []string
	for _, name := range []string{"static", "script", "script-file", "prompt"} {
		if flags.Changed(name) {
			chosen = append(chosen, "--"+name)
		}
	}
	if len(chosen) != 1 {
		return rule.Rule{}, fmt.Errorf("exactly one of --static, --script, --script-file or --prompt is required (got %d)", len(chosen))
	}
	if flags.Changed("code") && !flags.Changed("prompt") {
		return rule.Rule{}, fmt.Errorf("--code is only valid with --prompt")
	}

	switch chosen[0] {
	case "--static":
		return rule.Static(ruleStatic), nil
	case "--script":
		return rule.Script(ruleScript), nil
	case "--script-file":
		code, err := os.ReadFile(ruleScriptFile)
		if err != nil {
			return rule.Rule{}, fmt.Errorf("failed to read script: %w", err)
		}
		return rule.Script(string(code)), nil
	default:
		return rule.Prompt(rulePrompt, ruleCode, ""), nil
	}
}

func runRuleDelete(cmd *cobra.Command, args []string) error {
	if !ruleYes {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Delete the rule for %s", args[1]),
			IsConfirm: true,
		}
		result, err := prompt.Run()
		if err != nil || strings.ToLower(result) != "y" {
			fmt.Fprintln(cmd.OutOrStdout(), "Delete cancelled")
			return nil
		}
	}

	return withApp(func(a *app) error {
		rules := storage.Rules(a.repo, args[0])
		deleted, err := rules.Delete(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		if !deleted {
			// only fields that still have a rule can be deleted
			hint := ""
			if fields, err := rules.Fields(cmd.Context()); err == nil {
				hint = didYouMean(args[1], fields)
			}
			return fmt.Errorf("no rule for %s in template %s%s: %w", args[1], args[0], hint, storage.ErrNotFound)
		}
		printOK(cmd.OutOrStdout(), fmt.Sprintf("Deleted rule for %s", args[1]))
		return nil
	})
}

// selectField asks the user to pick one of the placeholders.
func selectField(found []placeholder.Placeholder) (string, error) {
	if len(found) == 0 {
		return "", fmt.Errorf("template has no placeholders")
	}
	names := placeholder.Names(found)

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   "▸ {{ . | cyan }}",
		Inactive: "  {{ . }}",
		Selected: "✓ {{ . | green }}",
	}
	selectPrompt := promptui.Select{
		Label:     "Select placeholder",
		Items:     names,
		Templates: templates,
		Size:      min(len(names), 10),
		Searcher: func(input string, index int) bool {
			return len(fuzzy.Find(input, names[index:index+1])) > 0
		},
	}

	_, field, err := selectPrompt.Run()
	if err != nil {
		return "", fmt.Errorf("no placeholder selected: %w", err)
	}
	return field, nil
}

// suggestFields returns up to three candidates ranked by fuzzy score.
func suggestFields(field string, names []string) []string {
	matches := fuzzy.Find(field, names)
	if len(matches) == 0 {
		lower := strings.ToLower(field)
		for _, n := range names {
			if strings.EqualFold(n, field) || strings.Contains(strings.ToLower(n), lower) {
				matches = append(matches, fuzzy.Match{Str: n})
			}
		}
	}
	var out []string
	for _, m := range matches {
		out = append(out, m.Str)
		if len(out) == 3 {
			break
		}
	}
	return out
}

func didYouMean(field string, names []string) string {
	suggestions := suggestFields(field, names)
	if len(suggestions) == 0 {
		return ""
	}
	return fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
}

// fieldHint suggests placeholders of template id close to field.
func fieldHint(ctx context.Context, repo storage.Repository, id, field string) string {
	doc, err := repo.Document(ctx, id)
	if err != nil {
		return ""
	}
	found := placeholder.Scan(doc)
	if placeholder.Contains(found, field) {
		return ""
	}
	return didYouMean(field, placeholder.Names(found))
}

// synthesizeFor asks the synthesizer for code, passing the template's
// sample data and the text around the marker.
func synthesizeFor(ctx context.Context, a *app, id, doc, field, prompt string, simple bool) (synth.Result, error) {
	sample, err := a.repo.SampleData(ctx, id)
	if err != nil {
		return synth.Result{}, err
	}
	req := synth.Request{
		Prompt:    prompt,
		FieldName: field,
		Sample:    sample,
		Context:   placeholder.Surrounding(doc, field, 300),
	}
	if simple {
		return a.synth.SynthesizeValue(ctx, req)
	}
	return a.synth.Synthesize(ctx, req)
}

// oneLine collapses whitespace and truncates s to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

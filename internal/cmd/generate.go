package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DevSymphony/fillin/internal/placeholder"
	"github.com/DevSymphony/fillin/internal/rule"
	"github.com/DevSymphony/fillin/internal/storage"
)

var (
	generateSimple bool
	generateSave   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <template-id> <field> <prompt...>",
	Short: "Generate rule code for a placeholder with the configured LLM",
	Long: `Generate Go code for a placeholder from a natural language description.

With --simple the model returns a literal value that is wrapped into code.
The generated code is printed and evaluated once against the template's
sample data; --save stores it as a prompt rule.`,
	Example: `  fillin generate 3f2a1c Date "today's date formatted as 2 January 2006"
  fillin generate 3f2a1c Greeting "a friendly one-line greeting" --simple --save`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, field := args[0], args[1]
		prompt := strings.Join(args[2:], " ")

		return withApp(func(a *app) error {
			ctx := cmd.Context()
			doc, err := a.repo.Document(ctx, id)
			if err != nil {
				return err
			}
			found := placeholder.Scan(doc)
			if !placeholder.Contains(found, field) {
				printWarn(cmd.OutOrStdout(), fmt.Sprintf("template %s has no placeholder %q%s", id, field, didYouMean(field, placeholder.Names(found))))
			}

			res, err := synthesizeFor(ctx, a, id, doc, field, prompt, generateSimple)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTitle(out, "CODE", field)
			fmt.Fprintln(out, res.GeneratedCode)

			sample, err := a.repo.SampleData(ctx, id)
			if err != nil {
				return err
			}
			if value, err := a.sandbox.Evaluate(ctx, res.GeneratedCode, sample); err != nil {
				printWarn(out, "Evaluation failed: "+err.Error())
			} else {
				printOK(out, "Value: "+value)
			}

			if !generateSave {
				return nil
			}
			if _, err := storage.Rules(a.repo, id).Put(ctx, field, rule.Prompt(prompt, res.GeneratedCode, res.ModelNote)); err != nil {
				return err
			}
			printOK(out, fmt.Sprintf("Saved prompt rule for %s", field))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().BoolVar(&generateSimple, "simple", false, "ask for a literal value instead of code")
	generateCmd.Flags().BoolVar(&generateSave, "save", false, "store the result as the field's rule")
}

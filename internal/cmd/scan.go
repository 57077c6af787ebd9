package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DevSymphony/fillin/internal/placeholder"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "List the placeholders of an HTML document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		found := placeholder.Scan(string(content))

		out := cmd.OutOrStdout()
		if scanJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(found)
		}

		if len(found) == 0 {
			printWarn(out, "No placeholders found")
			return nil
		}
		printTitle(out, "SCAN", fmt.Sprintf("%d placeholder(s) in %s", len(found), args[0]))
		for _, p := range found {
			fmt.Fprintf(out, "  %2d. %s\n", p.Index+1, p.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print placeholders as JSON")
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DevSymphony/fillin/internal/logging"
)

var (
	// verbose is a global flag for verbose output
	verbose bool

	// logger is built before every command runs
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "fillin",
	Short: "fillin - placeholder template editor",
	Long: `fillin turns HTML documents with /*Name*/ placeholders into fillable templates.

Features:
  - Placeholder discovery and editable highlighting
  - Static, script and prompt rules per placeholder
  - Sandboxed Go snippets with sample data
  - LLM synthesis of rule code from natural language
  - Browser editor, MCP server, Go export and PDF output`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

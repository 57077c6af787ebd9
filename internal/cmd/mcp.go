package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DevSymphony/fillin/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server to integrate with LLM tools",
	Long: `Start Model Context Protocol (MCP) server.
LLM-based tools can inspect templates, attach rules and render previews through stdio.

Tools provided by MCP server:
- scan_placeholders: List the placeholders of a document
- list_templates: List uploaded templates
- list_rules: Show the rule of every placeholder of a template
- save_rule: Attach a static, script or prompt rule
- delete_rule: Remove a rule
- preview: Render a template
- export_code: Generate the Go source of a template

Communicates via stdio for integration with Claude Desktop, Cursor, and other MCP clients.`,
	Example: `  fillin mcp`,
	RunE:    runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(func(a *app) error {
		server := mcp.NewServer(a.repo, a.synth, a.sandbox, logger, version)
		return server.Start(ctx)
	})
}

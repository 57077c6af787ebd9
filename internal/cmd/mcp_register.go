package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

// mcpServerName is the key fillin registers under in client configs.
const mcpServerName = "fillin"

// MCPServerConfig represents a single MCP server configuration
type MCPServerConfig struct {
	Type    string            `json:"type,omitempty"` // required by Cursor and VS Code
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

var mcpApps = []string{"claude-desktop", "claude-code", "cursor", "vscode"}

var mcpRegisterCmd = &cobra.Command{
	Use:   "register [app]",
	Short: "Register fillin as an MCP server in a client configuration",
	Long: `Register fillin as an MCP server for one of:
  claude-desktop  global Claude Desktop config
  claude-code     .mcp.json in the current directory
  cursor          .cursor/mcp.json in the current directory
  vscode          .vscode/mcp.json in the current directory

Without an argument the client is chosen interactively. An existing config
file is backed up to <file>.bak before it is rewritten.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: mcpApps,
	RunE:      runMCPRegister,
}

func init() {
	mcpCmd.AddCommand(mcpRegisterCmd)
}

func runMCPRegister(cmd *cobra.Command, args []string) error {
	app := ""
	if len(args) == 1 {
		app = args[0]
	} else {
		prompt := promptui.Select{
			Label:     "Select MCP client",
			Items:     mcpApps,
			Templates: selectTemplates,
			Size:      len(mcpApps),
		}
		_, selected, err := prompt.Run()
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Skipped MCP registration")
			return nil
		}
		app = selected
	}

	command, err := os.Executable()
	if err != nil {
		command = "fillin"
	}
	return registerMCP(cmd.OutOrStdout(), app, command)
}

// registerMCP adds the fillin server entry to app's config file.
func registerMCP(w io.Writer, app, command string) error {
	configPath := getMCPConfigPath(app)
	if configPath == "" {
		return fmt.Errorf("unknown MCP client %q (want one of %v)", app, mcpApps)
	}
	fmt.Fprintf(w, "Configuring %s\n", app)
	fmt.Fprintln(w, indent("Location: "+configPath))

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	existing, err := os.ReadFile(configPath)
	if err == nil {
		backupPath := configPath + ".bak"
		if err := os.WriteFile(backupPath, existing, 0644); err != nil {
			printWarn(w, fmt.Sprintf("Failed to create backup: %v", err))
		} else {
			fmt.Fprintln(w, indent("Backup: "+filepath.Base(backupPath)))
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config: %w", err)
	}

	data, err := mergeMCPConfig(existing, app, command)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	printOK(w, "fillin MCP server registered; restart or reload "+app)
	return nil
}

// mergeMCPConfig returns existing with the fillin entry added or replaced.
// Other servers and unknown top-level keys are kept. Invalid JSON is
// replaced by a fresh document.
func mergeMCPConfig(existing []byte, app, command string) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &doc); err != nil {
			doc = map[string]json.RawMessage{}
		}
	}

	// VS Code nests servers under "servers", the others under "mcpServers".
	key := "mcpServers"
	entry := MCPServerConfig{Command: command, Args: []string{"mcp"}}
	switch app {
	case "vscode":
		key = "servers"
		entry.Type = "stdio"
	case "cursor":
		entry.Type = "stdio"
	}

	servers := map[string]json.RawMessage{}
	if raw, ok := doc[key]; ok {
		if err := json.Unmarshal(raw, &servers); err != nil {
			servers = map[string]json.RawMessage{}
		}
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	servers[mcpServerName] = encoded

	if doc[key], err = json.Marshal(servers); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// getMCPConfigPath returns the MCP config file path for the specified app
func getMCPConfigPath(app string) string {
	homeDir, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()

	switch app {
	case "claude-desktop":
		switch runtime.GOOS {
		case "windows":
			return filepath.Join(os.Getenv("APPDATA"), "Claude", "claude_desktop_config.json")
		case "darwin":
			return filepath.Join(homeDir, "Library", "Application Support", "Claude", "claude_desktop_config.json")
		default:
			return filepath.Join(homeDir, ".config", "Claude", "claude_desktop_config.json")
		}
	case "claude-code":
		return filepath.Join(cwd, ".mcp.json")
	case "cursor":
		return filepath.Join(cwd, ".cursor", "mcp.json")
	case "vscode":
		return filepath.Join(cwd, ".vscode", "mcp.json")
	}
	return ""
}

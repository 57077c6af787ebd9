package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/DevSymphony/fillin/internal/config"
)

var configYAML bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize the project configuration",
	Long: `Inspect and initialize the project configuration stored in .fillin/.

Environment variables override file values:
  LLM_PROVIDER, LLM_MODEL, OLLAMA_HOST, FILLIN_PORT, FILLIN_DATA_DIR,
  FILLIN_STORAGE, FILLIN_CHROME_BIN`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadProjectConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if configYAML {
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		}

		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		if !config.ProjectConfigExists() {
			fmt.Fprintln(out)
			printWarn(out, "No "+config.GetProjectConfigPath()+" found; showing defaults")
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to .fillin/config.json",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if config.ProjectConfigExists() {
			printWarn(out, config.GetProjectConfigPath()+" already exists")
			return nil
		}
		if err := config.SaveProjectConfig(config.Default()); err != nil {
			return err
		}
		printOK(out, "Created "+config.GetProjectConfigPath())
		fmt.Fprintln(out, indent("Run 'fillin llm setup' to choose a provider"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd)
	configShowCmd.Flags().BoolVar(&configYAML, "yaml", false, "print as YAML")
}

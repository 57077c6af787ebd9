package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/DevSymphony/fillin/internal/config"
	"github.com/DevSymphony/fillin/internal/llm"
	"github.com/DevSymphony/fillin/internal/util/env"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Manage LLM provider configuration",
	Long: `Configure and inspect the LLM provider used to generate prompt rules.

Supported providers:
  - openaiapi: OpenAI chat completions (OPENAI_API_KEY)
  - gemini: Google Gemini (GEMINI_API_KEY)
  - ollama: a local or self-hosted Ollama server`,
}

var llmSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive LLM provider setup",
	Args:  cobra.NoArgs,
	RunE:  runLLMSetup,
}

var llmStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current LLM provider status",
	Args:  cobra.NoArgs,
	RunE:  runLLMStatus,
}

var llmTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test LLM provider connection",
	Long:  `Send a test request to verify the configured provider is working.`,
	Args:  cobra.NoArgs,
	RunE:  runLLMTest,
}

func init() {
	rootCmd.AddCommand(llmCmd)
	llmCmd.AddCommand(llmSetupCmd)
	llmCmd.AddCommand(llmStatusCmd)
	llmCmd.AddCommand(llmTestCmd)
}

var selectTemplates = &promptui.SelectTemplates{
	Label:    "{{ . }}?",
	Active:   "▸ {{ . | cyan }}",
	Inactive: "  {{ . }}",
	Selected: "✓ {{ . | green }}",
}

func runLLMSetup(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	printTitle(out, "LLM", "Provider configuration")

	options := llm.GetProviderOptions(true)
	providerPrompt := promptui.Select{
		Label:     "Select LLM provider",
		Items:     options,
		Templates: selectTemplates,
		Size:      len(options),
	}
	_, selected, err := providerPrompt.Run()
	if err != nil || selected == "Skip" {
		fmt.Fprintln(out, "Setup cancelled")
		return nil
	}
	info := llm.GetProviderByDisplayName(selected)
	if info == nil {
		return fmt.Errorf("unknown provider %q", selected)
	}

	model := info.DefaultModel
	if models := llm.GetModelOptions(info.Name); len(models) > 0 {
		modelPrompt := promptui.Select{
			Label:     "Select model",
			Items:     models,
			Templates: selectTemplates,
			Size:      len(models),
		}
		if _, option, err := modelPrompt.Run(); err == nil {
			if id := llm.GetModelIDFromOption(info.Name, option); id != "" {
				model = id
			}
		}
	}

	if info.APIKey.Required && env.GetAPIKey(info.APIKey.EnvVarName) == "" {
		if err := promptAPIKey(cmd, info); err != nil {
			return err
		}
	}

	if err := config.UpdateProjectConfigLLM(info.Name, model); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	printOK(out, fmt.Sprintf("LLM provider set to %s (%s)", info.Name, model))
	fmt.Fprintln(out, indent("Configuration saved to "+config.GetProjectConfigPath()))
	return nil
}

func promptAPIKey(cmd *cobra.Command, info *llm.ProviderInfo) error {
	out := cmd.OutOrStdout()
	printWarn(out, info.APIKey.EnvVarName+" not found")

	prompt := promptui.Prompt{
		Label: "Enter your " + info.DisplayName + " API key",
		Mask:  '*',
		Validate: func(input string) error {
			return llm.ValidateAPIKey(info.Name, cleanAPIKey(input))
		},
	}
	input, err := prompt.Run()
	if err != nil {
		fmt.Fprintln(out, "Skipped API key configuration")
		fmt.Fprintln(out, indent("Set "+info.APIKey.EnvVarName+" in "+config.GetProjectEnvPath()+" or the environment"))
		return nil
	}

	envPath := config.GetProjectEnvPath()
	if err := env.SaveKeyToEnvFile(envPath, info.APIKey.EnvVarName, cleanAPIKey(input)); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	printOK(out, "API key saved to "+envPath)

	if err := ensureGitignore(envPath); err != nil {
		printWarn(out, err.Error())
		fmt.Fprintln(out, indent("Please manually add '"+envPath+"' to .gitignore"))
	}
	return nil
}

func runLLMStatus(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadProjectConfig()
	if err != nil {
		return err
	}

	printTitle(out, "LLM", "Provider status")
	if cfg.LLM.Provider == "" {
		printWarn(out, "No provider configured")
		fmt.Fprintln(out, indent("Run 'fillin llm setup' or set LLM_PROVIDER"))
	} else {
		fmt.Fprintf(out, "  Provider: %s\n", cfg.LLM.Provider)
		if cfg.LLM.Model != "" {
			fmt.Fprintf(out, "  Model: %s\n", cfg.LLM.Model)
		}
		if cfg.LLM.Host != "" {
			fmt.Fprintf(out, "  Host: %s\n", cfg.LLM.Host)
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Registered providers:")
	for _, info := range llm.ListProviders() {
		key := "no key needed"
		if info.APIKey.Required {
			key = info.APIKey.EnvVarName + " not set"
			if env.GetAPIKey(info.APIKey.EnvVarName) != "" {
				key = info.APIKey.EnvVarName + " set"
			}
		}
		fmt.Fprintf(out, "  %-10s %-24s default %s, %s\n", info.Name, info.DisplayName, info.DefaultModel, key)
	}
	return nil
}

func runLLMTest(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadProjectConfig()
	if err != nil {
		return err
	}

	provider, err := llm.New(llm.ConfigFrom(cfg.LLM, verbose))
	if err != nil {
		return fmt.Errorf("no LLM provider available: %w", err)
	}
	defer func() { _ = provider.Close() }()

	fmt.Fprintf(out, "Testing provider: %s\n\n", provider.Name())

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	response, err := provider.Execute(ctx, llm.Request{
		System: "You are a helpful assistant. Respond with exactly one word.",
		Prompt: "Say 'OK' to confirm you are working.",
	}, llm.Text)
	if err != nil {
		return fmt.Errorf("test failed: %w", err)
	}

	printOK(out, "Test successful")
	fmt.Fprintln(out, indent("Response: "+strings.TrimSpace(response)))
	return nil
}

// cleanAPIKey keeps only printable ASCII characters, excluding space.
func cleanAPIKey(input string) string {
	var result strings.Builder
	for _, r := range input {
		if r >= 33 && r <= 126 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// ensureGitignore ensures that the given path is in .gitignore
func ensureGitignore(path string) error {
	const gitignorePath = ".gitignore"

	var lines []string
	if f, err := os.Open(gitignorePath); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == path {
				_ = f.Close()
				return nil
			}
			lines = append(lines, line)
		}
		_ = f.Close()
	}

	lines = append(lines, "", "# fillin secrets", path)
	if err := os.WriteFile(gitignorePath, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to update .gitignore: %w", err)
	}
	return nil
}

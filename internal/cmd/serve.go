package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DevSymphony/fillin/internal/pdf"
	"github.com/DevSymphony/fillin/internal/server"
)

var (
	servePort      int
	serveHost      string
	serveNoBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the browser editor and HTTP API",
	Long: `Start the local web server hosting the placeholder editor and its JSON API.

The editor opens in the default browser unless --no-browser is given.`,
	Example: `  fillin serve
  fillin serve --port 9000 --no-browser`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default from config, 8000)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "interface to bind (default from config, 127.0.0.1)")
	serveCmd.Flags().BoolVar(&serveNoBrowser, "no-browser", false, "do not open the editor in a browser")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(func(a *app) error {
		if servePort != 0 {
			a.cfg.Server.Port = servePort
		}
		if serveHost != "" {
			a.cfg.Server.Host = serveHost
		}

		renderer := pdf.New(pdf.Options{Bin: a.cfg.PDF.ChromeBin, Timeout: a.cfg.PDF.Timeout()}, logger)
		srv := server.New(server.Config{
			Repo:          a.repo,
			Synth:         a.synth,
			Evaluator:     a.sandbox,
			PDF:           renderer,
			Logger:        logger,
			Provider:      a.provider,
			KeyConfigured: a.keyConfigured,
			ExampleLimit:  a.cfg.Synthesis.ExampleLimit,
		})

		if a.provider == "" {
			printWarn(cmd.OutOrStdout(), "No LLM provider configured; prompt rules cannot be generated")
			fmt.Fprintln(cmd.OutOrStdout(), indent("Set llm.provider in .fillin/config.json or LLM_PROVIDER"))
		}
		if !renderer.Available() {
			printWarn(cmd.OutOrStdout(), "No Chrome or Chromium found; PDF export is disabled")
			fmt.Fprintln(cmd.OutOrStdout(), indent("Set pdf.chrome_bin in .fillin/config.json or FILLIN_CHROME_BIN"))
		}
		return srv.Start(ctx, a.cfg.Server.Addr(), !serveNoBrowser)
	})
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DevSymphony/fillin/internal/render"
	"github.com/DevSymphony/fillin/internal/storage"
	"github.com/DevSymphony/fillin/internal/watch"
)

var (
	previewEditable bool
	previewOut      string
	previewWatch    bool
)

var previewCmd = &cobra.Command{
	Use:   "preview <template-id>",
	Short: "Render a template with its rules applied",
	Long: `Render a template with every rule applied and print the HTML.

--editable wraps each marker for the editor instead of filling it.
--watch keeps running and re-renders whenever the data directory changes.`,
	Example: `  fillin preview 3f2a1c --out offer.html
  fillin preview 3f2a1c --out offer.html --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().BoolVar(&previewEditable, "editable", false, "wrap markers instead of filling them")
	previewCmd.Flags().StringVarP(&previewOut, "out", "o", "", "write HTML to a file instead of stdout")
	previewCmd.Flags().BoolVarP(&previewWatch, "watch", "w", false, "re-render when templates, rules or data change")
}

func runPreview(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withApp(func(a *app) error {
		if !previewWatch {
			return renderPreview(cmd.Context(), a, id, cmd.OutOrStdout())
		}
		if previewOut == "" {
			return fmt.Errorf("--watch requires --out")
		}
		if within(previewOut, a.cfg.Storage.DataDir) {
			return fmt.Errorf("--out must be outside the watched data directory %s", a.cfg.Storage.DataDir)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := renderPreview(ctx, a, id, cmd.OutOrStdout()); err != nil {
			return err
		}

		w, err := watch.New([]string{a.cfg.Storage.DataDir}, watch.DefaultDebounce, func(ctx context.Context, paths []string) {
			logger.Debug("data changed", zap.Strings("paths", paths))
			if err := renderPreview(ctx, a, id, cmd.OutOrStdout()); err != nil {
				printWarn(cmd.OutOrStdout(), err.Error())
			}
		}, logger)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), indent("Watching "+strings.Join(w.Dirs(), ", ")+" (Ctrl+C to stop)"))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return w.Run(gctx) })
		err = g.Wait()

		st := w.Stats()
		logger.Info("watch stopped",
			zap.Int("events", st.Events),
			zap.Int("renders", st.Changes),
			zap.Int("errors", st.Errors))
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
}

func within(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// renderPreview renders template id to previewOut, or to stdout.
func renderPreview(ctx context.Context, a *app, id string, stdout io.Writer) error {
	snap, err := storage.Load(ctx, a.repo, id)
	if err != nil {
		return err
	}

	var markup string
	var failed []render.FieldResult
	if previewEditable {
		markup = render.Editable(snap.Document, snap.Placeholders, snap.Rules)
	} else {
		res := render.Preview(ctx, snap.Document, snap.Placeholders, snap.Rules, a.sandbox, snap.Data)
		markup = res.HTML
		for _, f := range res.Fields {
			if f.State == render.StateError {
				failed = append(failed, f)
			}
		}
	}

	if previewOut == "" {
		_, err := io.WriteString(stdout, markup)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(previewOut), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(previewOut, []byte(markup), 0644); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	printOK(stdout, fmt.Sprintf("Rendered %s to %s", id, previewOut))
	for _, f := range failed {
		printWarn(stdout, fmt.Sprintf("%s: %s", f.Name, f.Error))
	}
	return nil
}

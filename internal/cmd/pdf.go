package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DevSymphony/fillin/internal/pdf"
	"github.com/DevSymphony/fillin/internal/render"
	"github.com/DevSymphony/fillin/internal/storage"
)

var pdfOut string

var pdfCmd = &cobra.Command{
	Use:   "pdf <template-id>",
	Short: "Render a filled template to PDF with headless Chrome",
	Long: `Render a template with its rules applied and print it to PDF.

Chrome or Chromium must be installed; set pdf.chrome_bin or FILLIN_CHROME_BIN
when it is not on the PATH.`,
	Example: `  fillin pdf 3f2a1c --out offer.pdf`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := cmd.Context()
			snap, err := storage.Load(ctx, a.repo, args[0])
			if err != nil {
				return err
			}
			res := render.Preview(ctx, snap.Document, snap.Placeholders, snap.Rules, a.sandbox, snap.Data)

			renderer := pdf.New(pdf.Options{Bin: a.cfg.PDF.ChromeBin, Timeout: a.cfg.PDF.Timeout()}, logger)
			out, err := renderer.Render(ctx, res.HTML)
			if err != nil {
				return err
			}
			if err := os.WriteFile(pdfOut, out, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", pdfOut, err)
			}
			printOK(cmd.OutOrStdout(), fmt.Sprintf("Wrote %s (%d bytes)", pdfOut, len(out)))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(pdfCmd)
	pdfCmd.Flags().StringVarP(&pdfOut, "out", "o", "", "PDF file to write")
	_ = pdfCmd.MarkFlagRequired("out")
}

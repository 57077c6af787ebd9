package cmd

import (
	"fmt"
	"go/token"
	"os"

	"github.com/spf13/cobra"

	"github.com/DevSymphony/fillin/internal/render"
	"github.com/DevSymphony/fillin/internal/storage"
)

var (
	exportOut     string
	exportPackage string
)

var exportCmd = &cobra.Command{
	Use:   "export <template-id>",
	Short: "Generate a standalone Go file computing every placeholder",
	Long: `Generate a Go source file with one generator function per placeholder,
a Generators table and a Fill helper that substitutes every marker.`,
	Example: `  fillin export 3f2a1c --out fields/fields.go
  fillin export 3f2a1c --package invoice`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !token.IsIdentifier(exportPackage) {
			return fmt.Errorf("invalid package name %q", exportPackage)
		}

		return withApp(func(a *app) error {
			snap, err := storage.Load(cmd.Context(), a.repo, args[0])
			if err != nil {
				return err
			}
			src, err := render.Export(exportPackage, snap.Placeholders, snap.Rules, a.sandbox)
			if err != nil {
				return err
			}

			if exportOut == "" {
				_, err := cmd.OutOrStdout().Write(src)
				return err
			}
			if err := os.WriteFile(exportOut, src, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", exportOut, err)
			}
			printOK(cmd.OutOrStdout(), fmt.Sprintf("Exported %d generator(s) to %s", len(snap.Placeholders), exportOut))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportPackage, "package", render.DefaultExportPackage, "package clause of the generated file")
}

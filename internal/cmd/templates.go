package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DevSymphony/fillin/internal/placeholder"
	"github.com/DevSymphony/fillin/internal/sampledata"
	"github.com/DevSymphony/fillin/internal/storage"
)

var (
	uploadName        string
	uploadDescription string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Store an HTML document as a template",
	Long: `Store an HTML document as a template. The template id is derived from the
document content, so uploading the same file again returns the same id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}

		return withApp(func(a *app) error {
			t, err := a.repo.Upload(cmd.Context(), storage.UploadRequest{
				Content:     content,
				Filename:    filepath.Base(args[0]),
				Name:        uploadName,
				Description: uploadDescription,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printOK(out, fmt.Sprintf("Template uploaded: %s", t.ID))
			fmt.Fprintln(out, indent("Name: "+t.Name))
			names := placeholder.Names(placeholder.Scan(string(content)))
			fmt.Fprintln(out, indent(fmt.Sprintf("Placeholders (%d): %s", len(names), strings.Join(names, ", "))))
			return nil
		})
	},
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List uploaded templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			templates, err := a.repo.ListTemplates(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(templates) == 0 {
				printWarn(out, "No templates uploaded yet")
				fmt.Fprintln(out, indent("Run 'fillin upload <file>' to add one"))
				return nil
			}
			for _, t := range templates {
				fmt.Fprintf(out, "%s  %s  %s\n", colorize(bold, t.ID), t.Name, colorize(gray, t.CreatedAt.Format("2006-01-02 15:04")))
				if t.Description != "" {
					fmt.Fprintln(out, indent(t.Description))
				}
			}
			return nil
		})
	},
}

var dataCmd = &cobra.Command{
	Use:   "data <template-id> <file>",
	Short: "Attach XML, JSON or YAML sample data to a template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read sample data: %w", err)
		}
		data, err := sampledata.ParseFile(args[1], content)
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			if _, err := a.repo.Template(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := a.repo.SaveSampleData(cmd.Context(), args[0], data); err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), fmt.Sprintf("%d sample key(s) stored for %s", len(data), args[0]))
			for _, k := range sampledata.Keys(data) {
				fmt.Fprintln(cmd.OutOrStdout(), indent(k))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(dataCmd)

	uploadCmd.Flags().StringVar(&uploadName, "name", "", "template name (default: file name)")
	uploadCmd.Flags().StringVar(&uploadDescription, "description", "", "template description")
}

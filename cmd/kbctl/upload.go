package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kbdesk/backend/internal/models"
	"github.com/kbdesk/backend/internal/storage"
	"github.com/kbdesk/backend/internal/widget"
	"github.com/spf13/cobra"
)

func newUploadCmd(opts *globalOptions) *cobra.Command {
	var name string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "upload --name NAME FILE...",
		Short: "Build a knowledge base from local files",
		Long: "Stages the given files the way the upload widget does (unsupported types\n" +
			"are reported and skipped, duplicates ignored) and submits them to the backend.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			w := widget.New(opts.client(), widget.Options{NoticeTTL: opts.cfg.NoticeTTL()})
			defer w.Close()

			for _, path := range args {
				f, err := storage.OpenPath(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", path, err)
					continue
				}
				for _, err := range w.AddCandidates(f) {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", path, err)
				}
			}
			w.SetDBName(name)

			view := w.View()
			printStaging(out, view.Staging)
			if dryRun {
				return nil
			}

			fmt.Fprintln(out, widget.BusyLabel)
			_, err := w.Submit(cmd.Context())
			if n := w.View().Notice; n != nil {
				fmt.Fprintln(out, n.Message)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "knowledge base name (max 50 characters)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only list what would be uploaded")
	return cmd
}

func printStaging(out io.Writer, state models.DisplayState) {
	fmt.Fprintf(out, "Selected files (%d)\n", state.Count)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, row := range state.Rows {
		fmt.Fprintf(tw, "  %d\t[%s]\t%s\t%s\n", i+1, row.Icon, row.Name, row.FormattedSize)
	}
	tw.Flush()
}

package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/joe-chic/house-of-emmigrants/internal/ingest"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Extract and store every transcript in a directory",
		Long: "Process every .txt transcript in dir (default multimedia/text) in natural name order.\n" +
			"Each document commits or rolls back on its own; a failed document does not fail the run.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := cfg.TextDir
			if len(args) == 1 {
				dir = args[0]
			}
			return ctx.withPipeline(cmd.Context(), func(d *ingest.Driver) error {
				res, err := d.Run(cmd.Context(), dir)
				if err != nil {
					return err
				}
				printBatch(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>",
		Short: "Extract and store a single transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd.Context(), func(d *ingest.Driver) error {
				fr := d.ProcessFile(cmd.Context(), args[0])
				fmt.Fprintln(cmd.OutOrStdout(), renderFiles([]ingest.FileResult{fr}))
				return nil
			})
		},
	}
}

func printBatch(w io.Writer, res *ingest.BatchResult) {
	if len(res.Files) > 0 {
		fmt.Fprintln(w, renderFiles(res.Files))
	}
	fmt.Fprintf(w, "run %s: %d processed, %d committed, %d failed, %d duplicates, %d skipped in %s\n",
		res.RunID, res.Processed, res.Committed, res.Failed, res.Duplicates, res.Skipped,
		res.Elapsed.Round(time.Millisecond))
}

func renderFiles(files []ingest.FileResult) string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		id := ""
		if f.TextID > 0 {
			id = strconv.FormatInt(f.TextID, 10)
		}
		note := ""
		switch {
		case f.Err != nil:
			note = f.Err.Error()
		case f.Persisted != nil && f.Persisted.SkippedLinks > 0:
			note = fmt.Sprintf("%d optional writes skipped", f.Persisted.SkippedLinks)
		}
		rows = append(rows, []string{
			f.Path,
			string(f.Status),
			id,
			f.Duration.Round(time.Millisecond).String(),
			note,
		})
	}
	return renderTable([]column{
		left("File"),
		left("Status"),
		right("Text ID"),
		right("Took"),
		{title: "Note", width: noteWidth},
	}, rows)
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/coachpo/assetproof/internal/app/batch"
)

func newBatchCmd(flags *globalFlags) *cobra.Command {
	var (
		in      string
		out     string
		workers int
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process every invocation file in a directory in parallel",
		Example: `  assetproof batch --in inbox --out records --workers 8
  assetproof batch --in inbox --out records --archive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := bootstrap(ctx, flags)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			if workers <= 0 {
				workers = app.cfg.Watch.Workers
			}
			runner, err := batch.NewRunner(batch.Options{
				Processor: app.assembler,
				Store:     app.recordStore(),
				Logger:    &app.logger,
				Workers:   workers,
				Archive:   archive,
			})
			if err != nil {
				return err
			}
			summary, err := runner.Run(ctx, in, out)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			if failed := summary.Failed(); failed > 0 {
				return fmt.Errorf("%d of %d inputs failed", failed, len(summary.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "inbox", "Directory of invocation JSON files")
	cmd.Flags().StringVar(&out, "out", "records", "Directory the records are written to")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel invocations (default: watch.workers from config)")
	cmd.Flags().BoolVar(&archive, "archive", false, "Move processed inputs to <in>/"+batch.DoneDir)
	return cmd
}

func printSummary(w io.Writer, summary batch.Summary) {
	for _, r := range summary.Results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s\terror\t%v\n", r.Input, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\tstatus=%d", r.Input, r.Output, r.Status)
		if r.RecordID != "" {
			fmt.Fprintf(w, "\tid=%s", r.RecordID)
		}
		fmt.Fprintln(w)
	}
}

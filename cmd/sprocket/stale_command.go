package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sprocket/internal/jobs"
	"sprocket/internal/storage"
)

func newStaleCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "Report processing jobs with no recent activity",
		Long: "Reads the database directly, so it works whether or not the daemon " +
			"is running. A stale processing job usually means its worker died " +
			"without reaching a terminal state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				// Default to the redelivery window: a healthy job should
				// have either progressed or redelivered by then.
				olderThan = cfg.RedeliveryWindow()
			}

			db, err := storage.Open(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			store, err := jobs.NewStore(cmd.Context(), db)
			if err != nil {
				return err
			}

			stale, err := store.StaleProcessing(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, stale)
			}
			if len(stale) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No processing jobs idle longer than %s.\n", olderThan)
				return nil
			}

			rows := make([][]string, 0, len(stale))
			for _, job := range stale {
				rows = append(rows, []string{
					job.JobID,
					job.SourceKey,
					job.CurrentStage,
					formatProgress(job.Progress),
					job.UpdatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"JOB", "SOURCE", "STAGE", "PROGRESS", "LAST UPDATE"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Idle threshold (default: redelivery window)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

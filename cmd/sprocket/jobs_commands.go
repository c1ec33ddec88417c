package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sprocket/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.ListJobs(cmd.Context(), statusFilter...)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.JobID,
					job.SourceKey,
					job.Status,
					job.CurrentStage,
					formatProgress(job.Progress),
					job.UpdatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"JOB", "SOURCE", "STATUS", "STAGE", "PROGRESS", "UPDATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Filter by status (queued, processing, completed, failed)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.GetJob(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, job)
			}
			printJobDetail(cmd, job)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printJobDetail(cmd *cobra.Command, job *api.JobPayload) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", job.JobID)
	fmt.Fprintf(out, "Source:   %s\n", job.SourceKey)
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	if job.CurrentStage != "" {
		fmt.Fprintf(out, "Stage:    %s\n", job.CurrentStage)
	}
	fmt.Fprintf(out, "Progress: %s\n", formatProgress(job.Progress))
	if job.Error != nil {
		fmt.Fprintf(out, "Error:    [%s] %s\n", job.Error.Kind, job.Error.Message)
	}
	fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Updated:  %s\n", job.UpdatedAt.Local().Format(time.DateTime))
}

func formatProgress(progress float64) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	return fmt.Sprintf("%.0f%%", progress*100)
}

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if status.Running {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Queue depth", statusInfo, fmt.Sprintf("%d", status.QueueDepth), colorize))

			statuses := make([]string, 0, len(status.JobStats))
			for jobStatus := range status.JobStats {
				statuses = append(statuses, jobStatus)
			}
			sort.Strings(statuses)
			for _, jobStatus := range statuses {
				kind := statusInfo
				switch jobStatus {
				case "failed":
					kind = statusError
				case "completed":
					kind = statusOK
				}
				fmt.Fprintln(out, renderStatusLine("Jobs "+jobStatus, kind, fmt.Sprintf("%d", status.JobStats[jobStatus]), colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

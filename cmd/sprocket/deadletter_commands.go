package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newDeadLetterCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dlq"},
		Short:   "Inspect and replay dead-lettered messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newDeadLetterListCommand(ctx))
	cmd.AddCommand(newDeadLetterReplayCommand(ctx))
	return cmd
}

func newDeadLetterListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			entries, err := client.DeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No dead letters.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				replayed := ""
				if entry.ReplayedAt != nil {
					replayed = entry.ReplayedAt.Local().Format(time.DateTime)
				}
				rows = append(rows, []string{
					strconv.FormatInt(entry.ID, 10),
					truncate(entry.Body, 60),
					strconv.Itoa(entry.ReceiveCount),
					entry.Reason,
					entry.DeadAt.Local().Format(time.DateTime),
					replayed,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "BODY", "RECEIVES", "REASON", "DEAD AT", "REPLAYED"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newDeadLetterReplayCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <id>",
		Short: "Re-enqueue a dead-lettered message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid dead letter id %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Replay(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replayed dead letter %d as message %d\n", resp.DeadLetterID, resp.MessageID)
			return nil
		},
	}
	return cmd
}

func truncate(s string, limit int) string {
	if limit <= 3 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

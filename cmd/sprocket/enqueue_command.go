package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sprocket/internal/api"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var jobID string
	var metadata []string

	cmd := &cobra.Command{
		Use:   "enqueue <source-key>",
		Short: "Enqueue a job notification for a stored video object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			meta, err := parseMetadata(metadata)
			if err != nil {
				return err
			}
			resp, err := client.Enqueue(cmd.Context(), api.EnqueueRequest{
				JobID:     jobID,
				SourceKey: strings.TrimSpace(args[0]),
				Metadata:  meta,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %s (message %d)\n", resp.JobID, resp.MessageID)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "Explicit job identifier (deduplication key)")
	cmd.Flags().StringArrayVar(&metadata, "meta", nil, "Metadata entry as key=value (repeatable)")
	return cmd
}

func parseMetadata(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid metadata entry %q (expected key=value)", entry)
		}
		meta[key] = value
	}
	return meta, nil
}

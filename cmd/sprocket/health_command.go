package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe stage service readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, health)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, stage := range health.Stages {
				kind := statusOK
				detail := "Ready"
				if !stage.Ready {
					kind = statusError
					detail = stage.Detail
				}
				fmt.Fprintln(out, renderStatusLine(stage.Name, kind, detail, colorize))
			}
			if !health.Ready {
				return fmt.Errorf("one or more stage services are not ready")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

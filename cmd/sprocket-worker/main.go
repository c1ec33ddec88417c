package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sprocket/internal/config"
	"sprocket/internal/logging"
	"sprocket/internal/worker"
)

func main() {
	var (
		jobIDFlag     string
		sourceKeyFlag string
		configFlag    string
	)

	cmd := &cobra.Command{
		Use:           "sprocket-worker",
		Short:         "Sprocket per-job pipeline worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(jobIDFlag, configFlag)
		},
	}
	cmd.Flags().StringVar(&jobIDFlag, "job-id", "", "Job identifier to process")
	// Informational only: the worker reads the source key from the job
	// record, but the flag makes it visible in process listings.
	cmd.Flags().StringVar(&sourceKeyFlag, "source-key", "", "Source object key")
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	_ = cmd.MarkFlagRequired("job-id")

	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(jobID, configPath string) error {
	// The worker ignores SIGINT so an operator interrupting the daemon's
	// terminal does not kill in-flight jobs; SIGTERM still stops it.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	w, err := worker.New(*cfg, jobID, logger)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sprocket/internal/claims"
	"sprocket/internal/config"
	"sprocket/internal/daemon"
	"sprocket/internal/dispatcher"
	"sprocket/internal/jobs"
	"sprocket/internal/launcher"
	"sprocket/internal/logging"
	"sprocket/internal/notifications"
	"sprocket/internal/queue"
	"sprocket/internal/stages"
	"sprocket/internal/storage"
)

func main() {
	var configFlag string

	cmd := &cobra.Command{
		Use:           "sprocketd",
		Short:         "Sprocket dispatch daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFlag)
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, resolvedPath, _, err := config.Load(configPath)
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

	db, err := storage.Open(cfg)
	if err != nil {
		logger.Error("open database", logging.Error(err))
		return err
	}
	defer db.Close()

	store, err := jobs.NewStore(ctx, db)
	if err != nil {
		logger.Error("init job store", logging.Error(err))
		return err
	}
	q, err := queue.New(ctx, db, cfg.QueueVisibilityTimeout(), cfg.Queue.MaxReceives)
	if err != nil {
		logger.Error("init queue", logging.Error(err))
		return err
	}
	gate, err := claims.NewGate(ctx, db, cfg.ClaimTTL())
	if err != nil {
		logger.Error("init claim gate", logging.Error(err))
		return err
	}

	launchCfg := cfg.Dispatch
	launchCfg.WorkerBinary = resolveWorkerBinary(cfg.Dispatch.WorkerBinary)
	procLauncher, err := launcher.NewProcessLauncher(launchCfg, resolvedPath, logger)
	if err != nil {
		logger.Error("init launcher", logging.Error(err))
		return err
	}

	notifier := notifications.NewService(cfg.Notifications)
	disp, err := dispatcher.New(*cfg, q, gate, store, procLauncher, notifier, logger)
	if err != nil {
		logger.Error("init dispatcher", logging.Error(err))
		return err
	}

	stageList := stages.FromConfig(cfg.Stages)
	d, err := daemon.New(*cfg, db, q, gate, store, disp, stageList, notifier, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return err
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return err
	}

	<-ctx.Done()
	logger.Info("sprocketd shutting down")
	d.Stop()
	return nil
}

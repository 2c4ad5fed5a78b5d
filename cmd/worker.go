/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/primeacre/apiserver/config"
	"github.com/primeacre/apiserver/internal/db"
	"github.com/primeacre/apiserver/internal/logger"
	"github.com/primeacre/apiserver/internal/mq"
	"github.com/primeacre/apiserver/internal/services"
	"github.com/primeacre/apiserver/internal/storage"
	"github.com/primeacre/apiserver/internal/store"
	"github.com/primeacre/apiserver/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerReconcileOnce bool

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the image cleanup worker",
	Long: `Consumes image cleanup tasks from the message queue and periodically
deletes stored images that no listing references. Usage:

	primeacre worker
	primeacre worker --once
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log, err := logger.New(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer dbConn.Close()

		objects, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("connect object storage: %w", err)
		}
		defer objects.Close()

		cleaner := services.NewCleanupWorker(objects, store.NewListingRepository(dbConn), cfg.Worker.ReconcileMinAge, log)

		var queue worker.Subscriber
		if !workerReconcileOnce {
			client, err := mq.New(ctx, cfg.MQ)
			if err != nil {
				return fmt.Errorf("connect message queue: %w", err)
			}
			if client != nil {
				defer client.Close()
				queue = client
			}
		}

		w := worker.New(queue, cfg.MQ.CleanupChannel, cleaner, cfg.Worker.ReconcileSchedule, log)
		if workerReconcileOnce {
			_, err := w.ReconcileNow(ctx)
			return err
		}

		log.Info("worker started")
		if err := w.Run(ctx); err != nil {
			log.Error("worker stopped", zap.Error(err))
			return err
		}
		log.Info("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().BoolVar(&workerReconcileOnce, "once", false, "run a single reconcile pass and exit")
}

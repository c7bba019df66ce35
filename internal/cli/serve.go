package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/ingest"
	"github.com/causewaylabs/causeway/pkg/pipeline"
	"github.com/causewaylabs/causeway/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the streaming analysis service",
	Long: `Subscribes to the configured NATS subjects and runs the
analysis pipeline continuously, persisting events, correlations,
root cause analyses and recommendations as records arrive.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	store, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	pipe, err := pipeline.New(logger, cfg, store)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}
	if err := pipe.Start(); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	sub, err := ingest.NewSubscriber(logger, cfg.Ingest, pipe)
	if err != nil {
		pipe.Stop()
		return fmt.Errorf("building subscriber: %w", err)
	}
	if err := sub.Start(); err != nil {
		pipe.Stop()
		return fmt.Errorf("starting subscriber: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	loader := config.NewLoader()
	if file := viper.ConfigFileUsed(); file != "" {
		loader = loader.WithConfigFile(file)
	}
	refresher := config.NewRefresher(logger, loader, cfg)
	go refresher.Run(ctx)

	logger.Info("Causeway serving",
		zap.String("nats_url", cfg.Ingest.URL),
		zap.Strings("subjects", cfg.Ingest.Subjects),
		zap.String("storage", cfg.Storage.Backend))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	// Stop ingestion first so the pipeline can drain what it has
	if err := sub.Stop(); err != nil {
		logger.Warn("Subscriber stop failed", zap.Error(err))
	}
	if err := pipe.Stop(); err != nil {
		logger.Warn("Pipeline stop failed", zap.Error(err))
	}
	cancel()
	if err := store.Close(context.Background()); err != nil {
		logger.Warn("Storage close failed", zap.Error(err))
	}

	received, dropped := sub.Stats()
	logger.Info("Shutdown complete",
		zap.Int64("records_received", received),
		zap.Int64("records_dropped", dropped))
	return nil
}

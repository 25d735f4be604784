package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/vietddude/blockstream/internal/control"
	"github.com/vietddude/blockstream/internal/core/config"
	"github.com/vietddude/blockstream/internal/stream"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "blockstream",
	Short: "Block streaming service",
	Long:  `Blockstream continuously polls redundant RPC providers for new blocks and emits a structured record per block, failing over between providers with backoff.`,
	Run:   runStreamer,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func initLogger(cfg *config.AppConfig) {
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	slog.SetDefault(slog.New(handler))
}

func streamConfig(cfg *config.AppConfig) stream.Config {
	return stream.Config{
		PollInterval:        time.Duration(cfg.Stream.PollInterval),
		BlockDelayThreshold: time.Duration(cfg.Stream.BlockDelayThreshold),
	}
}

func runStreamer(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	initLogger(cfg)

	controlCfg := control.Config{
		Port:      cfg.Server.Port,
		Stream:    streamConfig(cfg),
		Providers: cfg.Providers,
		Database:  cfg.Database,
		Redis:     cfg.Redis,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewStreamer(ctx, controlCfg)
	if err != nil {
		slog.Error("Failed to initialize streamer", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start streamer", "error", err)
		os.Exit(1)
	}

	slog.Info("Streamer started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}

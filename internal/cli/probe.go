package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vietddude/blockstream/internal/core/config"
	"github.com/vietddude/blockstream/internal/infra/rpc/pool"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the configured providers and report which are usable",
	Run:   runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	initLogger(cfg)

	specs := make([]pool.Spec, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		specs = append(specs, pool.Spec{Name: p.Name, URL: p.URL, Timeout: time.Duration(p.Timeout)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := pool.New(ctx, specs)
	if err != nil {
		if errors.Is(err, pool.ErrNoWorkingProviders) {
			slog.Error("No provider passed the liveness probe", "configured", len(specs))
		} else {
			slog.Error("Probe failed", "error", err)
		}
		os.Exit(1)
	}

	fmt.Printf("%d/%d providers usable: %v\n", p.Len(), len(specs), p.Names())
}

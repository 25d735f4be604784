// Package control wires the application together and manages its
// lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/blockstream/internal/core/config"
	"github.com/vietddude/blockstream/internal/emit"
	"github.com/vietddude/blockstream/internal/health"
	redisclient "github.com/vietddude/blockstream/internal/infra/redis"
	"github.com/vietddude/blockstream/internal/infra/rpc/pool"
	"github.com/vietddude/blockstream/internal/infra/storage/postgres"
	"github.com/vietddude/blockstream/internal/stream"
)

// Config holds the application configuration.
type Config struct {
	Port      int
	Stream    stream.Config
	Providers []config.ProviderConfig
	Database  postgres.Config
	Redis     redisclient.Config
}

// Streamer is the main application struct managing the streaming loop
// and its collaborators.
type Streamer struct {
	cfg          Config
	pool         *pool.Pool
	loop         *stream.Loop
	emitter      emit.Emitter
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewStreamer creates a Streamer with all dependencies initialized.
// The only fatal condition is the pool finding zero usable providers.
func NewStreamer(ctx context.Context, cfg Config) (*Streamer, error) {
	log := slog.Default()

	// 1. Output sinks. The structured log record is always on;
	// postgres and redis sinks are added when configured.
	emitters := []emit.Emitter{emit.NewLogEmitter(log)}

	var db *postgres.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		emitters = append(emitters, emit.NewPostgresEmitter(postgres.NewBlockRepo(db)))
		log.Info("Using PostgreSQL block sink")
	}

	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, stream sink disabled", "error", err)
		} else {
			emitters = append(emitters, emit.NewRedisEmitter(redisClient, cfg.Redis.Stream))
			log.Info("Using Redis block sink", "stream", cfg.Redis.Stream)
		}
	}

	emitter := emit.NewMulti(log, emitters...)

	// 2. Provider pool, probing each configured endpoint once.
	specs := make([]pool.Spec, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		specs = append(specs, pool.Spec{Name: p.Name, URL: p.URL, Timeout: time.Duration(p.Timeout)})
	}

	providerPool, err := pool.New(ctx, specs, pool.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider pool: %w", err)
	}
	log.Info("Provider pool ready", "providers", providerPool.Names())

	// 3. Streaming loop and health surface.
	loop := stream.New(providerPool, emitter, cfg.Stream, stream.WithLogger(log))

	threshold := cfg.Stream.BlockDelayThreshold
	if threshold <= 0 {
		threshold = stream.DefaultBlockDelayThreshold
	}
	monitor := health.NewMonitor(loop, providerPool, threshold)
	healthServer := health.NewServer(monitor, cfg.Port)

	return &Streamer{
		cfg:          cfg,
		pool:         providerPool,
		loop:         loop,
		emitter:      emitter,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Start starts the health server and the streaming loop.
func (s *Streamer) Start(ctx context.Context) error {
	go func() {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	go func() {
		if err := s.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Streaming loop stopped", "error", err)
		}
	}()

	return nil
}

// Stop shuts the streamer down.
func (s *Streamer) Stop(ctx context.Context) error {
	s.log.Info("Stopping streamer...")

	if err := s.emitter.Close(); err != nil {
		s.log.Warn("Failed to close sinks", "error", err)
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}

	return s.healthServer.Stop(ctx)
}

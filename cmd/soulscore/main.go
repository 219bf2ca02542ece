package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/soulscore/internal/api"
	"github.com/MikeSquared-Agency/soulscore/internal/cache"
	"github.com/MikeSquared-Agency/soulscore/internal/config"
	"github.com/MikeSquared-Agency/soulscore/internal/hermes"
	"github.com/MikeSquared-Agency/soulscore/internal/ledger"
	"github.com/MikeSquared-Agency/soulscore/internal/processor"
	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
	"github.com/MikeSquared-Agency/soulscore/internal/store"
)

const queueGroup = "soulscore"

func main() {
	dotenvErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)
	if dotenvErr != nil && !os.IsNotExist(dotenvErr) {
		slog.Warn("failed to load .env", "error", dotenvErr)
	}

	slog.Info("soulscore starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// Redis snapshot cache (optional, reads fall through to postgres)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, running without snapshot cache", "addr", cfg.RedisAddr, "error", err)
			rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
			slog.Info("redis connected", "addr", cfg.RedisAddr, "ttl", cfg.SnapshotTTL)
		}
	} else {
		slog.Warn("redis not configured, running without snapshot cache")
	}
	snapshots := cache.NewSnapshots(rdb, cfg.SnapshotTTL)

	// Reputation engine and ledger
	engine, err := reputation.NewEngine(cfg.ReputationConfig())
	if err != nil {
		slog.Error("invalid reputation config", "error", err)
		os.Exit(1)
	}
	led := ledger.New(db, engine, snapshots, slog.Default())
	slog.Info("reputation engine ready", "half_life", engine.HalfLife())

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	slog.Info("NATS connected", "url", cfg.NatsURL)

	proc := processor.New(led, hermesClient, slog.Default())

	if err := hermesClient.QueueSubscribe(hermes.SubjectActivityRecorded, queueGroup, proc.HandleActivity); err != nil {
		slog.Error("failed to subscribe to activity events", "error", err)
		os.Exit(1)
	}
	if err := hermesClient.QueueSubscribe(hermes.SubjectEmotionObserved, queueGroup, proc.HandleObservation); err != nil {
		slog.Error("failed to subscribe to emotion events", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, api.Deps{
		Reputations:  led,
		Snapshots:    snapshots,
		Observations: db,
		Publisher:    hermesClient,
	}, slog.Default())
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
		"half_life": engine.HalfLife().String(),
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("soulscore ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	// Stop intake first, then let handlers finish before the deferred
	// redis and database closes run.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	hermesClient.Close()
	cancel()
	slog.Info("soulscore stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

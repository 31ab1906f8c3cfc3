package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/registry/internal/dbconfig"
	"github.com/mcdev12/registry/internal/outbox"
)

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// configure zerolog console output and level
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fileCfg, err := loadConfig(os.Getenv("WORKER_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load worker config")
	}

	// DB config
	cfg := dbconfig.NewConfigFromEnv()
	dsn := cfg.DSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")

	publisher, closer, err := buildPublisher(fileCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create publisher")
	}
	if closer != nil {
		defer func() {
			if err := closer(); err != nil {
				log.Error().Err(err).Msg("close publisher")
			}
		}()
	}

	registry := prometheus.NewRegistry()
	metrics := outbox.NewPrometheusMetrics(registry)

	repo := outbox.NewPostgresRepository(db)
	clock := clockwork.NewRealClock()

	pubCfg := dbconfig.NewPublisherConfigFromEnv()
	workerCfg := outbox.Config{
		PollInterval:      pubCfg.PollInterval,
		BatchSize:         pubCfg.BatchSize,
		MaxAttempts:       pubCfg.MaxAttempts,
		BackoffBase:       pubCfg.BackoffBase,
		BackoffMultiplier: pubCfg.BackoffMultiplier,
		DispatchTimeout:   pubCfg.DispatchTimeout,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	worker := outbox.NewWorker(repo, publisher, workerCfg, clock, logger, metrics)

	// signal-aware context
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start outbox worker")
	}

	// LISTEN/NOTIFY fast path; the polling worker remains the backstop.
	if fileCfg.Listener.Enabled {
		ltCfg := outbox.DefaultListenerConfig()
		ltCfg.DatabaseURL = dsn
		listener, err := outbox.NewListener(repo, publisher, clock, ltCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create outbox listener")
		}
		go func() {
			if err := listener.Start(ctx); err != nil {
				log.Error().Err(err).Msg("listener exited")
			}
		}()
	}

	// metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(fileCfg.MetricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("metrics server exited")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// Stop waits for the in-flight cycle to finish.
	if err := worker.Stop(); err != nil {
		log.Error().Err(err).Msg("stop worker")
	}
	log.Info().Msg("graceful shutdown complete")
}

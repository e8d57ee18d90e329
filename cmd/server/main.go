package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"
	_ "github.com/lib/pq"              // database/sql driver "postgres"

	"chronicle/internal/history"
	"chronicle/internal/ingest"
	"chronicle/internal/jwttoken"
	"chronicle/internal/lifecycle"
	"chronicle/internal/platform/config"
	"chronicle/internal/platform/httpserver"
	"chronicle/internal/platform/logger"
	"chronicle/internal/platform/metrics"
	"chronicle/internal/platform/middleware"
	platformredis "chronicle/internal/platform/redis"
	"chronicle/pkg/audit"
	"chronicle/pkg/audit/relay"
	auditmemory "chronicle/pkg/audit/store/memory"
	auditpostgres "chronicle/pkg/audit/store/postgres"
	"chronicle/pkg/platform/httputil"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		slog.Error("chronicle exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(slog.LevelInfo)

	flags := lifecycle.New(cfg.Lifecycle.FlagDir, log)
	if err := flags.Initializing(); err != nil {
		return err
	}
	defer flags.Stopped()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, closeStore, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	historyOpts := []history.Option{history.WithMetrics(m)}
	if redisClient != nil {
		historyOpts = append(historyOpts, history.WithCache(history.NewRedisCache(redisClient.Client), cfg.Redis.CacheTTL))
	}
	historySvc := history.NewService(store, log, historyOpts...)

	g, ctx := errgroup.WithContext(ctx)

	ingestOpts := []ingest.Option{ingest.WithMetrics(m)}
	if cfg.Kafka.Enabled {
		client, err := relay.NewClient(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := relay.EnsureTopic(ctx, client, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
			return err
		}
		journal := relay.New(client, cfg.Kafka.Topic, log)
		g.Go(func() error {
			if err := journal.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		ingestOpts = append(ingestOpts, ingest.WithRelay(journal))
		log.Info("journal relay enabled", "topic", cfg.Kafka.Topic)
	}
	ingestSvc := ingest.NewService(store, log, ingestOpts...)

	router := chi.NewRouter()
	router.Use(middleware.RequestTime)
	router.Use(middleware.Correlation)
	router.Use(middleware.ClientMetadata)

	// Ops endpoints stay outside the gateway trust boundary so probes and
	// scrapers need no credentials.
	router.Get("/healthz", handleHealthz(redisClient))
	router.Handle("/metrics", promhttp.Handler())

	validator := jwttoken.NewValidatorAdapter(jwttoken.NewJWTService(cfg.Auth.JWTSigningKey))
	router.Group(func(r chi.Router) {
		r.Use(middleware.TrustedGateway(cfg.Auth.GatewaySecretHash, log))
		r.Use(middleware.Identity(validator, log))
		history.NewHandler(historySvc, log, m).Register(r)
		ingest.NewHandler(ingestSvc, log, m).Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	g.Go(func() error {
		log.Info("chronicle listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		if err := flags.Stopping(); err != nil {
			log.Warn("lifecycle flag", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := flags.Ready(); err != nil {
		return err
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("chronicle stopped")
	return nil
}

// openStore opens the configured record store. Without a DSN the server
// falls back to the in-memory store, which only suits local development.
func openStore(ctx context.Context, cfg config.Database, log *slog.Logger) (audit.Store, func(), error) {
	if cfg.DSN == "" {
		log.Warn("no database configured, audit records are held in memory")
		return auditmemory.New(), func() {}, nil
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	store := auditpostgres.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("audit store ready", "driver", cfg.Driver)
	return store, func() { db.Close() }, nil
}

func handleHealthz(redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				status["cache"] = "degraded"
			}
		}
		httputil.WriteJSON(w, http.StatusOK, status)
	}
}

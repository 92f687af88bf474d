package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"driftwatch/internal/platform/config"
	"driftwatch/internal/platform/httpserver"
	"driftwatch/internal/platform/kafka"
	"driftwatch/internal/platform/logger"
	"driftwatch/internal/platform/metrics"
	"driftwatch/internal/platform/redis"
	"driftwatch/internal/watch/buffer"
	"driftwatch/internal/watch/clients"
	"driftwatch/internal/watch/dispatch"
	"driftwatch/internal/watch/enrich"
	"driftwatch/internal/watch/handler"
	"driftwatch/internal/watch/listener"
	"driftwatch/internal/watch/orchestrator"
	"driftwatch/internal/watch/store/cursor"
	"driftwatch/internal/watch/store/history"
	sessionstore "driftwatch/internal/watch/store/session"
)

const auditFetchTimeout = 30 * time.Second

// main wires the aggregation pipeline: audit poll loop, Redis debounce
// sessions, expiry listener, enrichment, and the Kafka publisher. Business
// logic lives in the internal/watch packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	m := metrics.New()

	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rdb.EnsureExpiryNotifications(ctx); err != nil {
		log.Error("enabling redis expiry notifications failed", "error", err)
		os.Exit(1)
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Error("kafka init failed", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	// Postgres is optional: without it, cursors and notification history live
	// in process memory.
	var (
		cursorStore  orchestrator.CursorStore = cursor.NewMemoryStore()
		historyStore dispatch.History         = history.NewMemoryStore()
	)
	if cfg.PostgresURL != "" {
		db, err := history.Open(cfg.PostgresURL)
		if err != nil {
			log.Error("postgres init failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		cursorStore = cursor.NewPostgresStore(db)
		historyStore = history.NewPostgresStore(db)
	}

	sessions := sessionstore.NewRedisStore(rdb.Client, log)
	buf := buffer.New(sessions, cfg.DebounceWindow, log, m)

	auditSource := clients.NewAuditSourceClient(cfg.AuditSourceURL, cfg.CollaboratorToken, auditFetchTimeout)
	metaClient := clients.NewMetadataClient(cfg.MetadataURL, cfg.CollaboratorToken, cfg.MetadataTimeout, log)
	sumClient := clients.NewSummarizerClient(cfg.SummarizerURL, cfg.CollaboratorToken, cfg.SummaryTimeout, log)

	enricher := enrich.New(metaClient, sumClient, log, m, cfg.MetadataTimeout, cfg.SummaryTimeout)
	dispatcher := dispatch.New(dispatch.NewKafkaPublisher(producer), historyStore, log, m, cfg.TargetBaseURL)

	lst := listener.New(sessions, enricher, dispatcher, log, m)
	if err := lst.Start(ctx); err != nil {
		log.Error("expiry listener start failed", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(auditSource, cursorStore, buf, sessions, enricher, dispatcher,
		cfg.Orgs, cfg.PollInterval, log, m)
	orch.Start(ctx)
	defer orch.Stop()

	router := chi.NewRouter()
	handler.New(orch, log).Register(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rdb.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting driftwatch", "addr", cfg.Addr, "window", cfg.DebounceWindow.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

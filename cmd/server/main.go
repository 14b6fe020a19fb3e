package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"caseregistry/internal/casegraph"
	"caseregistry/internal/platform/config"
	"caseregistry/internal/platform/httpserver"
	"caseregistry/internal/platform/logger"
	"caseregistry/internal/platform/middleware"
	platformredis "caseregistry/internal/platform/redis"
	registryhandler "caseregistry/internal/registry/handler"
	registrymetrics "caseregistry/internal/registry/metrics"
	"caseregistry/internal/registry/service"
	registrystore "caseregistry/internal/registry/store"
	"caseregistry/internal/registry/store/memory"
	"caseregistry/internal/registry/store/postgres"
	platformaudit "caseregistry/pkg/platform/audit"
	"caseregistry/pkg/platform/tx"
)

// slugStopWords are dropped when deriving registry slugs from names.
var slugStopWords = []string{"a", "an", "and", "of", "the"}

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	store, txRunner, cleanupDB := buildRegistryStore(cfg, log)
	defer cleanupDB()

	serviceOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(registrymetrics.New()),
		service.WithStopWords(slugStopWords),
	}

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := platformaudit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			log.Error("kafka audit sink unavailable", "error", err)
			os.Exit(1)
		}
		forwarder := platformaudit.NewForwarder(sink, log, 256)
		defer func() { _ = forwarder.Close() }()
		serviceOpts = append(serviceOpts, service.WithForwarder(forwarder))
		log.Info("audit forwarding enabled", "topic", cfg.KafkaAuditTopic)
	}

	registrySvc := service.New(store, txRunner, serviceOpts...)

	caseStore := buildCaseStore(cfg, log)
	builder := casegraph.NewBuilder(caseStore, casegraph.WithLogger(log))

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor(middleware.NewHMACValidator(cfg.JWTSigningKey), log))
		registryhandler.New(registrySvc, log).Register(r)
		casegraph.NewHandler(builder).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// buildRegistryStore opens the Postgres-backed store when DATABASE_URL is
// set and falls back to the in-memory store otherwise, which keeps local
// runs dependency free.
func buildRegistryStore(cfg config.Server, log *slog.Logger) (registrystore.Store, tx.Runner, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory registry store")
		return memory.NewInMemory(), tx.NewPassthroughRunner(), func() {}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Error("opening database", "error", err)
		os.Exit(1)
	}
	if err := db.PingContext(context.Background()); err != nil {
		log.Error("pinging database", "error", err)
		os.Exit(1)
	}
	return postgres.New(db), tx.NewSQLRunner(db), func() { _ = db.Close() }
}

// buildCaseStore wires the case store, wrapping it in the Redis read-through
// cache when REDIS_URL is configured.
func buildCaseStore(cfg config.Server, log *slog.Logger) casegraph.CaseStore {
	var store casegraph.CaseStore = casegraph.NewInMemoryCaseStore()

	client, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	if client == nil {
		return store
	}
	log.Info("case cache enabled", "ttl", cfg.CaseCacheTTL)
	return casegraph.NewCachedCaseStore(store, client, cfg.CaseCacheTTL, log)
}

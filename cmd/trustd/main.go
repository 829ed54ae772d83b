// Package main provides the trust pipeline server entry point. It hosts
// the quarantine review API and the audit log API in a single process and
// runs the audit retention worker in the background.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/smith-horn/skillsmith/pkg/auditlog"
	"github.com/smith-horn/skillsmith/pkg/authz"
	"github.com/smith-horn/skillsmith/pkg/pipeline"
	"github.com/smith-horn/skillsmith/pkg/quarantine"
	"github.com/smith-horn/skillsmith/pkg/registry"
	"github.com/smith-horn/skillsmith/pkg/storage"
)

func main() {
	var (
		listenAddr   string
		databaseType string
		databaseDSN  string
		policyPath   string
		edition      string
	)

	flag.StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	flag.StringVar(&databaseType, "db-type", "sqlite", "Database type (sqlite, postgres, or mysql)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string")
	flag.StringVar(&policyPath, "policy", "/config/review-policy.yaml", "Path to review policy config")
	flag.StringVar(&edition, "edition", envOrDefault("SKILLSMITH_EDITION", "community"), "Deployment edition (community or enterprise)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting trust pipeline server",
		"listen", listenAddr,
		"dbType", databaseType,
		"edition", edition,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := storage.Open(databaseType, databaseDSN)
	if err != nil {
		fatal(logger, "failed to connect to database", err)
	}

	qStore := quarantine.NewStore(db)
	auditStore := auditlog.NewStore(db)
	versions := registry.NewVersionStore(db, 0)
	advisories := registry.NewAdvisoryStore(db)

	// Serialize migrations across replicas.
	locker := storage.NewMigrationLocker(db)
	err = locker.WithLock(ctx, func() error {
		if err := qStore.AutoMigrate(); err != nil {
			return err
		}
		if err := auditStore.AutoMigrate(); err != nil {
			return err
		}
		if err := versions.AutoMigrate(); err != nil {
			return err
		}
		return advisories.AutoMigrate()
	})
	if err != nil {
		fatal(logger, "failed to migrate database schema", err)
	}

	// Refuse to start on a database we cannot trust. Each diagnosis has
	// a distinct operator remediation, so they are reported separately.
	switch result := pipeline.Preflight(db); result.Diagnosis {
	case pipeline.DiagnosisOK:
	case pipeline.DiagnosisDatabaseUnreachable:
		fatal(logger, "preflight: database unreachable", fmt.Errorf("%s", result.Detail))
	case pipeline.DiagnosisSchemaMissing:
		fatal(logger, "preflight: schema missing after migration", fmt.Errorf("%s", result.Detail))
	case pipeline.DiagnosisClockSkew:
		fatal(logger, "preflight: persisted timestamps are ahead of the local clock", fmt.Errorf("%s", result.Detail))
	default:
		fatal(logger, "preflight: unknown diagnosis", fmt.Errorf("%s: %s", result.Diagnosis, result.Detail))
	}

	audit := auditlog.NewLogger(auditStore, logger)

	reviewPolicy, err := quarantine.LoadPolicy(policyPath)
	if err != nil {
		fatal(logger, "failed to load review policy", err)
	}

	qService := quarantine.NewService(qStore, reviewPolicy, audit, nil, logger)

	auditCfg := auditlog.ConfigFromEnv()
	if auditCfg.Enabled {
		worker := auditlog.NewRetentionWorker(audit, auditCfg.RetentionDays, logger)
		go worker.Run(ctx)
		logger.Info("audit retention worker started", "retentionDays", auditCfg.RetentionDays)
	}

	sessionMW, err := authz.SessionMiddleware(authz.SessionMiddlewareConfig{
		PublicKeyPath: os.Getenv("SKILLSMITH_JWT_PUBLIC_KEY_PATH"),
		Issuer:        os.Getenv("SKILLSMITH_JWT_ISSUER"),
		Logger:        logger,
	})
	if err != nil {
		fatal(logger, "failed to configure session middleware", err)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(sessionMW)

	router.Mount("/api/quarantine/v1alpha1", quarantine.NewRouter(qService))
	router.Mount("/api/audit/v1alpha1", auditlog.NewRouter(audit))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	logger.Info("trust pipeline server ready",
		"listen", listenAddr,
		"validator", pipeline.ValidatorFor(edition, nil, advisories).Name())

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "HTTP server error", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

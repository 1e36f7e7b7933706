package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mindline/platform/internal/api/router"
	appconfig "github.com/mindline/platform/internal/config"
	"github.com/mindline/platform/internal/crisis"
	"github.com/mindline/platform/internal/doctors"
	"github.com/mindline/platform/internal/escalation"
	"github.com/mindline/platform/internal/feedback"
	"github.com/mindline/platform/internal/notify"
	"github.com/mindline/platform/internal/observability/metrics"
	"github.com/mindline/platform/internal/patients"
	"github.com/mindline/platform/internal/realtime"
	"github.com/mindline/platform/internal/session"
	"github.com/mindline/platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting mindline coordinator",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		registry     doctors.Registry
		patientRepo  patients.Repository
		requestStore escalation.Store
		roomStore    session.Store
		sessionStore feedback.SessionStore
		fbStore      feedback.FeedbackStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to reach database", "error", err)
			os.Exit(1)
		}
		registry = doctors.NewPostgresRegistry(pool)
		patientRepo = patients.NewPostgresRepository(pool)
		requestStore = escalation.NewPostgresStore(pool)
		roomStore = session.NewPostgresStore(pool)
		sessionStore = feedback.NewPostgresSessionStore(pool)
		fbStore = feedback.NewPostgresFeedbackStore(pool)
		logger.Info("using postgres storage")
	} else {
		registry = doctors.NewInMemoryRegistry()
		patientRepo = patients.NewInMemoryRepository()
		requestStore = escalation.NewInMemoryStore()
		roomStore = session.NewInMemoryStore()
		sessionStore = feedback.NewInMemorySessionStore()
		fbStore = feedback.NewInMemoryFeedbackStore()
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Doctor presence heartbeats need Redis; without it doctors stay online
	// until they toggle off.
	var presence *doctors.Presence
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to reach redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		presence = doctors.NewPresence(client, cfg.PresenceTTL, logger)
		go presence.Run(ctx, registry, cfg.PresenceSweepInterval)
		logger.Info("presence sweeping enabled", "ttl", cfg.PresenceTTL)
	}

	promRegistry := prometheus.NewRegistry()
	escMetrics := metrics.NewEscalationMetrics(promRegistry)

	hub := realtime.NewHub(logger)

	var detector crisis.Detector = crisis.NewKeywordDetector()
	if cfg.RiskAnalyzerURL != "" {
		detector = crisis.NewServiceDetector(cfg.RiskAnalyzerURL, cfg.RiskAnalyzerTimeout, logger)
	}

	var notifier notify.EmergencyNotifier = notify.NewStubNotifier(logger)
	if cfg.TwilioAccountSID != "" {
		notifier = notify.NewWhatsAppNotifier(
			cfg.TwilioAccountSID, cfg.TwilioAuthToken,
			cfg.TwilioWhatsAppFrom, cfg.EmergencyCountryPfx, logger)
	}

	coordinator := escalation.NewCoordinator(escalation.CoordinatorConfig{
		Store:    requestStore,
		Registry: registry,
		Patients: patientRepo,
		Hub:      hub,
		Notifier: notifier,
		Detector: detector,
		Metrics:  escMetrics,
		Logger:   logger,
	})
	sessionSvc := session.NewService(session.ServiceConfig{
		Rooms:    roomStore,
		Requests: requestStore,
		Sessions: sessionStore,
		Registry: registry,
		Patients: patientRepo,
		Hub:      hub,
		Metrics:  escMetrics,
		Logger:   logger,
	})
	gateway := realtime.NewGateway(hub, sessionSvc, realtime.GatewayConfig{
		WriteTimeout:  cfg.WSWriteTimeout,
		SendBuffer:    cfg.WSSendBuffer,
		MaxMessageLen: cfg.WSMaxMessageLen,
	}, logger)

	routerCfg := &router.Config{
		Logger:             logger,
		DoctorsHandler:     doctors.NewHandler(registry, presence, logger),
		PatientsHandler:    patients.NewHandler(patientRepo, logger),
		EscalationHandler:  escalation.NewHandler(coordinator, logger),
		SessionHandler:     session.NewHandler(sessionSvc, logger),
		FeedbackHandler:    feedback.NewHandler(fbStore, sessionStore, coordinator, logger),
		Gateway:            gateway,
		MetricsHandler:     promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/seslidestek/telephony_services/internal/platform/config"
	"github.com/seslidestek/telephony_services/internal/platform/database"
	"github.com/seslidestek/telephony_services/internal/platform/logger"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/adapters/callrouter"
	httpadapter "github.com/seslidestek/telephony_services/internal/provisioning_service/adapters/http"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/adapters/numberprovider"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/app"
	"github.com/seslidestek/telephony_services/internal/provisioning_service/repository/postgres"
)

const (
	serviceName     = "provisioning-service"
	shutdownTimeout = 15 * time.Second
)

// httpLogger logs HTTP requests through slog.
func httpLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", chiMiddleware.GetReqID(r.Context())),
			)
		}
		return http.HandlerFunc(fn)
	}
}

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)

	appLogger.Info("Provisioning service starting...",
		"http_port", cfg.ServerPort,
		"metrics_port", cfg.MetricsPort,
		"log_level", cfg.LogLevel,
	)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL")

	poolRepo := postgres.NewPgNumberPoolRepository(dbPool, appLogger)
	tenantRepo := postgres.NewPgTenantRepository(dbPool, appLogger)
	agentRepo := postgres.NewPgAgentRepository(dbPool, appLogger)
	txBeginner := postgres.NewTxBeginner(dbPool)

	// Run against the real provider only when credentials are configured;
	// otherwise the mock keeps the full flow exercisable offline.
	var provider numberprovider.Adapter
	if cfg.VerimorAPIKey != "" {
		provider = numberprovider.NewVerimorProvider(appLogger,
			cfg.VerimorBaseURL, cfg.VerimorAPIKey, cfg.VerimorAreaCode, cfg.VoiceCallbackURL,
			&http.Client{Timeout: cfg.ProviderTimeout()})
		appLogger.Info("Using Verimor number provider", "base_url", cfg.VerimorBaseURL, "area_code", cfg.VerimorAreaCode)
	} else {
		provider = numberprovider.NewMockProvider(appLogger)
		appLogger.Warn("Verimor API key not configured; using mock number provider")
	}

	orchestrator := app.NewOrchestrator(txBeginner, poolRepo, agentRepo, provider,
		cfg.PlaceholderNumber, cfg.ProviderTimeout(), appLogger)

	intake := app.NewIntake(txBeginner, tenantRepo, agentRepo, orchestrator, app.IntakeConfig{
		DefaultAgentModel:    cfg.DefaultAgentModel,
		PlaceholderNumber:    cfg.PlaceholderNumber,
		JWTAccessSecret:      cfg.JWTAccessSecret,
		JWTAccessExpiryHours: cfg.JWTAccessExpiryHours,
	}, appLogger)

	routerClient := callrouter.NewClient(appLogger, cfg.CallRouterURL, cfg.CallRouterTimeout(), nil)
	resolver := app.NewCallResolver(poolRepo, agentRepo, tenantRepo, routerClient, appLogger)

	webhookHandler := httpadapter.NewWebhookHandler(intake, resolver, appLogger)
	adminHandler := httpadapter.NewAdminHandler(orchestrator, appLogger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(httpLogger(appLogger))
	r.Use(chiMiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	webhookHandler.RegisterRoutes(r)
	adminHandler.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: r,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	g, gCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			appLogger.Info("Shutdown signal received", "signal", sig.String())
			mainCancel()
		case <-gCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Provisioning service stopped")
}

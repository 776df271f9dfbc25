// Package main is the entry point for the Gatherly checkout API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/gatherly-app/gatherly/internal/api"
	"github.com/gatherly-app/gatherly/internal/appserver"
	"github.com/gatherly-app/gatherly/internal/auth"
	"github.com/gatherly-app/gatherly/internal/config"
	"github.com/gatherly-app/gatherly/internal/db"
	"github.com/gatherly-app/gatherly/internal/discount"
	"github.com/gatherly-app/gatherly/internal/health"
	"github.com/gatherly-app/gatherly/internal/idempotency"
	"github.com/gatherly-app/gatherly/internal/middleware"
	"github.com/gatherly-app/gatherly/internal/payment"
	"github.com/gatherly-app/gatherly/internal/session"
	"github.com/gatherly-app/gatherly/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "path to an optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Gatherly Checkout API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx := context.Background()

	tracingProvider, err := tracing.NewProvider(tracingConfig(cfg.Env))
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	dbConn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Metrics are registered on the default registry so promhttp can serve
	// them without extra plumbing.
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	paymentMetrics := payment.NewMetrics()
	if err := paymentMetrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register payment metrics", "error", err)
		os.Exit(1)
	}

	// Domain wiring.
	sessions := session.NewStore()
	server := appserver.NewHTTPClient(cfg.AppServerURL, cfg.AppServerToken)
	processor := payment.NewStripeClient(cfg.StripeAPIKey)
	intents := payment.NewIntentClient(server, cfg.CheckoutReturnURL, cfg.CheckoutCancelURL)
	pending := payment.NewRedisPendingStore(redisClient)
	ledger := payment.NewPostgresRepository(dbConn, logger)

	orch := payment.NewOrchestrator(sessions, intents, server, processor, pending, ledger, paymentMetrics, logger)
	orch.SetRecheckDelay(cfg.PaymentRecheckDelay)
	listener := payment.NewResumptionListener(pending, orch, logger)

	runHandlers := api.NewRunHandlers(sessions, discount.NewValidator(server))
	paymentHandlers := api.NewPaymentHandlers(orch, listener)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:        health.NewDBChecker(dbConn),
		RedisChecker:     health.NewRedisChecker(redisClient),
		AppServerChecker: health.NewAppServerChecker(cfg.AppServerURL + "/health"),
		MetricsEnabled:   true,
	})

	jwtService := auth.NewJWTService(cfg.JWTSecret)
	idempotencyRepo := idempotency.NewPostgresRepository(dbConn)
	rateLimitStore := middleware.NewRedisRateLimitStore(redisClient)

	// Checkout routes require a valid access token; payment submission is
	// additionally idempotency-keyed and rate limited per user.
	checkout := http.NewServeMux()
	checkout.HandleFunc("POST /checkout/runs", runHandlers.CreateRun)
	checkout.HandleFunc("GET /checkout/runs/{id}", runHandlers.GetRun)
	checkout.HandleFunc("PATCH /checkout/runs/{id}/steps/{step}", runHandlers.UpdateStep)
	checkout.HandleFunc("POST /checkout/runs/{id}/reset", runHandlers.ResetRun)
	checkout.HandleFunc("DELETE /checkout/runs/{id}", runHandlers.DiscardRun)
	checkout.Handle("POST /checkout/runs/{id}/discount",
		middleware.RateLimiterWithMetrics(rateLimitStore, middleware.DefaultDiscountLimit(), middleware.UserKeyFunc(), httpMetrics, "discount")(
			http.HandlerFunc(runHandlers.ApplyDiscount)))
	checkout.HandleFunc("DELETE /checkout/runs/{id}/discount", runHandlers.ClearDiscount)
	checkout.Handle("POST /checkout/pay",
		middleware.RateLimiterWithMetrics(rateLimitStore, middleware.DefaultPaymentLimit(), middleware.UserKeyFunc(), httpMetrics, "pay")(
			http.HandlerFunc(paymentHandlers.Pay)))
	checkout.HandleFunc("GET /checkout/return", paymentHandlers.Return)
	checkout.HandleFunc("POST /checkout/resume", paymentHandlers.Resume)

	idempotentRoutes := map[string]bool{"/checkout/pay": true}
	protected := middleware.RequireAuth(jwtService)(
		middleware.IdempotencyMiddleware(idempotencyRepo, idempotentRoutes)(checkout))

	mux := http.NewServeMux()
	mux.Handle("/checkout/", protected)
	mux.HandleFunc("GET /health", healthHandlers.Health)
	mux.HandleFunc("GET /ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.RequestID(
		middleware.Tracing("gatherly-api")(
			middleware.HTTPMetrics(httpMetrics)(
				middleware.Logging(logger)(
					middleware.CORS(corsConfig())(
						middleware.RateLimiterWithMetrics(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), httpMetrics, "global")(
							mux))))))

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Expired idempotency keys are purged hourly.
	cleanupStop := make(chan struct{})
	go idempotency.RunPeriodicCleanup(idempotencyRepo, 1*time.Hour, idempotency.DefaultExpiry, cleanupStop)

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	close(cleanupStop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}

// tracingConfig builds the OTLP tracing configuration from the environment.
// Tracing stays off unless TRACING_ENABLED=true.
func tracingConfig(env string) tracing.Config {
	samplingRate := 0.1
	if v := os.Getenv("TRACING_SAMPLING_RATE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			samplingRate = parsed
		}
	}
	exporterType := os.Getenv("OTEL_EXPORTER_TYPE")
	if exporterType == "" {
		exporterType = "otlp-grpc"
	}
	return tracing.Config{
		ServiceName:  "gatherly-api",
		Enabled:      os.Getenv("TRACING_ENABLED") == "true",
		Environment:  env,
		ExporterType: exporterType,
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SamplingRate: samplingRate,
		InsecureMode: env != "production",
	}
}

// corsConfig reads the browser origin allowlist from ALLOWED_ORIGINS.
// CORS stays disabled when the variable is unset.
func corsConfig() middleware.CORSConfig {
	var origins []string
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return middleware.CORSConfig{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		MaxAge:           300,
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/booking-assistant/internal/app"
	"github.com/jwalitptl/booking-assistant/internal/config"
	"github.com/jwalitptl/booking-assistant/internal/handler/health"
	"github.com/jwalitptl/booking-assistant/internal/handler/prometheus"
	"github.com/jwalitptl/booking-assistant/internal/middleware"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
)

// setupHealthCheck serves liveness, readiness and metrics for the worker.
func setupHealthCheck(a *app.App, port int) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery(a.Logger))
	health.NewHandler(a.Checks()).RegisterRoutes(engine.Group(""))
	engine.GET("/metrics", prometheus.New(a.Registry, "booking_worker").Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Fatal(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	configFile := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger := logger.NewLogger(cfg.ToLoggerConfig()).With("service", "worker")
	if cfg.Store.Driver == "memory" {
		logger.Fatal(errors.New("memory store"), "The worker needs a shared store, run the API with -with-worker instead")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "Failed to initialise application")
	}
	defer a.Close()

	if cfg.Redis.URL != "" {
		if _, err := a.Redis(ctx); err != nil {
			logger.Fatal(err, "Failed to connect to Redis")
		}
	}

	wait, err := a.StartWorkers(ctx)
	if err != nil {
		logger.Fatal(err, "Failed to start workers")
	}
	srv := setupHealthCheck(a, cfg.Server.WorkerPort)
	logger.Info("Worker started", "health_port", cfg.Server.WorkerPort)

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Health check server forced to shutdown")
	}
	wait()
}

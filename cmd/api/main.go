package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/booking-assistant/internal/app"
	"github.com/jwalitptl/booking-assistant/internal/config"
	authHandler "github.com/jwalitptl/booking-assistant/internal/handler/auth"
	"github.com/jwalitptl/booking-assistant/internal/handler/health"
	"github.com/jwalitptl/booking-assistant/internal/handler/message"
	"github.com/jwalitptl/booking-assistant/internal/handler/prometheus"
	"github.com/jwalitptl/booking-assistant/internal/handler/reservation"
	"github.com/jwalitptl/booking-assistant/internal/handler/slot"
	"github.com/jwalitptl/booking-assistant/internal/middleware"
	"github.com/jwalitptl/booking-assistant/internal/router"
	authService "github.com/jwalitptl/booking-assistant/internal/service/auth"
	"github.com/jwalitptl/booking-assistant/internal/service/classifier"
	"github.com/jwalitptl/booking-assistant/internal/service/conversation"
	"github.com/jwalitptl/booking-assistant/internal/service/offer"
	"github.com/jwalitptl/booking-assistant/pkg/auth"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/security"
)

const bcryptCost = 12

func main() {
	configFile := flag.String("config", "", "path to the config file")
	withWorker := flag.Bool("with-worker", false, "also run the outbox worker and resync in this process")
	hashPassword := flag.Bool("hash-password", false, "read a password from stdin and print its bcrypt hash")
	flag.Parse()

	if *hashPassword {
		if err := printHash(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logger.NewLogger(cfg.ToLoggerConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "Failed to initialise application")
	}
	defer a.Close()

	states, err := a.StateStore(ctx)
	if err != nil {
		logger.Fatal(err, "Failed to open conversation state store")
	}

	var opts []classifier.Option
	if gc := cfg.Classifier.Gemini; gc.APIKey != "" {
		oracle, err := classifier.NewGemini(ctx, gc.APIKey, gc.Model, gc.MemoTTL)
		if err != nil {
			logger.Fatal(err, "Failed to create Gemini client")
		}
		a.OnClose(oracle.Close)
		opts = append(opts, classifier.WithOracle(oracle, gc.Timeout))
	}
	cls := classifier.New(cfg.Vocabulary(), logger.With("component", "classifier"), a.Metrics, opts...)

	engine := offer.NewEngine(a.Ledger, cfg.Booking.MaxOffers, logger.With("component", "offer"))
	orchestrator := conversation.NewOrchestrator(
		states,
		cls,
		a.Ledger,
		a.Resolver,
		engine,
		a.Providers,
		conversation.Config{
			HorizonDays:     cfg.Booking.HorizonDays,
			Location:        a.Location,
			DefaultProvider: cfg.Booking.DefaultProvider,
		},
		logger.With("component", "conversation"),
		a.Metrics,
	)

	handlers := router.Handlers{
		Health:  health.NewHandler(a.Checks()),
		Message: message.NewHandler(orchestrator),
		Admin: []router.Handler{
			reservation.NewHandler(a.Ledger),
			slot.NewHandler(a.Ledger, a.Resolver),
		},
	}
	var authMiddleware *middleware.AuthMiddleware
	if len(cfg.Admins) > 0 {
		admins := make([]authService.Admin, 0, len(cfg.Admins))
		for _, ac := range cfg.Admins {
			admins = append(admins, authService.Admin{Username: ac.Username, PasswordHash: ac.PasswordHash})
		}
		authSvc := authService.NewService(
			admins,
			security.NewBcryptHasher(bcryptCost),
			auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour),
			logger.With("component", "auth"),
		)
		authMiddleware = middleware.NewAuthMiddleware(authSvc)
		handlers.Auth = authHandler.NewHandler(authSvc)
	} else {
		logger.Warn("No admins configured, admin API is disabled")
	}

	routerConfig := router.RouterConfig{
		CORSConfig: middleware.DefaultCORSConfig(),
		Debug:      cfg.Log.Level == "debug",
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
		})
	}
	r := router.NewRouter(authMiddleware, prometheus.New(a.Registry, "booking"), handlers, logger, routerConfig)
	r.Setup()

	wait := func() {}
	if *withWorker || cfg.Store.Driver == "memory" {
		// The memory store is private to this process, so its outbox must
		// be delivered here.
		wait, err = a.StartWorkers(ctx)
		if err != nil {
			logger.Fatal(err, "Failed to start workers")
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Server forced to shutdown")
	}
	wait()

	logger.Info("Server exited properly")
}

func printHash() error {
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		return fmt.Errorf("failed to read password: %w", err)
	}
	hash, err := security.NewBcryptHasher(bcryptCost).Hash(strings.TrimRight(password, "\r\n"))
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-settings/internal/config"
	"github.com/jwalitptl/clinic-settings/internal/email"
	"github.com/jwalitptl/clinic-settings/internal/handler"
	auditHandler "github.com/jwalitptl/clinic-settings/internal/handler/audit"
	settingsHandler "github.com/jwalitptl/clinic-settings/internal/handler/settings"
	"github.com/jwalitptl/clinic-settings/internal/middleware"
	"github.com/jwalitptl/clinic-settings/internal/repository"
	"github.com/jwalitptl/clinic-settings/internal/repository/memory"
	"github.com/jwalitptl/clinic-settings/internal/repository/postgres"
	redisRepo "github.com/jwalitptl/clinic-settings/internal/repository/redis"
	"github.com/jwalitptl/clinic-settings/internal/router"
	auditService "github.com/jwalitptl/clinic-settings/internal/service/audit"
	eventService "github.com/jwalitptl/clinic-settings/internal/service/event"
	settingsService "github.com/jwalitptl/clinic-settings/internal/service/settings"
	"github.com/jwalitptl/clinic-settings/pkg/auth"
	"github.com/jwalitptl/clinic-settings/pkg/clinicapi"
	"github.com/jwalitptl/clinic-settings/pkg/logger"
	"github.com/jwalitptl/clinic-settings/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-settings/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry, "clinic_settings", "")

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	checks := map[string]handler.Checker{
		"database": db.PingContext,
	}

	var redisClient *goredis.Client
	if cfg.Session.Store == "redis" || cfg.Events.Enabled {
		redisClient, err = redis.Connect(ctx, redis.Config{URL: cfg.Redis.URL})
		if err != nil {
			log.Fatal(err, "failed to connect to Redis")
		}
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var sessions repository.SessionRepository
	if cfg.Session.Store == "redis" {
		sessions = redisRepo.NewSessionRepository(redisClient, cfg.Session.TTL)
	} else {
		sessions = memory.NewSessionRepository(cfg.Session.TTL, cfg.Session.CleanupInterval)
	}

	client := clinicapi.New(clinicapi.Config{
		BaseURL:          cfg.ClinicAPI.BaseURL,
		Token:            cfg.ClinicAPI.Token,
		Timeout:          cfg.ClinicAPI.Timeout,
		RateLimit:        cfg.ClinicAPI.RateLimit,
		RateBurst:        cfg.ClinicAPI.RateBurst,
		MembersTTL:       cfg.ClinicAPI.MembersTTL,
		BreakerThreshold: cfg.ClinicAPI.BreakerThreshold,
		BreakerTimeout:   cfg.ClinicAPI.BreakerTimeout,
	}, clinicapi.WithMetrics(m))

	auditSvc := auditService.NewService(postgres.NewSaveRecordRepository(postgres.NewBaseRepository(db)), log, m)
	listeners := []settingsService.SaveListener{auditSvc}

	if cfg.Events.Enabled {
		broker := redis.NewRedisBroker(redisClient, log)
		listeners = append(listeners, eventService.NewEventService(broker, cfg.Redis.Channel, log))
	}
	if cfg.Mail.Enabled() {
		listeners = append(listeners, email.NewFailureNotifier(email.NewSMTPService(cfg.Mail), cfg.Mail.To, log))
	}

	orchestrator := settingsService.NewOrchestrator(client, log, m, settingsService.Options{
		Concurrency: cfg.Save.Concurrency,
	})
	settingsSvc := settingsService.NewService(sessions, client, orchestrator, log, m, listeners...)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)

	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		handler.NewHandler(registry, checks),
		settingsHandler.NewHandler(settingsSvc),
		auditHandler.NewHandler(auditSvc),
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RequestTimeout:   cfg.Server.RequestTimeout,
			Headers:          middleware.DefaultHeadersConfig(),
			MetricsPrefix:    "clinic_settings_http",
			Registerer:       registry,
			Logger:           log,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error(err, "server failed")
	}
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	log.Info("server exited properly")
}

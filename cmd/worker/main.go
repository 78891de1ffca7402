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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/clinic-settings/internal/config"
	"github.com/jwalitptl/clinic-settings/internal/handler"
	"github.com/jwalitptl/clinic-settings/internal/repository/postgres"
	auditService "github.com/jwalitptl/clinic-settings/internal/service/audit"
	"github.com/jwalitptl/clinic-settings/internal/worker"
	"github.com/jwalitptl/clinic-settings/pkg/logger"
	"github.com/jwalitptl/clinic-settings/pkg/metrics"
)

// The worker purges save records older than retention.max_age.
func main() {
	configPath := flag.String("config", "", "path to config.yml")
	healthAddr := flag.String("health-addr", ":8081", "address for health and metrics endpoints")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	}).WithFields(map[string]interface{}{"component": "retention_worker"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry, "clinic_settings", "worker")

	auditSvc := auditService.NewService(postgres.NewSaveRecordRepository(postgres.NewBaseRepository(db)), log, m)
	retention := worker.NewRetentionWorker(auditSvc, cfg.Retention.MaxAge, cfg.Retention.Interval, log)

	srv := setupHealthCheck(*healthAddr, registry, map[string]handler.Checker{"database": db.PingContext}, log)

	retention.Start(ctx)

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "health server forced to shutdown")
	}
}

func setupHealthCheck(addr string, registry *prometheus.Registry, checks map[string]handler.Checker, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	handler.NewHandler(registry, checks).RegisterRoutes(engine.Group(""))

	srv := &http.Server{Addr: addr, Handler: engine}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "health check server failed")
		}
	}()
	return srv
}

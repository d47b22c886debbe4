package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-attendance-api/api/swagger"
	"github.com/noah-isme/sma-attendance-api/internal/handler"
	"github.com/noah-isme/sma-attendance-api/internal/middleware"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	"github.com/noah-isme/sma-attendance-api/pkg/cache"
	"github.com/noah-isme/sma-attendance-api/pkg/config"
	"github.com/noah-isme/sma-attendance-api/pkg/database"
	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
	"github.com/noah-isme/sma-attendance-api/pkg/logger"
	"github.com/noah-isme/sma-attendance-api/pkg/observability"
)

// @title SMA Attendance API
// @version 1.0.0
// @description Attendance record lifecycle, audit trail and statistics.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flush, err := observability.InitSentry(cfg.Sentry.DSN, cfg.Env, cfg.Sentry.Release)
	if err != nil {
		logr.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			return err
		}
		logr.Info("database migrations applied")
	}

	var limiter middleware.RateCounter
	if cfg.RateLimit.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// requests are still served, the limiter fails open
			logr.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
		} else {
			counter := repository.NewRateLimitRepository(client)
			defer counter.Close() //nolint:errcheck
			limiter = counter
		}
	}

	metrics := service.NewMetricsService()

	recordRepo := repository.NewAttendanceRecordRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	auditSvc := service.NewAuditService(auditRepo, metrics, logr, cfg.Audit.WriteTimeout)
	auditQueue := jobs.NewQueue("attendance-audit", auditSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		RetryDelay: cfg.Audit.RetryDelay,
		Logger:     logr,
	})
	// detached from the signal context so requests drained during shutdown still reach the audit trail
	auditQueue.Start(context.Background())
	defer auditQueue.Stop()
	auditSvc.UseQueue(auditQueue)

	validate := validator.New()
	attendanceSvc := service.NewAttendanceService(recordRepo, classRepo, studentRepo, auditSvc, metrics, cfg.Attendance, validate, logr)
	statisticsSvc := service.NewStatisticsService(recordRepo, classRepo, studentRepo, metrics, logr)
	tokens := service.NewTokenService(cfg.JWT)

	router := newRouter(cfg, logr, routerDeps{
		tokens:     tokens,
		limiter:    limiter,
		metrics:    metrics,
		attendance: handler.NewAttendanceHandler(attendanceSvc),
		statistics: handler.NewStatisticsHandler(statisticsSvc),
		audit:      handler.NewAuditHandler(auditSvc),
		probes:     handler.NewMetricsHandler(metrics, db, logr),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return drain(shutdownCtx, srv, auditQueue)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type stopper interface {
	Stop()
}

// drain waits for in-flight requests, then stops the background workers they may still feed.
func drain(ctx context.Context, srv shutdowner, workers ...stopper) error {
	err := srv.Shutdown(ctx)
	for _, w := range workers {
		w.Stop()
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

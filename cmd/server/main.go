// @title                       Student Lifecycle API
// @version                     1.0
// @description                 Bulk provisioning, email change propagation and cascading deletion of student accounts.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduadmin/student-lifecycle/internal/api"
	"github.com/eduadmin/student-lifecycle/internal/api/handler"
	"github.com/eduadmin/student-lifecycle/internal/core/service"
	"github.com/eduadmin/student-lifecycle/internal/infrastructure/auth"
	mongodb "github.com/eduadmin/student-lifecycle/internal/infrastructure/db/mongo"
	redisdb "github.com/eduadmin/student-lifecycle/internal/infrastructure/db/redis"
	"github.com/eduadmin/student-lifecycle/internal/pkg/config"
	"github.com/eduadmin/student-lifecycle/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot := logger.New(logger.Options{})
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "student-lifecycle",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mongoClient.Disconnect(dctx); err != nil {
			log.Error().Err(err).Msg("mongo disconnect failed")
		}
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("redis close failed")
		}
	}()

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	identity := mongodb.NewIdentityGateway(db, tokens)
	store := mongodb.NewDocumentStore(db)
	if err := identity.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	propagation := service.PropagationConfig{
		CallTimeout:        cfg.Bulk.CallTimeout,
		EnrollmentPageSize: cfg.Bulk.EnrollmentPageSize,
	}
	reconciler := service.NewAccountReconciler(identity, store, redisdb.NewClaimLocker(rdb), service.ReconcilerConfig{
		DefaultPassword: cfg.Bulk.DefaultPassword,
		CallTimeout:     cfg.Bulk.CallTimeout,
	}, log)
	provisioning := service.NewProvisioningService(reconciler, redisdb.NewReportCache(rdb, cfg.Redis.ReportTTL), service.ProvisioningConfig{
		MaxBatch:    cfg.Bulk.MaxBatch,
		Concurrency: cfg.Bulk.Concurrency,
		Timeout:     cfg.Bulk.Timeout,
	}, log)
	authService := service.NewAuthService(identity, identity, tokens, cfg.Auth.TokenTTL, log)
	if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return err
	}

	e := api.NewRouter(api.Dependencies{
		Log:          log,
		Verifier:     identity,
		Auth:         authService,
		Provisioning: provisioning,
		Emails:       service.NewEmailService(identity, store, propagation, log),
		Deletions:    service.NewDeletionService(identity, store, propagation, log),
		HealthChecks: map[string]handler.HealthCheck{
			"mongo": func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		BodyLimit: "2M",
	})
	// Bulk batches may run for minutes.
	e.Server.WriteTimeout = cfg.Bulk.Timeout + time.Minute

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}

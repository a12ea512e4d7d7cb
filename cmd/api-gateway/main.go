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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/incident-portal-api/api/swagger"
	"github.com/noah-isme/incident-portal-api/internal/handler"
	"github.com/noah-isme/incident-portal-api/internal/middleware"
	"github.com/noah-isme/incident-portal-api/internal/repository"
	"github.com/noah-isme/incident-portal-api/internal/service"
	"github.com/noah-isme/incident-portal-api/migrations"
	"github.com/noah-isme/incident-portal-api/pkg/cache"
	"github.com/noah-isme/incident-portal-api/pkg/config"
	"github.com/noah-isme/incident-portal-api/pkg/database"
	"github.com/noah-isme/incident-portal-api/pkg/jobs"
	"github.com/noah-isme/incident-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/incident-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/incident-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/incident-portal-api/pkg/notify"
	"github.com/noah-isme/incident-portal-api/pkg/storage"
)

// @title Incident Portal API
// @version 1.0.0
// @description Community incident reporting portal: residents report, supervisors triage, administrators configure.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if _, err := database.Migrate(ctx, db, migrations.FS, logr); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}

	probes := map[string]handler.Pinger{"postgres": db}

	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// The portal keeps serving from postgres when the cache is down.
			logr.Warn("redis unavailable, cache disabled", zap.Error(err))
		} else {
			redisRepo := repository.NewCacheRepository(client, logr)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
			probes["redis"] = pingFunc(redisRepo.Ping)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.ConfigTTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	userRepo := repository.NewUserRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)
	configRepo := repository.NewConfigurationRepository(db)

	configSvc := service.NewConfigurationService(configRepo, userRepo, cacheSvc, cfg.Cache.ConfigTTL, validate, logr)

	store, err := storage.NewLocalStorage(cfg.Attachments.StorageDir, cfg.Attachments.QuotaBytes)
	if err != nil {
		return fmt.Errorf("init attachment storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)
	attachments := service.NewAttachmentService(store, signer, metrics, logr, service.AttachmentConfig{
		MaxImageBytes:  cfg.Attachments.MaxImageBytes,
		MaxVideoBytes:  cfg.Attachments.MaxVideoBytes,
		MaxImageDim:    cfg.Attachments.MaxImageDim,
		JPEGQuality:    cfg.Attachments.JPEGQuality,
		DownloadPrefix: cfg.APIPrefix + "/attachments/",
	})

	worker := service.NewNotificationWorker(newSender(cfg, logr), metrics, logr)
	queue := jobs.NewQueue("notifications", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnResult:   worker.OnResult,
	})
	queue.Start(ctx)
	defer queue.Stop()
	notifications := service.NewNotificationService(queue, userRepo, logr)

	authSvc := service.NewAuthService(userRepo, configSvc, cacheSvc, notifications, metrics, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SessionTTL:         cfg.Cache.SessionTTL,
	})
	userSvc := service.NewUserService(userRepo, configSvc, cacheSvc, metrics, validate, logr, cfg.Cache.SessionTTL)
	if created, err := userSvc.BootstrapAdmin(ctx, cfg.Bootstrap); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	} else if created {
		logr.Info("bootstrap administrator created", zap.String("username", cfg.Bootstrap.AdminUsername))
	}

	incidentSvc := service.NewIncidentService(incidentRepo, userRepo, configSvc, attachments, notifications, userRepo, metrics, validate, logr)
	exportSvc := service.NewExportService(incidentSvc, logr, nil, nil)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	handler.Routes{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Configuration: handler.NewConfigurationHandler(configSvc),
		Incidents:     handler.NewIncidentHandler(incidentSvc, exportSvc, authSvc),
		Attachments:   handler.NewAttachmentHandler(attachments),
		Metrics:       handler.NewMetricsHandler(metrics, probes),
		Tokens:        authSvc,
		Gate:          authSvc,
		Audit:         userRepo,
		Logger:        logr,
	}.Register(r, cfg.APIPrefix)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
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
	return srv.Shutdown(shutdownCtx)
}

func newSender(cfg *config.Config, logr *zap.Logger) notify.Sender {
	if cfg.Notifications.Sender == "smtp" {
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host: cfg.Notifications.SMTPHost,
			Port: cfg.Notifications.SMTPPort,
			From: cfg.Notifications.From,
		})
	}
	return notify.NewLogSender(logr)
}

// pingFunc adapts a plain ping method to handler.Pinger.
type pingFunc func(context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/api/swagger"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/handler"
	internalmiddleware "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/middleware"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/repository"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/service"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/cache"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/config"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/database"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/llm"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/logger"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/mailer"
	corsmiddleware "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/middleware/requestid"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/realtime"
)

// @title Course Feedback API
// @version 1.0.0
// @description Anonymous course reviews, alerting and teacher notifications
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return err
	}
	var locker cache.Locker = cache.NewLocalLocker()
	if redisClient != nil {
		defer redisClient.Close()
		locker = cache.NewRedisLocker(redisClient, "feedback:lock:")
	} else {
		logr.Info("redis disabled, using in-process locks and no resolver cache")
	}

	ai, err := llm.New(cfg.AI, logr.Named("llm"))
	if err != nil {
		return err
	}
	if !ai.Enabled() {
		logr.Warn("text generation disabled, summaries and alerts will degrade")
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	hub := realtime.NewHub(originChecker(cfg.CORS.AllowedOrigins), logr.Named("realtime"))
	defer hub.Close()

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	formRepo := repository.NewFormRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "feedback:cache:", logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Forms.CacheTTL, logr, redisClient != nil)
	access := service.NewAccessPolicy(classRepo, subjectRepo)

	authSvc := service.NewAuthService(userRepo, validate, logr.Named("auth"), service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "course-feedback",
	})
	formSvc := service.NewFormService(formRepo, subjectRepo, access, cacheSvc, userRepo, validate, logr.Named("forms"))
	classSvc := service.NewClassService(classRepo, userRepo, access, formSvc, validate, logr.Named("classes"))
	subjectSvc := service.NewSubjectService(subjectRepo, access, formSvc, validate, logr.Named("subjects"))
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, access, validate, logr.Named("enrollments"))
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, hub, mailer.New(cfg.Mail, logr.Named("mail")), metrics, validate, logr.Named("notifications"))

	alertSvc := service.NewAlertService(service.AlertServiceDeps{
		Alerts:   alertRepo,
		Reviews:  reviewRepo,
		Subjects: subjectRepo,
		Access:   access,
		AI:       ai,
		Notifier: notificationSvc,
		Locker:   locker,
		Audit:    userRepo,
		Metrics:  metrics,
		Logger:   logr.Named("alerts"),
	}, service.AlertEngineConfig{
		WindowDays:   cfg.Alerts.WindowDays,
		MinReviews:   cfg.Alerts.MinReviews,
		LowRatingMax: cfg.Alerts.LowRatingMax,
		MaxReviews:   cfg.AI.MaxReviews,
		Concurrency:  cfg.Alerts.Concurrency,
		LockTTL:      cfg.Alerts.LockTTL,
	})
	scheduler := service.NewAlertScheduler(alertSvc, locker, service.AlertSchedulerConfig{
		Enabled:      cfg.Alerts.SchedulerEnabled,
		Spec:         cfg.Alerts.Cron,
		Debounce:     cfg.Alerts.Debounce,
		QueueWorkers: cfg.Alerts.QueueWorkers,
		QueueBuffer:  cfg.Alerts.QueueBuffer,
	}, logr.Named("scheduler"))
	insightSvc := service.NewInsightService(reviewRepo, alertRepo, access, ai, metrics, cfg.Alerts.WindowDays, cfg.AI.MaxReviews, logr.Named("insights"))
	submissionSvc := service.NewSubmissionService(formRepo, subjectRepo, reviewRepo, scheduler, metrics, logr.Named("submissions"))
	reviewSvc := service.NewReviewService(reviewRepo, access, userRepo, logr.Named("reviews"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start alert scheduler: %w", err)
	}
	defer scheduler.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	routes := handler.Routes{
		Auth:          handler.NewAuthHandler(authSvc),
		Classes:       handler.NewClassHandler(classSvc),
		Subjects:      handler.NewSubjectHandler(subjectSvc),
		Enrollments:   handler.NewEnrollmentHandler(enrollmentSvc),
		Forms:         handler.NewFormHandler(formSvc),
		Feedback:      handler.NewFeedbackHandler(formSvc, submissionSvc),
		Alerts:        handler.NewAlertHandler(alertSvc, insightSvc),
		Reviews:       handler.NewReviewHandler(reviewSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc, hub, logr.Named("realtime")),
		Metrics:       handler.NewMetricsHandler(metrics, readinessChecks(db.PingContext, redisClient)),
		Tokens:        authSvc,
		Audit:         userRepo,
		Logger:        logr,
	}
	routes.Register(r, cfg.APIPrefix)

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func readinessChecks(pingDB func(context.Context) error, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{"postgres": pingDB}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}

// originChecker mirrors the CORS allow-list for websocket upgrades.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/clinic-api/api/swagger"
	"github.com/noah-isme/clinic-api/internal/handler"
	internalmiddleware "github.com/noah-isme/clinic-api/internal/middleware"
	"github.com/noah-isme/clinic-api/internal/repository"
	"github.com/noah-isme/clinic-api/internal/service"
	"github.com/noah-isme/clinic-api/pkg/cache"
	"github.com/noah-isme/clinic-api/pkg/config"
	"github.com/noah-isme/clinic-api/pkg/database"
	"github.com/noah-isme/clinic-api/pkg/export"
	"github.com/noah-isme/clinic-api/pkg/jobs"
	"github.com/noah-isme/clinic-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/clinic-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/clinic-api/pkg/middleware/requestid"
)

const (
	shutdownTimeout      = 15 * time.Second
	permissionCacheTTL   = 10 * time.Minute
	rateLimiterSweepTick = time.Minute
)

// handlers groups the HTTP handlers mounted by the router.
type handlers struct {
	appointments *handler.AppointmentHandler
	availability *handler.AvailabilityHandler
	timeOffs     *handler.TimeOffHandler
	schedules    *handler.ScheduleHandler
	metrics      *handler.MetricsHandler
}

func runServer(migrate bool) error {
	cfg, logr, err := bootstrap()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	logr.Info("connected to database", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.Name))

	if migrate {
		applied, err := database.Migrate(ctx, db, logr)
		if err != nil {
			return err
		}
		logr.Info("migrations complete", zap.Int("applied", applied))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "clinic", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Availability.CacheTTL, logr, cfg.Availability.CacheEnabled && cacheRepo != nil)

	users := repository.NewUserRepository(db)
	schedules := repository.NewWorkScheduleRepository(db)
	timeOffs := repository.NewTimeOffRepository(db)
	appointments := repository.NewAppointmentRepository(db)
	treatments := repository.NewTreatmentRepository(db)
	permissions := repository.NewPermissionRepository(db)

	loc := cfg.Scheduling.Location()
	resolver := service.NewAvailabilityResolver(service.AvailabilityPolicy{
		Location:             loc,
		SlotStep:             cfg.Scheduling.SlotStep,
		PendingTimeOffBlocks: cfg.Scheduling.PendingTimeOffBlocks,
	})
	directory := service.NewDirectoryService(users, logr)
	loader := service.NewSnapshotLoader(schedules, timeOffs, appointments, resolver)
	availabilitySvc := service.NewAvailabilityService(directory, loader, resolver, cacheSvc, cfg.Availability.CacheTTL, metricsSvc, logr)
	treatmentSvc := service.NewTreatmentService(treatments, logr)

	notifications := service.NewNotificationService(service.NewLogNotifier(logr), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, cfg.Notifications.Enabled, logr)
	notifications.Start(ctx)
	defer notifications.Stop()

	appointmentSvc := service.NewAppointmentService(
		appointments,
		users,
		directory,
		loader,
		resolver,
		treatmentSvc,
		db,
		service.AppointmentConfig{
			MinAdvance:           cfg.Scheduling.MinAdvance,
			MaxAdvanceMonths:     cfg.Scheduling.MaxAdvanceMonths,
			MinDurationMinutes:   cfg.Scheduling.MinDurationMinutes,
			MaxDurationMinutes:   cfg.Scheduling.MaxDurationMinutes,
			AllowCancelCompleted: cfg.Scheduling.AllowCancelCompleted,
		},
		validate,
		logr,
	).WithHooks(availabilitySvc, notifications, metricsSvc)

	timeOffSvc := service.NewTimeOffService(timeOffs, users, directory, db, service.TimeOffConfig{
		MaxBackdate: cfg.TimeOff.MaxBackdate,
	}, validate, logr).WithHooks(availabilitySvc, notifications, metricsSvc)

	scheduleSvc := service.NewWorkScheduleService(schedules, directory, availabilitySvc, validate, logr)
	permissionSvc := service.NewPermissionService(permissions, cacheSvc, permissionCacheTTL, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})
	var csvOpts []export.CSVOption
	if cfg.Export.CSVTitleRow {
		csvOpts = append(csvOpts, export.WithTitleRow())
	}
	if cfg.Export.CSVExcelBOM {
		csvOpts = append(csvOpts, export.WithExcelBOM())
	}
	exportSvc := service.NewExportService(directory, appointments, resolver, logr, export.NewCSVExporter(csvOpts...), export.NewPDFExporter())

	scheduler := jobs.NewScheduler(loc, time.Minute, logr)
	if cfg.TimeOff.SweepEnabled {
		err := scheduler.Register("timeoff-expiry", cfg.TimeOff.SweepSchedule, func(ctx context.Context) error {
			declined, err := timeOffSvc.DeclineExpiredPending(ctx)
			if err != nil {
				return err
			}
			if declined > 0 {
				logr.Info("expired time-off requests declined", zap.Int("count", declined))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("register time-off sweep: %w", err)
		}
	}
	scheduler.Start()

	var limiter *internalmiddleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = internalmiddleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go limiter.Run(ctx, rateLimiterSweepTick)
	}

	router := newRouter(cfg, logr, metricsSvc, authSvc, permissionSvc, limiter, handlers{
		appointments: handler.NewAppointmentHandler(appointmentSvc, exportSvc),
		availability: handler.NewAvailabilityHandler(availabilitySvc),
		timeOffs:     handler.NewTimeOffHandler(timeOffSvc),
		schedules:    handler.NewScheduleHandler(scheduleSvc),
		metrics:      handler.NewMetricsHandler(metricsSvc, db),
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
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
	logr.Info("server stopped")
	return nil
}

func newRouter(
	cfg *config.Config,
	logr *zap.Logger,
	metricsSvc *service.MetricsService,
	authSvc *service.AuthService,
	permissionSvc *service.PermissionService,
	limiter *internalmiddleware.RateLimiter,
	h handlers,
) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(authSvc))

	can := func(perm string) gin.HandlerFunc {
		return internalmiddleware.RequirePermission(permissionSvc, perm)
	}

	appointments := api.Group("/appointments")
	appointments.POST("", internalmiddleware.RateLimit(limiter), can(service.PermAppointmentsCreate), h.appointments.Schedule)
	appointments.GET("/:id", can(service.PermAppointmentsRead), h.appointments.Get)
	appointments.DELETE("/:id", can(service.PermAppointmentsCancel), h.appointments.Cancel)
	appointments.POST("/:id/complete", can(service.PermAppointmentsComplete), h.appointments.Complete)
	appointments.GET("/:id/treatments", can(service.PermAppointmentsRead), h.appointments.Treatments)

	doctors := api.Group("/doctors/:email")
	doctors.GET("/appointments", can(service.PermAppointmentsRead), h.appointments.ListByDoctor)
	doctors.GET("/availability", can(service.PermAvailabilityRead), h.availability.Slots)
	doctors.GET("/availability/check", can(service.PermAvailabilityRead), h.availability.Check)
	doctors.GET("/agenda", can(service.PermAppointmentsExport), h.appointments.Agenda)

	api.GET("/patients/:email/appointments", can(service.PermAppointmentsRead), h.appointments.ListByPatient)

	employees := api.Group("/employees/:email")
	employees.GET("/schedule", can(service.PermSchedulesRead), h.schedules.List)
	employees.PUT("/schedule/:day", can(service.PermSchedulesManage), h.schedules.Upsert)
	employees.DELETE("/schedule/:day", can(service.PermSchedulesManage), h.schedules.Delete)
	employees.GET("/time-offs", can(service.PermTimeOffsRead), h.timeOffs.ListByEmployee)

	timeOffs := api.Group("/time-offs")
	timeOffs.POST("", internalmiddleware.RateLimit(limiter), can(service.PermTimeOffsCreate), h.timeOffs.Create)
	timeOffs.GET("", can(service.PermTimeOffsRead), h.timeOffs.List)
	timeOffs.GET("/pending", can(service.PermTimeOffsRead), h.timeOffs.ListPending)
	timeOffs.GET("/active", can(service.PermTimeOffsRead), h.timeOffs.ListActive)
	timeOffs.PUT("/:id", can(service.PermTimeOffsCreate), h.timeOffs.Update)
	timeOffs.PATCH("/:id/status", can(service.PermTimeOffsApprove), h.timeOffs.UpdateStatus)
	timeOffs.DELETE("/:id", can(service.PermTimeOffsCreate), h.timeOffs.Delete)

	return r
}

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

	_ "github.com/studver/matsel-api/api/swagger"
	"github.com/studver/matsel-api/internal/handler"
	"github.com/studver/matsel-api/internal/middleware"
	"github.com/studver/matsel-api/internal/models"
	"github.com/studver/matsel-api/internal/repository"
	"github.com/studver/matsel-api/internal/service"
	"github.com/studver/matsel-api/pkg/cache"
	"github.com/studver/matsel-api/pkg/config"
	"github.com/studver/matsel-api/pkg/database"
	"github.com/studver/matsel-api/pkg/logger"
	corsmiddleware "github.com/studver/matsel-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studver/matsel-api/pkg/middleware/requestid"
)

// @title Matsel API
// @version 1.0.0
// @description Course material selection and approval backend
// @BasePath /api/v1
// @schemes http
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metricsService := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studyRepo := repository.NewStudyRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	mspRepo := repository.NewMSPRepository(db)

	var cacheService *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Cache.OverviewTTL, logr, cfg.Cache.Enabled)
	}

	defaultWindow := models.ReportingWindow{
		Year:   cfg.Reporting.DefaultYear,
		Period: models.Period(cfg.Reporting.DefaultPeriod),
	}

	// Services.
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userService := service.NewUserService(userRepo, validate, logr)
	teacherService := service.NewTeacherService(teacherRepo, validate, logr)
	materialService := service.NewMaterialService(materialRepo, validate, logr)
	studyService := service.NewStudyService(studyRepo, cacheService, cfg.Cache.ProgressTTL, validate, logr)
	courseService := service.NewCourseService(courseRepo, mspRepo, teacherRepo, cacheService, defaultWindow, validate, logr)
	mspService := service.NewMSPService(mspRepo, courseRepo, materialRepo, teacherRepo, metricsService, validate, logr)
	exportService := service.NewExportService(courseRepo, mspRepo, service.ExportConfig{
		LMLGroupPrefix: cfg.Exports.LMLGroupPrefix,
		BooklistTitle:  cfg.Exports.BooklistTitle,
		ArchiveDir:     cfg.Exports.ArchiveDir,
	}, metricsService, logr, nil, nil)

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	teacherHandler := handler.NewTeacherHandler(teacherService)
	materialHandler := handler.NewMaterialHandler(materialService)
	studyHandler := handler.NewStudyHandler(studyService, courseService)
	courseHandler := handler.NewCourseHandler(courseService)
	mspHandler := handler.NewMSPHandler(mspService)
	exportHandler := handler.NewExportHandler(exportService, courseService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authService))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authService))
	{
		msps := protected.Group("/msps")
		msps.GET("", mspHandler.List)
		msps.GET("/:id", mspHandler.Get)
		msps.POST("", middleware.Audit(userRepo, "CREATE", "msp"), mspHandler.Create)
		msps.POST("/:id/lines", middleware.Audit(userRepo, "APPEND_LINE", "msp"), mspHandler.AppendLine)
		msps.PUT("/:id/teachers", middleware.Audit(userRepo, "UPDATE_TEACHERS", "msp"), mspHandler.UpdateTeachers)

		courses := protected.Group("/courses")
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.GET("/:id/studies", courseHandler.ListStudies)
		courses.POST("/:id/checked", middleware.Audit(userRepo, "MARK_CHECKED", "course"), courseHandler.MarkChecked)

		boecie := protected.Group("", middleware.RequireRoles(models.RoleAdmin, models.RoleBoecie))
		boecie.POST("/courses", middleware.Audit(userRepo, "CREATE", "course"), courseHandler.Create)
		boecie.PUT("/courses/:id", middleware.Audit(userRepo, "UPDATE", "course"), courseHandler.Update)
		boecie.POST("/materials", middleware.Audit(userRepo, "CREATE", "material"), materialHandler.Create)
		boecie.PUT("/materials/:id", middleware.Audit(userRepo, "UPDATE", "material"), materialHandler.Update)
		boecie.POST("/teachers", middleware.Audit(userRepo, "CREATE", "teacher"), teacherHandler.Create)
		boecie.PUT("/teachers/:id", middleware.Audit(userRepo, "UPDATE", "teacher"), teacherHandler.Update)
		boecie.GET("/exports/lml", exportHandler.LML)
		boecie.GET("/exports/booklist", exportHandler.Booklist)

		protected.GET("/materials", materialHandler.List)
		protected.GET("/materials/:id", materialHandler.Get)

		protected.GET("/teachers", teacherHandler.List)
		protected.GET("/teachers/:id", teacherHandler.Get)

		protected.GET("/studies", studyHandler.List)
		protected.GET("/studies/progress", studyHandler.Progress)
		protected.GET("/studies/:id", studyHandler.Get)

		admin := protected.Group("", middleware.RequireRoles(models.RoleAdmin))
		admin.POST("/studies", middleware.Audit(userRepo, "CREATE", "study"), studyHandler.Create)
		admin.POST("/courses/open-window", middleware.Audit(userRepo, "OPEN_WINDOW", "course"), courseHandler.OpenNewWindow)
		admin.GET("/users", userHandler.List)
		admin.GET("/users/:id", userHandler.Get)
		admin.POST("/users", middleware.Audit(userRepo, "CREATE", "user"), userHandler.Create)
		admin.PUT("/users/:id", middleware.Audit(userRepo, "UPDATE", "user"), userHandler.Update)
		admin.DELETE("/users/:id", middleware.Audit(userRepo, "DELETE", "user"), userHandler.Delete)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/edacademy/attendance-api/api/swagger"
	"github.com/edacademy/attendance-api/internal/handler"
	"github.com/edacademy/attendance-api/internal/middleware"
	"github.com/edacademy/attendance-api/internal/models"
	"github.com/edacademy/attendance-api/internal/repository"
	"github.com/edacademy/attendance-api/internal/service"
	"github.com/edacademy/attendance-api/pkg/cache"
	"github.com/edacademy/attendance-api/pkg/config"
	"github.com/edacademy/attendance-api/pkg/database"
	"github.com/edacademy/attendance-api/pkg/logger"
	corsmiddleware "github.com/edacademy/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edacademy/attendance-api/pkg/middleware/requestid"
)

// @title EdAcademy Attendance API
// @version 1.0.0
// @description School attendance management API
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Stats.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, stats caching disabled", zap.Error(err))
			redisClient = nil
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, classRepo, sessionRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, userRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, classRepo, userRepo, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, classRepo, subjectRepo, userRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, sessionRepo, userRepo, validate, logr)
	statsSvc := service.NewStatsService(statsRepo, userRepo, attendanceRepo, classRepo, cacheRepo, service.StatsConfig{
		CacheEnabled: cfg.Stats.CacheEnabled && redisClient != nil,
		CacheTTL:     cfg.Stats.CacheTTL,
	}, logr)
	exportSvc := service.NewExportService(classRepo, userRepo, statsSvc, service.ExportConfig{
		Enabled: cfg.Exports.Enabled,
		MaxRows: cfg.Exports.MaxRows,
	}, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	classHandler := handler.NewClassHandler(classSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, metricsSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, metricsSvc)
	statsHandler := handler.NewStatsHandler(statsSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
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
		auth.POST("/register", authHandler.Register)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher), "SELF"), userHandler.Get)
		users.PUT("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Update)
		users.PUT("/:id/class", middleware.RequireRoles(models.RoleAdmin), userHandler.AssignClass)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)
	}

	classes := api.Group("/classes", middleware.JWT(authSvc))
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)
		classes.POST("", middleware.RequireRoles(models.RoleAdmin), classHandler.Create)
		classes.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), classHandler.Update)
		classes.PUT("/:id/teacher", middleware.RequireRoles(models.RoleAdmin), classHandler.AssignTeacher)
		classes.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), classHandler.Delete)
	}

	subjects := api.Group("/subjects", middleware.JWT(authSvc))
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		subjects.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), subjectHandler.Create)
		subjects.PUT("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), subjectHandler.Update)
		subjects.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), subjectHandler.Delete)
	}

	sessions := api.Group("/sessions", middleware.JWT(authSvc))
	{
		sessions.GET("", sessionHandler.List)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), sessionHandler.Create)
		sessions.PUT("/:id", middleware.RequireRoles(models.RoleTeacher), sessionHandler.Update)
		sessions.DELETE("/:id", middleware.RequireRoles(models.RoleTeacher), sessionHandler.Delete)
		sessions.POST("/:id/attendance", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.Mark)
		sessions.GET("/:id/attendance", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.GetSession)
	}

	attendance := api.Group("/attendance", middleware.JWT(authSvc))
	{
		attendance.POST("/session/:sessionId", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.Mark)
		attendance.GET("/session/:sessionId", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.GetSession)
		attendance.PATCH("/:id/justification", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), attendanceHandler.UpdateJustification)
		attendance.GET("/teacher/sessions", middleware.RequireRoles(models.RoleTeacher), attendanceHandler.TeacherSessions)
		attendance.GET("/student/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher), "SELF"), attendanceHandler.StudentHistory)
		attendance.GET("/student/:id/week", middleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher), "SELF"), attendanceHandler.StudentWeekly)
	}

	stats := api.Group("/stats", middleware.JWT(authSvc))
	{
		stats.GET("/student/dashboard", middleware.RequireRoles(models.RoleStudent), statsHandler.StudentDashboard)
		stats.GET("/student/:studentId", statsHandler.Student)
		stats.GET("/class/:classId", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), statsHandler.Class)
		stats.GET("/class/:classId/export", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), statsHandler.ExportClass)
		stats.GET("/teacher/dashboard", middleware.RequireRoles(models.RoleTeacher), statsHandler.TeacherDashboard)
		stats.GET("/global", middleware.RequireRoles(models.RoleAdmin), statsHandler.Global)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

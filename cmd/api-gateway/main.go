package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/mentor-meet-api/api/swagger"
	"github.com/noah-isme/mentor-meet-api/internal/gateway"
	"github.com/noah-isme/mentor-meet-api/internal/handler"
	"github.com/noah-isme/mentor-meet-api/internal/middleware"
	"github.com/noah-isme/mentor-meet-api/internal/models"
	"github.com/noah-isme/mentor-meet-api/internal/repository"
	"github.com/noah-isme/mentor-meet-api/internal/service"
	"github.com/noah-isme/mentor-meet-api/pkg/cache"
	"github.com/noah-isme/mentor-meet-api/pkg/config"
	"github.com/noah-isme/mentor-meet-api/pkg/database"
	"github.com/noah-isme/mentor-meet-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/mentor-meet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mentor-meet-api/pkg/middleware/requestid"
)

// @title Mentor Meet API
// @version 0.1.0
// @description Authorization, account security and meeting lifecycle service
// @BasePath /
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

	userRepo := repository.NewUserRepository(db)
	meetingRepo := repository.NewMeetingRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	security := service.NewAccountSecurity(service.NewBcryptHasher(), service.SecurityConfig{
		MaxAttempts:     cfg.Security.MaxLoginAttempts,
		LockoutDuration: cfg.Security.LockoutDuration,
	}, logr)

	authService := service.NewAuthService(userRepo, security, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userService := service.NewUserService(userRepo, security, nil, logr)
	authzService := service.NewAuthorizationService(userRepo, security, logr)
	metricsService := service.NewMetricsService()
	meetingService := service.NewMeetingService(meetingRepo, cacheRepo, cfg.Reminders.UpcomingCacheTTL, metricsService, userRepo, nil, logr)
	calendarClient := gateway.NewCalendarClient(cfg.Calendar, logr)
	schedulingService := service.NewSchedulingService(authzService, calendarClient, meetingService, userRepo, nil, logr)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	meetingHandler := handler.NewMeetingHandler(schedulingService, meetingService, metricsService, cfg.Reminders.UpcomingLookahead)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	users := api.Group("/users", middleware.JWT(authService))
	{
		users.GET("/status", authHandler.Status)
		users.GET("", middleware.RequirePermission(models.PermissionManageUsers), userHandler.List)
		users.POST("", middleware.RequireAuthorized(authzService, models.PermissionManageUsers), userHandler.Create)
		users.GET("/:id", middleware.RequirePermission(models.PermissionManageUsers), userHandler.Get)
		users.PUT("/:id", middleware.RequireAuthorized(authzService, models.PermissionManageUsers), userHandler.Update)
		users.DELETE("/:id", middleware.RequireAuthorized(authzService, models.PermissionManageUsers), userHandler.Delete)
	}

	meetings := api.Group("/meetings", middleware.JWT(authService))
	{
		meetings.POST("", meetingHandler.Schedule)
		meetings.GET("", meetingHandler.ListMine)
		meetings.GET("/upcoming", meetingHandler.Upcoming)
		meetings.GET("/reminders/due", meetingHandler.DueReminders)
		if cfg.Exports.Enabled {
			meetings.GET("/export", meetingHandler.Export)
		}
		meetings.GET("/:id", meetingHandler.Get)
		meetings.POST("/:id/participants", middleware.RequireAuthorized(authzService, models.PermissionEditMeeting), meetingHandler.AddParticipants)
		meetings.POST("/:id/status", middleware.RequireAuthorized(authzService, models.PermissionEditMeeting), meetingHandler.Transition)
		meetings.POST("/:id/reminders", middleware.RequireAuthorized(authzService, models.PermissionEditMeeting), meetingHandler.AddReminder)
		meetings.POST("/:id/reminders/:index/sent", middleware.RequireAuthorized(authzService, models.PermissionEditMeeting), meetingHandler.MarkReminderSent)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

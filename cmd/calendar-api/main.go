package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/temporade/chronicle-api/api/swagger"
	"github.com/temporade/chronicle-api/internal/handler"
	"github.com/temporade/chronicle-api/internal/middleware"
	"github.com/temporade/chronicle-api/internal/repository"
	"github.com/temporade/chronicle-api/internal/service"
	"github.com/temporade/chronicle-api/pkg/cache"
	"github.com/temporade/chronicle-api/pkg/config"
	"github.com/temporade/chronicle-api/pkg/database"
	"github.com/temporade/chronicle-api/pkg/logger"
	corsmiddleware "github.com/temporade/chronicle-api/pkg/middleware/cors"
	reqidmiddleware "github.com/temporade/chronicle-api/pkg/middleware/requestid"
)

// @title Chronicle API
// @version 0.1.0
// @description Calendar backend: recurrence expansion, interval queries and alarms
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// the query cache is an optimization, not a dependency
		logr.Sugar().Warnw("redis unavailable, occurrence caching disabled", "error", err)
		redisClient = nil
	}

	loc := cfg.Calendar.Location()

	eventRepo := repository.NewEventRepository(db, repository.NewEventCache(), loc, cfg.Calendar.StoreUTC)
	tagRepo := repository.NewTagRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	authService := service.NewAuthService(cfg.Auth.Users, cfg.JWT)

	hooks := []service.Hook{
		service.NewTagHook(tagRepo),
		service.NewHistoryHook(historyRepo),
		service.NewNotificationHook(service.NewLogNotifier(logr)),
	}
	eventService := service.NewEventService(eventRepo, cacheRepo, tagRepo, historyRepo, hooks, logr)

	occurrenceService := service.NewOccurrenceService(eventRepo, cacheRepo, metricsService, loc, cfg.Calendar.OccurrenceCacheTTL, logr)
	alarmService := service.NewAlarmService(eventRepo, occurrenceService, cfg.Calendar.AlarmLookahead, logr)
	exportService := service.NewExportService(occurrenceService)

	authHandler := handler.NewAuthHandler(authService)
	eventHandler := handler.NewEventHandler(eventService)
	occurrenceHandler := handler.NewOccurrenceHandler(occurrenceService, loc)
	alarmHandler := handler.NewAlarmHandler(alarmService)
	exportHandler := handler.NewExportHandler(exportService, loc)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))
	{
		authed.GET("/auth/me", authHandler.Me)

		authed.GET("/events/:uid", eventHandler.GetByUID)

		calendars := authed.Group("/calendars/:calendarId")
		calendars.DELETE("", eventHandler.DeleteCalendar)
		calendars.POST("/events", eventHandler.Create)
		calendars.GET("/events/count", eventHandler.Count)
		calendars.GET("/events/:eventId", eventHandler.Get)
		calendars.PUT("/events/:eventId", eventHandler.Update)
		calendars.DELETE("/events/:eventId", eventHandler.Delete)
		calendars.POST("/events/:eventId/move", eventHandler.Move)
		calendars.GET("/history/:uid", eventHandler.History)
		calendars.GET("/occurrences", occurrenceHandler.List)
		calendars.GET("/alarms", alarmHandler.List)
		if cfg.Export.Enabled {
			calendars.GET("/export", exportHandler.Agenda)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "timezone", cfg.Calendar.Timezone)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/handler"
	"github.com/noah-isme/sma-attendance-api/internal/middleware"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	"github.com/noah-isme/sma-attendance-api/pkg/config"
	"github.com/noah-isme/sma-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-attendance-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-attendance-api/pkg/observability"
)

type routerDeps struct {
	tokens     middleware.TokenValidator
	limiter    middleware.RateCounter
	metrics    *service.MetricsService
	attendance *handler.AttendanceHandler
	statistics *handler.StatisticsHandler
	audit      *handler.AuditHandler
	probes     *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(observability.GinReporter())
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", deps.probes.Health)
	r.GET("/ready", deps.probes.Ready)
	r.GET("/metrics", deps.probes.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	throttle := func(c *gin.Context) { c.Next() }
	if cfg.RateLimit.Enabled && deps.limiter != nil {
		throttle = middleware.RateLimit(deps.limiter, cfg.RateLimit.Requests, cfg.RateLimit.Window, deps.metrics, logr)
	}

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin, models.RoleTeacher)
	admins := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.tokens))

	classes := api.Group("/classes/:classId/attendance", staff)
	classes.POST("", throttle, deps.attendance.Create)
	classes.GET("", deps.attendance.List)
	classes.GET("/:recordId", deps.attendance.Get)
	classes.PUT("/:recordId", throttle, deps.attendance.Update)
	classes.DELETE("/:recordId", throttle, deps.attendance.Delete)

	admin := api.Group("/admin/attendance", admins)
	admin.PATCH("/:recordId/lock", throttle, deps.attendance.Lock)
	admin.GET("/:recordId/audit", deps.audit.List)

	stats := api.Group("/attendance", staff)
	stats.GET("/classes/:classId/statistics", deps.statistics.ClassStatistics)
	stats.GET("/classes/:classId/statistics/export", deps.statistics.Export)
	stats.GET("/students/:studentId", deps.statistics.StudentHistory)

	return r
}

package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/kindrid-api/internal/handler"
	"github.com/noah-isme/kindrid-api/internal/middleware"
	"github.com/noah-isme/kindrid-api/internal/models"
	"github.com/noah-isme/kindrid-api/internal/service"
	"github.com/noah-isme/kindrid-api/pkg/config"
	"github.com/noah-isme/kindrid-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/kindrid-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/kindrid-api/pkg/middleware/requestid"

	_ "github.com/noah-isme/kindrid-api/api/swagger"
)

// RouterDeps lists the handlers mounted on the engine.
type RouterDeps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *service.MetricsService
	Guard   *middleware.Guard

	Photos  *handler.PhotoHandler
	Reports *handler.ReportHandler
	Media   *handler.MediaHandler
	Events  *handler.EventsHandler
	System  *handler.MetricsHandler
	Static  *handler.StaticHandler
}

// NewRouter assembles the gin engine.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Media.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.System.Health)
	r.GET("/health.html", deps.System.HealthPage)
	r.GET("/test", deps.System.Test)
	r.GET("/ready", deps.System.Ready)
	r.GET("/metrics", deps.System.Prometheus)
	r.GET("/media/:token", deps.Media.Serve)
	r.GET("/ws/events", deps.Events.Stream)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := []models.UserRole{models.RoleAdmin, models.RoleTeacher}
	everyone := []models.UserRole{models.RoleAdmin, models.RoleTeacher, models.RoleParent}
	guard := deps.Guard
	route := func(handlers []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, handlers...), h)
	}

	api := r.Group(apiPrefix(cfg))
	api.GET("/photos", route(guard.Allow(everyone...), deps.Photos.List)...)
	api.POST("/photos", route(guard.Allow(staff...), deps.Photos.Upload)...)
	api.GET("/photos/:id", route(guard.Allow(everyone...), deps.Photos.Get)...)
	api.PATCH("/photos/:id", route(guard.Allow(staff...), deps.Photos.Update)...)
	api.DELETE("/photos/:id", route(guard.Allow(staff...), deps.Photos.Delete)...)
	api.POST("/photos/:id/analysis", route(guard.Allow(staff...), deps.Photos.Analyze)...)
	api.POST("/photos/:id/consent", route(guard.Allow(everyone...), deps.Photos.Consent)...)
	api.POST("/photos/:id/publish", route(guard.Allow(staff...), deps.Photos.Publish)...)
	api.POST("/photos/:id/subjects/:subjectId/removal", route(guard.Allow(staff...), deps.Photos.RemoveSubject)...)
	api.GET("/photos/:id/display", route(guard.Allow(everyone...), deps.Photos.Display)...)
	api.GET("/photos/:id/consent-report", route(guard.Allow(staff...), deps.Reports.PhotoConsent)...)
	api.GET("/reports/consent", route(guard.Allow(staff...), deps.Reports.ConsentSummary)...)
	api.GET("/system", route(guard.Allow(models.RoleAdmin), deps.System.System)...)

	r.NoRoute(deps.Static.NoRoute)
	return r
}

func apiPrefix(cfg *config.Config) string {
	prefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	if prefix == "/" {
		return "/api/v1"
	}
	return prefix
}

package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/triggerd/internal/health"
	"github.com/ErlanBelekov/triggerd/internal/transport/http/handler"
	"github.com/ErlanBelekov/triggerd/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, triggerHandler *handler.TriggerHandler, checker *health.Checker, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.NewWithFilters(logger, sloggin.IgnorePath("/healthz", "/readyz")))
	r.Use(middleware.Metrics())

	// Probes are unauthenticated so orchestrators can reach them.
	r.GET("/healthz", gin.WrapH(checker.LivenessHandler()))
	r.GET("/readyz", gin.WrapH(checker.ReadinessHandler()))

	triggers := r.Group("/triggers", middleware.Auth(jwtKey))
	triggers.POST("", triggerHandler.Create)
	triggers.GET("", triggerHandler.List)
	triggers.GET("/:id", triggerHandler.GetByID)
	triggers.GET("/:id/events", triggerHandler.ListEvents)
	triggers.POST("/:id/cancel", triggerHandler.Cancel)
	triggers.DELETE("/:id", triggerHandler.Delete)

	return r
}

package router

import (
	"github.com/gin-gonic/gin"

	"tabflow/internal/config"
	"tabflow/internal/handler"
	"tabflow/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	cfg *config.Config,
	importH *handler.ImportHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(&cfg.Auth))

	uploads := v1.Group("/uploads")
	uploads.POST("/presign", importH.GetUploadURL)

	v1.DELETE("/mappings/:sheetSlug", importH.DeleteSavedMapping)

	sessions := v1.Group("/sessions")
	sessions.POST("", importH.CreateSession)
	sessions.GET("/:id", importH.GetSession)
	sessions.GET("/:id/rows", importH.ListRows)
	sessions.PUT("/:id/mappings", importH.SetFieldMappings)
	sessions.PATCH("/:id/mappings", importH.SetMapping)
	sessions.PATCH("/:id/rows/:rowID", importH.EditCell)
	sessions.DELETE("/:id/rows/:rowID", importH.DeleteRow)
	sessions.POST("/:id/submit", importH.Submit)

	return r
}

package router

import (
	"github.com/gin-gonic/gin"

	"gioland/internal/auth"
	"gioland/internal/handler"
	"gioland/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	authSvc *auth.Service,
	authH *handler.AuthHandler,
	parcelH *handler.ParcelHandler,
	fileH *handler.FileHandler,
	reportH *handler.ReportHandler,
	subscribeH *handler.SubscribeHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	// Public auth routes
	authGroup := v1.Group("/auth")
	authGroup.POST("/login", authH.Login)

	// Protected routes - require valid JWT
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(authSvc))

	protected.GET("/auth/me", authH.Me)

	// Delivery creation and chain search
	protected.POST("/deliveries/:type", parcelH.Create)
	protected.GET("/parcels", parcelH.Search)

	// Overview across all chains
	protected.GET("/overview", parcelH.Overview)
	protected.GET("/overview/export", parcelH.ExportOverview)

	// Single parcel routes
	parcel := protected.Group("/parcel/:name")
	parcel.GET("", parcelH.Get)
	parcel.GET("/chain", parcelH.Chain)
	parcel.POST("/files", fileH.Upload)
	parcel.GET("/files/:filename", fileH.Download)
	parcel.DELETE("/files/:filename", fileH.Delete)
	parcel.POST("/chunk", fileH.Chunk)
	parcel.POST("/finalize_upload", fileH.FinalizeUpload)
	parcel.POST("/finalize", parcelH.Finalize)
	parcel.POST("/merge", parcelH.Merge)
	parcel.POST("/comment", parcelH.Comment)
	parcel.DELETE("", parcelH.Delete)

	// Country reports
	reports := protected.Group("/reports")
	reports.POST("", reportH.Upload)
	reports.GET("", reportH.List)
	reports.GET("/:id", reportH.Get)
	reports.GET("/:id/download", reportH.Download)
	reports.DELETE("/:id", reportH.Delete)

	// Notification subscriptions
	protected.POST("/subscribe", subscribeH.Subscribe)

	return r
}

package handler

import (
	"net/http"

	"pathpatrol/internal/obs"
	"pathpatrol/internal/service"

	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	AuthService      *service.AuthService
	ComplaintService *service.ComplaintService
	Geocoder         Geocoder
	MaxUploadBytes   int64
	// LoginRate and GeocodeRate are requests per second per client IP.
	LoginRate   float64
	GeocodeRate float64
}

// NewRouter wires every HTTP route onto a fresh gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	complaintHandler := NewComplaintHandler(cfg.ComplaintService, cfg.MaxUploadBytes)
	authHandler := NewAuthHandler(cfg.AuthService)
	userHandler := NewUserHandler(cfg.AuthService)

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), LoggingJSON(), Instrument(), Authenticate(cfg.AuthService))
	r.MaxMultipartMemory = 32 << 20

	r.GET("/health", Health)
	r.GET("/metrics", gin.WrapH(obs.Handler()))

	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", RateLimit(orDefault(cfg.LoginRate, 1), 5), authHandler.Login)
		authRoutes.GET("/me", RequireUser(), authHandler.Me)
	}

	r.GET("/tags", complaintHandler.Tags)
	r.GET("/uploads/*handle", complaintHandler.ServeUpload)

	complaints := r.Group("/complaints")
	{
		complaints.POST("", complaintHandler.Submit)
		complaints.GET("", complaintHandler.List)
		complaints.POST("/gps", complaintHandler.ExtractGPS)
		complaints.GET("/:id", complaintHandler.Get)

		authed := complaints.Group("", RequireUser())
		authed.GET("/mine", complaintHandler.Mine)
		authed.GET("/assigned", complaintHandler.Assigned)
		authed.GET("/stats", complaintHandler.Statistics)
		authed.GET("/export", complaintHandler.Export)
		authed.POST("/backfill-coordinates", complaintHandler.BackfillCoordinates)
		authed.POST("/bulk/status", complaintHandler.BulkStatus)
		authed.POST("/bulk/assign", complaintHandler.BulkAssign)
		authed.PATCH("/:id/status", complaintHandler.UpdateStatus)
		authed.PATCH("/:id/assign", complaintHandler.Assign)
		authed.DELETE("/:id", complaintHandler.Delete)
	}

	if cfg.Geocoder != nil {
		geocodeHandler := NewGeocodeHandler(cfg.Geocoder)
		geo := r.Group("/geocode", RateLimit(orDefault(cfg.GeocodeRate, 2), 5))
		geo.GET("/search", geocodeHandler.Search)
		geo.GET("/reverse", geocodeHandler.Reverse)
	}

	users := r.Group("/users", RequireUser())
	{
		users.GET("", userHandler.List)
		users.GET("/stats", userHandler.Stats)
		users.PUT("/me/password", authHandler.UpdatePassword)
		users.PATCH("/:id/role", userHandler.UpdateRole)
		users.POST("/:id/activate", userHandler.Activate)
		users.POST("/:id/deactivate", userHandler.Deactivate)
	}

	return r
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pathpatrol",
	})
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

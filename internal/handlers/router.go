package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/campuscycle/booking-backend/internal/config"
	"github.com/campuscycle/booking-backend/internal/middleware"
	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/services"
	"github.com/campuscycle/booking-backend/pkg/jwt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Pinger is satisfied by store.Store
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps bundles everything the HTTP surface needs
type RouterDeps struct {
	JWT        *jwt.Service
	Logger     *logrus.Logger
	CORS       config.CORSConfig
	RequestLog bool
	Health     Pinger
	Version    string

	Bookings  *BookingHandler
	Guard     *GuardHandler
	Cycles    *CycleHandler
	Locations *LocationHandler
	Penalty   *PenaltyHandler
	Cron      *services.CronService
	Audit     *services.AuditService
}

// NewRouter builds the gin engine with every /api/v1 route
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if d.RequestLog {
		router.Use(middleware.RequestLogger(d.Logger))
	}

	if len(d.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORS.AllowedOrigins,
			AllowMethods:     d.CORS.AllowedMethods,
			AllowHeaders:     d.CORS.AllowedHeaders,
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", healthCheckHandler(d.Health, d.Version))

	auth := middleware.AuthMiddleware(d.JWT, d.Logger)
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	staffOnly := middleware.RequireRole(models.RoleGuard, models.RoleAdmin)

	v1 := router.Group("/api/v1")
	{
		bookings := v1.Group("/bookings", auth)
		{
			bookings.POST("", d.Bookings.CreateBooking)
			bookings.GET("", d.Bookings.ListBookings)
			bookings.GET("/active", d.Bookings.ActiveBookings)
			bookings.GET("/returned", staffOnly, d.Bookings.ReturnedBookings)
			bookings.GET("/stuck", adminOnly, d.Bookings.StuckBookings)
			bookings.GET("/admin", adminOnly, d.Bookings.AdminBookings)
			bookings.GET("/:id", d.Bookings.GetBooking)
			bookings.PATCH("/:id/cancel", d.Bookings.CancelBooking)
			bookings.PATCH("/:id/end", d.Bookings.EndBooking)
		}

		guard := v1.Group("/guard", auth, staffOnly)
		{
			guard.PATCH("/mark-received/:bookingId", d.Guard.MarkReceived)
			guard.GET("/returned-bookings", d.Guard.ReturnedBookings)
		}

		cycles := v1.Group("/cycles", auth)
		{
			cycles.GET("", d.Cycles.ListCycles)
			cycles.GET("/available", d.Cycles.ListAvailable)
			cycles.POST("", adminOnly, d.Cycles.AddCycle)
			cycles.PATCH("/:id/status", adminOnly, d.Cycles.UpdateStatus)
			cycles.DELETE("/:id", adminOnly, d.Cycles.RetireCycle)
		}

		locations := v1.Group("/locations")
		{
			locations.GET("", d.Locations.ListLocations)
			locations.POST("/lookup", d.Locations.LookupLocation)
			locations.GET("/:id", auth, d.Locations.GetLocation)
			locations.POST("", auth, adminOnly, d.Locations.CreateLocation)
			locations.PATCH("", auth, adminOnly, d.Locations.UpdateLocation)
			locations.DELETE("/:id", auth, adminOnly, d.Locations.DeleteLocation)
		}

		v1.GET("/penalty/:userId", auth, d.Penalty.GetPenalty)
		v1.PATCH("/penalty/:userId", auth, d.Penalty.SettlePenalty)
		v1.GET("/transactions", auth, d.Penalty.ListTransactions)
		v1.GET("/transactions/:id", auth, d.Penalty.GetTransaction)
		v1.GET("/users/me", auth, d.Penalty.Me)

		admin := v1.Group("/admin", auth, adminOnly)
		admin.GET("/audit/:userId", recentAuditEvents(d.Audit, d.Logger))
		if d.Cron != nil {
			admin.GET("/cron/status", func(c *gin.Context) {
				c.JSON(http.StatusOK, d.Cron.GetJobStatus())
			})
			admin.POST("/cron/stuck-scan", func(c *gin.Context) {
				count, err := d.Cron.RunStuckScanNow(c.Request.Context())
				if err != nil {
					respondError(c, d.Logger, err)
					return
				}
				c.JSON(http.StatusOK, gin.H{"message": "Stuck booking scan complete", "stuck": count})
			})
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "NOT_FOUND",
			"message": "Route not found",
		})
	})

	return router
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(store Pinger, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if store != nil {
			if err := store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "unhealthy",
					"database": "unhealthy",
					"error":    err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().UTC(),
		})
	}
}

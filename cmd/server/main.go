package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuscycle/booking-backend/internal/config"
	"github.com/campuscycle/booking-backend/internal/database"
	"github.com/campuscycle/booking-backend/internal/handlers"
	"github.com/campuscycle/booking-backend/internal/services"
	"github.com/campuscycle/booking-backend/internal/store"
	"github.com/campuscycle/booking-backend/internal/store/memory"
	"github.com/campuscycle/booking-backend/pkg/jwt"
	"github.com/campuscycle/booking-backend/pkg/maps"
	"github.com/campuscycle/booking-backend/pkg/mq"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Campus Cycle Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Storage backend
	var (
		st      store.Store
		auditDB database.DB
	)
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		st = memory.New()
	default:
		logger.Info("Connecting to database...")
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		logger.Info("Database connection established")

		if cfg.Database.AutoMigrate {
			applied, err := database.Migrate(context.Background(), db.DB)
			if err != nil {
				logger.Fatalf("Failed to apply migrations: %v", err)
			}
			logger.WithField("applied", applied).Info("Migrations up to date")
		}

		st = database.NewStore(db.DB)
		if cfg.Security.EnableAuditLog {
			auditDB = db
		}
	}

	// Route estimation
	var router services.RouteEstimator = maps.StraightLineEstimator{}
	if cfg.Maps.APIKey != "" {
		router = maps.NewDistanceMatrixClient(maps.DistanceMatrixConfig{
			BaseURL: cfg.Maps.BaseURL,
			APIKey:  cfg.Maps.APIKey,
			Mode:    cfg.Maps.Mode,
			Timeout: cfg.Maps.Timeout,
		})
		logger.WithField("mode", cfg.Maps.Mode).Info("Distance Matrix routing enabled")
	} else {
		logger.Warn("GOOGLE_MAPS_API_KEY not set, estimating routes along the straight line")
	}

	// Lifecycle events
	var events services.EventPublisher = services.NoopPublisher{}
	if cfg.Events.URL != "" {
		publisher, err := mq.NewPublisher(cfg.Events.URL, cfg.Events.Exchange)
		if err != nil {
			logger.Fatalf("Failed to connect to event broker: %v", err)
		}
		defer publisher.Close()
		events = publisher
		logger.WithField("exchange", cfg.Events.Exchange).Info("Lifecycle event publishing enabled")
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	auditService := services.NewAuditService(auditDB)
	locationService := services.NewLocationService(st, cfg.Booking.NearbyRadius, logger)
	bookingService := services.NewBookingService(
		st,
		locationService,
		router,
		services.NewPenaltyCalculator(cfg.Booking.PenaltyPerMinute),
		events,
		services.BookingConfig{
			RoundTripBuffer: cfg.Booking.RoundTripBuffer,
			OneWayBuffer:    cfg.Booking.OneWayBuffer,
			StuckThreshold:  cfg.Booking.StuckThreshold,
		},
		logger,
	)
	verificationService := services.NewVerificationService(st, events, logger)
	settlementService := services.NewSettlementService(st, events, cfg.Booking.Currency, logger)
	inventoryService := services.NewInventoryService(st, locationService, logger)

	// Initialize and start cron service
	cronService := services.NewCronService(bookingService, events, cfg.Booking.StuckScanSchedule, cfg.Booking.StuckThreshold, logger)
	cronService.EnableAuditCleanup(auditService, cfg.Security.AuditRetention)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("✓ Cron service started - stuck booking scan enabled")

	// Setup router
	engine := handlers.NewRouter(handlers.RouterDeps{
		JWT:        jwtService,
		Logger:     logger,
		CORS:       cfg.CORS,
		RequestLog: cfg.Security.EnableRequestLog,
		Health:     st,
		Version:    version,
		Bookings:   handlers.NewBookingHandler(bookingService, auditService, logger),
		Guard:      handlers.NewGuardHandler(verificationService, bookingService, auditService, logger),
		Cycles:     handlers.NewCycleHandler(inventoryService, auditService, logger),
		Locations:  handlers.NewLocationHandler(locationService, auditService, logger),
		Penalty:    handlers.NewPenaltyHandler(settlementService, auditService, logger),
		Cron:       cronService,
		Audit:      auditService,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	logger.Info("Stopping cron service...")
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

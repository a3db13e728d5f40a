package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage backend and database configuration
	Store    StoreConfig
	Database DatabaseConfig

	// JWT configuration (tokens are issued by the campus identity provider)
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Booking policy
	Booking BookingConfig

	// Routing provider
	Maps MapsConfig

	// Lifecycle event publishing
	Events EventsConfig

	// Security configuration
	Security SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string // "postgres" or "memory"
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds the lateness and triage policy
type BookingConfig struct {
	PenaltyPerMinute  int64 // minor currency units
	Currency          string
	RoundTripBuffer   time.Duration
	OneWayBuffer      time.Duration
	StuckThreshold    time.Duration
	StuckScanSchedule string // cron spec with seconds
	NearbyRadius      float64
}

// MapsConfig holds Distance Matrix settings
type MapsConfig struct {
	APIKey  string
	BaseURL string
	Mode    string
	Timeout time.Duration
}

// EventsConfig holds the AMQP publisher settings. An empty URL disables publishing.
type EventsConfig struct {
	URL      string
	Exchange string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog bool
	EnableAuditLog   bool
	AuditRetention   time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "postgres"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			AutoMigrate:        getEnvAsBool("DATABASE_AUTO_MIGRATE", false),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Booking: BookingConfig{
			PenaltyPerMinute:  int64(getEnvAsInt("PENALTY_PER_MINUTE", 200)),
			Currency:          getEnv("CURRENCY", "inr"),
			RoundTripBuffer:   time.Duration(getEnvAsInt("ROUND_TRIP_BUFFER_MINUTES", 10)) * time.Minute,
			OneWayBuffer:      time.Duration(getEnvAsInt("ONE_WAY_BUFFER_MINUTES", 5)) * time.Minute,
			StuckThreshold:    time.Duration(getEnvAsInt("STUCK_THRESHOLD_MINUTES", 30)) * time.Minute,
			StuckScanSchedule: getEnv("STUCK_SCAN_SCHEDULE", "0 */5 * * * *"),
			NearbyRadius:      float64(getEnvAsInt("NEARBY_RADIUS_METERS", 50)),
		},
		Maps: MapsConfig{
			APIKey:  getEnv("GOOGLE_MAPS_API_KEY", ""),
			BaseURL: getEnv("GOOGLE_MAPS_BASE_URL", "https://maps.googleapis.com/maps/api/distancematrix/json"),
			Mode:    getEnv("GOOGLE_MAPS_MODE", "bicycling"),
			Timeout: time.Duration(getEnvAsInt("GOOGLE_MAPS_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Events: EventsConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "cycle.bookings"),
		},
		Security: SecurityConfig{
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
			AuditRetention:   time.Duration(getEnvAsInt("AUDIT_RETENTION_DAYS", 90)) * 24 * time.Hour,
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
		if c.Server.Environment == "production" {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s (must be 'postgres' or 'memory')", c.Store.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.PenaltyPerMinute <= 0 {
		return fmt.Errorf("PENALTY_PER_MINUTE must be positive")
	}
	if c.Booking.StuckThreshold <= 0 {
		return fmt.Errorf("STUCK_THRESHOLD_MINUTES must be positive")
	}

	// A production deployment without a routing key cannot create bookings
	if c.Server.Environment == "production" && c.Maps.APIKey == "" {
		return fmt.Errorf("GOOGLE_MAPS_API_KEY is required in production")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

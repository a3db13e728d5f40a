package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/campuscycle/booking-backend/internal/config"
	"github.com/campuscycle/booking-backend/internal/database"
	"github.com/joho/godotenv"
)

func main() {
	var dbURLFlag string
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	applied, err := database.Migrate(ctx, db.DB)
	if err != nil {
		log.Fatalf("migration failed after applying %v: %v", applied, err)
	}
	if len(applied) == 0 {
		fmt.Println("Schema is up to date.")
		return
	}
	for _, name := range applied {
		fmt.Printf("  applied %s\n", name)
	}
	fmt.Printf("Applied %d migration(s).\n", len(applied))
}

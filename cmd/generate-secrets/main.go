package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/campuscycle/booking-backend/internal/utils"
	"github.com/campuscycle/booking-backend/pkg/jwt"
	"github.com/google/uuid"
)

func main() {
	var (
		secret   string
		roles    string
		email    string
		name     string
		validFor time.Duration
		inspect  string
	)
	flag.StringVar(&secret, "secret", "", "sign a development token with this JWT_SECRET instead of generating one")
	flag.StringVar(&roles, "roles", "student", "comma separated roles for the development token")
	flag.StringVar(&email, "email", "dev@campus.local", "email claim for the development token")
	flag.StringVar(&name, "name", "Dev User", "full name claim for the development token")
	flag.DurationVar(&validFor, "ttl", 24*time.Hour, "development token lifetime")
	flag.StringVar(&inspect, "inspect", "", "print the claims of an existing token and exit")
	flag.Parse()

	if inspect != "" {
		inspectToken(jwt.NewService(secret, validFor), inspect)
		return
	}

	fmt.Println("===========================================")
	fmt.Println("Secret Generator for Campus Cycle")
	fmt.Println("===========================================")
	fmt.Println()

	if secret == "" {
		generated, err := utils.GenerateJWTSecret()
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		secret = generated

		fmt.Println("✅ Secret generated successfully!")
		fmt.Println()
		fmt.Println("Add this to your .env file:")
		fmt.Println()
		fmt.Printf("JWT_SECRET=%s\n", secret)
		fmt.Println()
	}

	// Tokens are normally issued by the campus identity provider. This one is
	// for local testing against the same secret.
	userID := uuid.New()
	service := jwt.NewService(secret, validFor)
	token, err := service.GenerateAccessToken(userID, email, name, strings.Split(roles, ","))
	if err != nil {
		log.Fatalf("Failed to sign development token: %v", err)
	}
	expiry, err := service.GetTokenExpiry(token)
	if err != nil {
		log.Fatalf("Failed to read token expiry: %v", err)
	}
	fmt.Printf("Development token (user %s, roles %s, expires %s):\n\n", userID, roles, expiry.Format(time.RFC3339))
	fmt.Println(token)
	fmt.Println()
	fmt.Println("⚠️  IMPORTANT: Keep secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}

// inspectToken decodes without checking the signature, so it also works on
// identity provider tokens signed with a key we do not hold.
func inspectToken(service *jwt.Service, token string) {
	claims, err := service.ExtractClaims(token)
	if err != nil {
		log.Fatalf("Failed to decode token: %v", err)
	}
	fmt.Printf("user_id:    %s\n", claims.UserID)
	fmt.Printf("email:      %s\n", claims.Email)
	fmt.Printf("full_name:  %s\n", claims.FullName)
	fmt.Printf("roles:      %s\n", strings.Join(claims.Roles, ","))
	fmt.Printf("token_type: %s\n", claims.TokenType)

	expiry, err := service.GetTokenExpiry(token)
	if err != nil {
		fmt.Println("expires:    never")
		return
	}
	state := "valid"
	if time.Now().After(expiry) {
		state = "expired"
	}
	fmt.Printf("expires:    %s (%s)\n", expiry.Format(time.RFC3339), state)
}

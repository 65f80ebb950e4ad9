package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"authservice/internal/database"
	"authservice/internal/repository"
)

// Attempt rows are kept for 90 days for security review, then purged.
const attemptRetention = 90 * 24 * time.Hour

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := database.Connect(databaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()

	refreshRepo := repository.NewRefreshTokenRepository(db)
	resetRepo := repository.NewResetTokenRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	refreshPurged, err := refreshRepo.DeleteExpired(ctx, now)
	if err != nil {
		log.Fatalf("cleanup auth_refresh_tokens failed: %v", err)
	}

	resetPurged, err := resetRepo.DeleteExpired(ctx, now)
	if err != nil {
		log.Fatalf("cleanup auth_password_reset_tokens failed: %v", err)
	}

	attemptsPurged, err := attemptRepo.DeleteOlderThan(ctx, now.Add(-attemptRetention))
	if err != nil {
		log.Fatalf("cleanup auth_login_attempts failed: %v", err)
	}

	sessionsPurged, err := sessionRepo.DeleteExpired(ctx, now)
	if err != nil {
		log.Fatalf("cleanup user_sessions failed: %v", err)
	}

	log.Printf("auth cleanup completed: refresh_tokens=%d reset_tokens=%d login_attempts=%d sessions=%d",
		refreshPurged, resetPurged, attemptsPurged, sessionsPurged)
}

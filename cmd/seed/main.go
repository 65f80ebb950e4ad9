package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"authservice/internal/config"
	"authservice/internal/database"
	"authservice/internal/pkg/password"
	"authservice/internal/repository"

	"authservice/internal/domain"
)

// Seeds the first superuser account from FIRST_SUPERUSER /
// FIRST_SUPERUSER_PASSWORD. Safe to re-run: does nothing when the email
// already exists.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	email := os.Getenv("FIRST_SUPERUSER")
	pass := os.Getenv("FIRST_SUPERUSER_PASSWORD")
	if email == "" || pass == "" {
		log.Fatal("FIRST_SUPERUSER and FIRST_SUPERUSER_PASSWORD are required")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is empty")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)

	exists, err := users.ExistsByEmail(ctx, email)
	if err != nil {
		log.Fatal(err)
	}
	if exists {
		log.Printf("superuser %s already exists, nothing to do", email)
		return
	}

	hasher := password.New(cfg.HashAlgorithm, cfg.BcryptCost, password.DefaultArgon2Params)
	hashed, err := hasher.Hash(pass)
	if err != nil {
		log.Fatal(err)
	}

	user := &domain.User{
		Email:          email,
		HashedPassword: hashed,
		FullName:       "Admin",
		IsActive:       true,
		IsSuperuser:    true,
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatal(err)
	}

	log.Printf("superuser created id=%s email=%s", user.ID, user.Email)
}

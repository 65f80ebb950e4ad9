package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"authservice/internal/config"
	"authservice/internal/database"
	"authservice/internal/middleware"
	"authservice/internal/modules/auth"
	"authservice/internal/pkg/password"
	"authservice/internal/repository"

	jwtsvc "authservice/internal/pkg/jwt"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is empty")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if os.Getenv("MIGRATE_ON_START") == "true" {
		if err := database.Migrate(db); err != nil {
			log.Fatal(err)
		}
	}

	userRepo := repository.NewUserRepository(db)
	refreshRepo := repository.NewRefreshTokenRepository(db)
	resetRepo := repository.NewResetTokenRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	codec := jwtsvc.New(cfg.SecretKey)
	hasher := password.New(cfg.HashAlgorithm, cfg.BcryptCost, password.DefaultArgon2Params)
	mailer := auth.NewDevConsoleMailer(cfg.EmailEnabled)

	authService := auth.NewService(
		userRepo,
		refreshRepo,
		resetRepo,
		attemptRepo,
		sessionRepo,
		codec,
		hasher,
		mailer,
		auth.Limits{
			AccessTokenTTL:      cfg.AccessTokenTTL,
			RefreshTokenTTL:     cfg.RefreshTokenTTL,
			ResetTokenTTL:       cfg.ResetTokenTTL,
			ThrottleWindow:      cfg.ThrottleWindow,
			MaxFailedAttempts:   cfg.MaxFailedAttempts,
			IPMaxFailedAttempts: cfg.IPMaxFailedAttempts,
		},
	)
	authHandler := auth.NewHandler(authService)

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorLogger())

	v1 := r.Group("/api/v1")
	{
		authHandler.RegisterPublicRoutes(v1)

		protected := v1.Group("/")
		protected.Use(middleware.RequireAuth(codec))
		{
			authHandler.RegisterProtectedRoutes(protected)
		}
	}

	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}

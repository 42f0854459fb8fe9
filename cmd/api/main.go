package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Taiga-ESSI/taiga-auth/internal/config"
	"github.com/Taiga-ESSI/taiga-auth/internal/db"
	apihttp "github.com/Taiga-ESSI/taiga-auth/internal/http"
	"github.com/Taiga-ESSI/taiga-auth/internal/repository"
	"github.com/Taiga-ESSI/taiga-auth/internal/service"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	googleActive := cfg.GoogleAuthActive()
	googleConfigOK := true
	if err := cfg.ValidateGoogleAuth(); err != nil {
		// Se sigue sirviendo: el dispatcher rechaza cada login federado
		// con configuration_error hasta que se corrija el despliegue.
		googleConfigOK = false
		logger.Error("google auth misconfigured, federated logins will fail closed", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	userRepo := repository.NewPgUserRepository(pool)
	invitationRepo := repository.NewPgInvitationRepository(pool)

	var tokenStore service.RefreshTokenStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	policy := service.NewDomainPolicy(cfg.GoogleAllowedDomains)
	verifier := service.NewGoogleTokenVerifier(ctx, cfg.GoogleClientIDs)
	provisioner := service.NewProvisioningService(logger, userRepo, policy, cfg.GoogleAutoCreate)
	invitations := service.NewProjectInvitationBridge(logger, invitationRepo)

	authSvc := service.NewAuthService(logger, userRepo, verifier, provisioner, invitations, jwtSvc, service.AuthConfig{
		GoogleEnabled:  googleActive,
		GoogleConfigOK: googleConfigOK,
	})

	authHandler := apihttp.NewAuthHandler(logger, authSvc, jwtSvc)
	router := apihttp.NewRouter(logger, authHandler, jwtSvc)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.Bool("google_auth", googleActive),
	)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

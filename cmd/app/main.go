package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"referral_rewards/internal/api"
	"referral_rewards/internal/middleware"
	"referral_rewards/internal/repository"
	"referral_rewards/internal/service"
	"referral_rewards/pkg/auth"
	"referral_rewards/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	generateRateLimit  = 12
	generateRateWindow = 15 * time.Minute
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.Initialize(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	repo, err := repository.New(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	accountService := service.NewAccountService(repo)
	referralService := service.NewReferralService(repo)
	balanceService := service.NewBalanceService(repo)

	jwtAuth := auth.NewJWTAuth(cfg.Auth.JWTSecret)
	authz := middleware.NewAuthorization(accountService)

	var limiter *middleware.RateLimiter
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		limiter = middleware.NewRateLimiter(client, generateRateLimit, generateRateWindow)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
	}
	config.AllowHeaders = []string{"*"}
	config.AllowCredentials = true
	config.MaxAge = 12 * time.Hour

	router.Use(cors.New(config))

	a := router.Group("/api/v1")
	api.NewAccountRoutes(a, accountService, jwtAuth, authz)
	api.NewReferralRoutes(a, referralService, jwtAuth, authz, limiter)
	api.NewBalanceRoutes(a, balanceService, jwtAuth, authz)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	zapLogger.Info("Starting server", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		zapLogger.Fatal("Failed to start server", zap.Error(err))
	}
}

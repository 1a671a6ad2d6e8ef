package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bookshelf/internal/app"
	"bookshelf/internal/config"
	"bookshelf/internal/mail"
	"bookshelf/internal/ratelimit"
	"bookshelf/internal/server"
	"bookshelf/internal/util"
	"bookshelf/pkg/authtoken"
	"bookshelf/pkg/cache"
	"bookshelf/pkg/session"
	"bookshelf/pkg/storage"
	"bookshelf/pkg/store"
)

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	accessTTL, err := config.ParseDuration("accessTTL", cfg.AccessTTL, 15*time.Minute)
	if err != nil {
		log.Fatalf("%v", err)
	}
	refreshTTL, err := config.ParseDuration("refreshTTL", cfg.RefreshTTL, 7*24*time.Hour)
	if err != nil {
		log.Fatalf("%v", err)
	}
	rateWindow, err := config.ParseDuration("authRateLimitWindow", cfg.AuthRateLimitWindow, cache.RateLimitTTL)
	if err != nil {
		log.Fatalf("%v", err)
	}
	sweepInterval, err := config.ParseDuration("tokenSweepInterval", cfg.TokenSweepInterval, time.Hour)
	if err != nil {
		log.Fatalf("%v", err)
	}

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	// The raw Redis cache returns errors; the services get the degraded
	// wrapper so a cache outage reads as a miss, not a failure.
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	if err := redisCache.Ping(); err != nil {
		logger.Warn("redis unreachable at startup, serving degraded", "error", err)
	}
	appCache := cache.DegradeToMiss(redisCache)

	var sender mail.Sender
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
		logger.Info("mail: smtp sender", "host", cfg.SMTPHost)
	} else {
		sender = mail.NewLogSender(logger)
		logger.Info("mail: log sender (no smtp host configured)")
	}

	var objects storage.ObjectStore
	switch cfg.Storage {
	case "minio":
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey,
			cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioPublicURL, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init minio storage: %v", err)
		}
	case "local":
		objects, err = storage.NewFileStore(cfg.LocalUploadDir, cfg.PublicBaseURL)
		if err != nil {
			log.Fatalf("failed to init local storage: %v", err)
		}
	}

	appCore := app.New(app.Options{
		Store:       st,
		Cache:       appCache,
		Sessions:    session.NewManager(appCache),
		Tokens:      authtoken.NewManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, accessTTL, refreshTTL, appCache),
		Mail:        sender,
		Objects:     objects,
		FrontendURL: cfg.FrontendURL,
		Logger:      logger,
	})

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.AuthRateLimitPerWindow > 0 {
		limiter, err = ratelimit.NewFixedWindowLimiter(appCache, cfg.AuthRateLimitPerWindow, rateWindow)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		App:         appCore,
		AuthLimiter: limiter,
		CORSOrigin:  cfg.CORSOrigin,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go appCore.RunTokenSweeper(ctx, sweepInterval)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/showrunner/internal/auth"
	"github.com/makeasinger/showrunner/internal/client"
	"github.com/makeasinger/showrunner/internal/config"
	"github.com/makeasinger/showrunner/internal/handler"
	"github.com/makeasinger/showrunner/internal/middleware"
	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/server"
	"github.com/makeasinger/showrunner/internal/service"
	"github.com/makeasinger/showrunner/internal/store"
	ws "github.com/makeasinger/showrunner/internal/websocket"
	"github.com/makeasinger/showrunner/internal/worker"
)

// @title          Showrunner API
// @version        1.0
// @description    Generates a musical: concept, narrative, cover art and a set of songs.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Server))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Warn("redis not available", "addr", cfg.Redis.Addr, "error", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// External clients
	textClient := client.NewTextClient(&cfg.Groq)
	sunoClient := client.NewSunoClient(&cfg.Suno)

	// Covers live in R2 when configured; otherwise provider URLs are kept as-is
	var assets client.AssetStore
	var r2 *client.R2Store
	if cfg.R2.AccessKeyID != "" {
		r2, err = client.NewR2Store(&cfg.R2)
		if err != nil {
			slog.Warn("R2 store not initialized", "error", err)
			r2 = nil
		} else {
			assets = r2
		}
	} else {
		slog.Info("R2 storage not configured")
	}
	imageClient := client.NewImageClient(&cfg.Image, assets)

	// Zitadel JWKS verifier is optional; the shared secret remains as fallback
	var verifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(ctx, &cfg.Zitadel)
		if err != nil {
			slog.Warn("JWKS verifier not initialized", "issuer", cfg.Zitadel.Issuer, "error", err)
		} else {
			verifier = jwksVerifier
		}
	}
	authenticator := auth.NewAuthenticator(verifier, cfg.JWT.Secret)

	if cfg.Callback.Secret == "" {
		slog.Warn("callback secret not configured, provider callbacks will be rejected")
	}

	// Services
	opts := service.OptionsFromConfig(cfg)
	finalizer := service.NewFinalizer(st, hub, opts)
	trackService := service.NewTrackService(st, textClient, sunoClient, asynqClient, finalizer, hub, opts)
	showService := service.NewShowService(st, textClient, imageClient, trackService, hub, opts)
	callbackService := service.NewCallbackService(st, finalizer, validate, hub, opts)
	batchService := service.NewBatchService(st, asynqClient, opts)

	handlers := server.Handlers{
		Auth:      handler.NewAuthHandler(authenticator),
		Show:      handler.NewShowHandler(showService, validate),
		Track:     handler.NewTrackHandler(trackService, batchService, validate),
		Callback:  handler.NewCallbackHandler(callbackService),
		WebSocket: handler.NewWebSocketHandler(hub),
	}

	var apiAuth fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind the gateway: ForwardAuth already ran, read X-User-* headers
		slog.Info("gateway mode enabled, using header-based auth")
		apiAuth = middleware.GatewayAuth()
	} else {
		apiAuth = middleware.Authenticate(authenticator)
	}

	app := server.New(handlers, server.Options{
		APIAuth:       apiAuth,
		RateLimiter:   middleware.NewRateLimiter(redisClient),
		ShowsPerHour:  cfg.RateLimit.ShowsPerHour,
		TracksPerHour: cfg.RateLimit.TracksPerHour,
		AccessLog:     true,
		DebugLog:      strings.EqualFold(cfg.Server.LogLevel, "debug"),
		Health: func() fiber.Map {
			return fiber.Map{
				"store":    st.Ping(ctx) == nil,
				"text":     textClient.IsConfigured(),
				"music":    sunoClient.IsConfigured(),
				"image":    imageClient.IsConfigured(),
				"r2":       r2 != nil && r2.Ping(ctx) == nil,
				"auth":     verifier != nil || cfg.JWT.Secret != "",
				"callback": cfg.Callback.BaseURL != "" && cfg.Callback.Secret != "",
			}
		},
	})

	workers := newWorkerServer(cfg, redisOpt)
	mux := asynq.NewServeMux()
	mux.HandleFunc(model.TaskTypeTrackGenerate, worker.NewTrackWorker(trackService).ProcessTask)
	mux.HandleFunc(model.TaskTypeTrackPoll, worker.NewPollWorker(sunoClient, callbackService, opts.PollInterval, opts.PollMaxWait).ProcessTask)
	go func() {
		if err := workers.Run(mux); err != nil {
			slog.Error("asynq worker error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("shutting down server")
		stop()
		workers.Shutdown()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("server starting", "addr", addr, "env", cfg.Server.Env)
	if err := app.Listen(addr); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.ServerConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Env, "production") {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 6,
		Queues: map[string]int{
			service.QueueTracks: 1,
		},
		LogLevel: asynqLogLevel,
	})
}

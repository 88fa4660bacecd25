package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/config"
	"github.com/AnshRaj112/learnhub-chat/internal/database"
	"github.com/AnshRaj112/learnhub-chat/internal/handlers"
	"github.com/AnshRaj112/learnhub-chat/internal/middleware"
	"github.com/AnshRaj112/learnhub-chat/internal/routes"
	"github.com/AnshRaj112/learnhub-chat/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := database.ConnectRedis(ctx, cfg.RedisURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer database.DisconnectRedis(rdb)

	creds := services.NewCredentialAccessor(services.NewRedisTokenStore(rdb, cfg.UserID), nil, logger)
	if cfg.BearerToken != "" {
		if _, err := creds.Token(); err != nil {
			if err := creds.Set(ctx, cfg.BearerToken); err != nil {
				logger.Warn().Err(err).Msg("failed to seed credential from BEARER_TOKEN")
			}
		}
	}

	api := backend.NewClient(cfg.BackendURL, creds, cfg.RequestTimeout, logger)

	var uploader services.AttachmentUploader = api
	if cfg.UploadTarget == "cloudinary" {
		cld, err := services.NewCloudinaryUploader(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize Cloudinary")
		}
		uploader = cld
		logger.Info().Msg("attachments are uploaded to Cloudinary")
	}

	presence := services.NewRedisPresence(rdb, logger)
	ws := services.NewWorkspace(services.WorkspaceConfig{
		UserID:                      cfg.UserID,
		Username:                    cfg.Username,
		FilesEndpoint:               cfg.FilesEndpoint,
		MaxFileURLLen:               cfg.FileURLMaxLen,
		UploadMaxBytes:              cfg.UploadMaxBytes,
		UploadTimeout:               cfg.UploadTimeout,
		TypingQuietWindow:           cfg.TypingQuietWindow,
		SidebarThrottle:             cfg.SidebarThrottle,
		SidebarDelay:                cfg.SidebarDelay,
		OpeningMessage:              cfg.OpeningMessage,
		RemoveParticipantClosesView: cfg.RemoveParticipantClosesView,
	}, api, creds, uploader, presence, services.NewConversationCache(rdb, cfg.UserID, logger), logger)
	defer ws.Close()

	presence.Start(ctx, ws.HandlePresence)

	limiter := middleware.NewIPRateLimiter(20, 60)
	defer limiter.Close()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.IsProduction() {
		r.Use(middleware.SecurityHeaders)
	}
	r.Use(limiter.Handler)

	routes.SetupRoutes(r, handlers.NewChatHandler(ws, cfg.UploadTimeout+cfg.RequestTimeout, logger))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("backend", cfg.BackendURL).Msg("chat gateway running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
}

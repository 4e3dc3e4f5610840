package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rollvault/rollvault/internal/app"
	"github.com/rollvault/rollvault/internal/auth"
	"github.com/rollvault/rollvault/internal/characters"
	"github.com/rollvault/rollvault/internal/directory"
	"github.com/rollvault/rollvault/internal/discord"
	"github.com/rollvault/rollvault/internal/observability"
	"github.com/rollvault/rollvault/internal/platform/cache"
	"github.com/rollvault/rollvault/internal/platform/db"
	"github.com/rollvault/rollvault/internal/shared"
	"github.com/rollvault/rollvault/internal/sheet"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "rollvault_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()

	discordClient := discord.NewClient(discord.ClientConfig{
		BaseURL:     cfg.DiscordAPIBase,
		BotToken:    cfg.DiscordBotToken,
		RetryMargin: cfg.DiscordRetryMargin,
		WaitBudget:  cfg.DiscordWaitBudget,
		Logger:      logger,
		OnRetry:     metrics.ObserveDiscordRetry,
	})
	oauth := discord.NewOAuth(discord.OAuthConfig{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		BaseURL:      cfg.DiscordAPIBase,
		DevMode:      cfg.IsDevelopment(),
	})
	resolver := discord.NewResolver(discordClient, oauth)
	authorizer := discord.NewAuthorizer(discordClient)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, oauth, resolver, sessionManager)

	characterRepo := characters.NewRepository(dbpool)
	characterService := characters.NewService(characterRepo, authorizer)
	characterHandler := characters.NewHandler(logger, characterService, resolver)

	sheetRepo := sheet.NewRepository(dbpool)
	sheetService := sheet.NewService(sheetRepo, characterService)
	sheetHandler := sheet.NewHandler(logger, sheetService, resolver)

	directoryHandler := directory.NewHandler(logger, discordClient, authorizer, resolver)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		DirectoryHandler: directoryHandler,
		CharacterHandler: characterHandler,
		SheetHandler:     sheetHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

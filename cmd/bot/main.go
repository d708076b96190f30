package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vip-access-bot/internal/client"
	"vip-access-bot/internal/config"
	"vip-access-bot/internal/handler"
	"vip-access-bot/internal/logger"
	"vip-access-bot/internal/middleware"
	"vip-access-bot/internal/repository"
	"vip-access-bot/internal/server"
	"vip-access-bot/internal/service"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	client.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var missing *config.ConfigurationError
	cfgErr := cfg.Validate()
	if cfgErr != nil && !errors.As(cfgErr, &missing) {
		log.Fatal().Err(cfgErr).Msg("invalid configuration")
	}
	botEnabled := cfgErr == nil
	if !botEnabled {
		log.Error().Strs("missing", missing.Missing).Msg("bot disabled, serving health checks only")
	}

	health := handler.NewHealthHandler(botEnabled)
	srv := server.NewServer(log, health)
	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	log.Info().Str("addr", serverAddr).Msg("starting HTTP server")
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	botStopped := make(chan func(), 1)
	if botEnabled {
		health.SetBotStatus(handler.BotStarting)
		go func() {
			botStopped <- startWithRetry(ctx, log, startupBackoff(), func(ctx context.Context) (func(), error) {
				stop, err := runBot(ctx, cfg, log)
				if err == nil {
					health.SetBotStatus(handler.BotRunning)
				}
				return stop, err
			})
		}()
	} else {
		botStopped <- func() {}
	}

	<-ctx.Done()
	log.Info().Msg("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	shutdownBot := <-botStopped
	shutdownBot()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	log.Info().Msg("bye")
}

func startupBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}
}

// startWithRetry calls start until it succeeds or ctx ends, backing off in
// between. It returns the stop func of the successful start, or a no-op.
func startWithRetry(ctx context.Context, log zerolog.Logger, b *backoff.Backoff, start func(ctx context.Context) (func(), error)) func() {
	for {
		stop, err := start(ctx)
		if err == nil {
			return stop
		}

		wait := b.Duration()
		log.Error().Err(err).Dur("retry_in", wait).Msg("bot startup failed, health endpoint stays up")
		select {
		case <-ctx.Done():
			return func() {}
		case <-time.After(wait):
		}
	}
}

// runBot wires the store, the Telegram client and the services, then starts
// long polling and the reconciler. The returned func stops them in order.
// A failed start releases whatever it opened, so it can be retried.
func runBot(ctx context.Context, cfg *config.Config, log zerolog.Logger) (stop func(), err error) {
	db, err := client.InitDBClient(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	var (
		rdb      *redis.Client
		sessions repository.SessionRepository
	)
	closeStores := func() {
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("close redis failed")
			}
		}
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("close database failed")
		}
	}
	defer func() {
		if err != nil {
			closeStores()
		}
	}()

	if cfg.RedisURL != "" {
		rdb, err = client.InitRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		sessions = repository.NewRedisSessionRepository(rdb, cfg.Session.TTL)
		log.Info().Msg("conversation sessions stored in redis")
	} else {
		sessions = repository.NewMemorySessionRepository(cfg.Session.TTL, time.Now)
		log.Warn().Msg("REDIS_URL not set, conversation sessions are lost on restart")
	}

	bot, err := client.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	tg := client.NewTelegramClient(bot)
	log.Info().Str("username", bot.Self.UserName).Msg("authorized on telegram")

	// a leftover webhook makes getUpdates fail with a conflict
	if err := tg.DeleteWebhook(); err != nil {
		log.Warn().Err(err).Msg("delete webhook failed")
	}

	retry := service.NewRetryPolicy(cfg.Store)
	adminID := cfg.Telegram.AdminID

	catalogRepo := repository.NewCatalogRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	userRepo := repository.NewUserRepository(db)

	catalogService := service.NewCatalogService(adminID, retry, catalogRepo)
	accessService := service.NewAccessService(tg, cfg.Telegram.InviteLinkTTL, time.Now, log)
	userService := service.NewUserService(adminID, retry, log, tg, userRepo, subRepo)
	approvalService := service.NewApprovalService(
		db, adminID, retry, time.Now, log, tg,
		catalogService,
		accessService,
		approvalRepo,
		subRepo,
		userRepo,
	)
	conversationService := service.NewConversationService(
		cfg.Telegram.Passcode, cfg.Telegram.SupportText, time.Now, log, tg,
		sessions,
		catalogService,
		approvalService,
		userService,
	)
	reconcilerService := service.NewReconcilerService(
		cfg.Reconciler, retry, time.Now, log, tg,
		catalogService,
		accessService,
		subRepo,
	)

	adminHandler := handler.NewAdminHandler(log, tg, catalogService, userService)
	botHandler := handler.NewBotHandler(adminID, log, tg, conversationService, approvalService, adminHandler)

	dispatcher := handler.NewDispatcher(middleware.Chain(
		botHandler.HandleUpdate,
		middleware.Logger(log),
		middleware.Recover(log),
		middleware.Timeout(cfg.Telegram.UpdateTimeout),
	))

	if err := reconcilerService.Start(ctx); err != nil {
		return nil, fmt.Errorf("start reconciler: %w", err)
	}

	updates := bot.GetUpdatesChan(tgbotapi.UpdateConfig{
		Timeout:        int(cfg.Telegram.PollTimeout.Seconds()),
		AllowedUpdates: []string{"message", "callback_query"},
	})
	polling := make(chan struct{})
	go func() {
		defer close(polling)
		for u := range updates {
			dispatcher.Dispatch(ctx, u)
		}
	}()
	log.Info().Msg("bot is polling")

	return func() {
		bot.StopReceivingUpdates()
		<-polling
		dispatcher.Wait()
		adminHandler.Wait()
		reconcilerService.Stop()
		closeStores()
	}, nil
}

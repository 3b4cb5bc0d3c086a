package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/studydesk/account-core/internal/completion"
	"github.com/studydesk/account-core/internal/config"
	"github.com/studydesk/account-core/internal/handler"
	"github.com/studydesk/account-core/internal/jobs"
	"github.com/studydesk/account-core/internal/middleware"
	"github.com/studydesk/account-core/internal/notify"
	"github.com/studydesk/account-core/internal/redis"
	"github.com/studydesk/account-core/internal/repository"
	"github.com/studydesk/account-core/internal/service"
	"github.com/studydesk/account-core/internal/util"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid quota timezone")
	}

	store, db := repository.OpenStore(context.Background(), cfg.DatabaseDriver, cfg.DatabaseURL)
	var health func(ctx context.Context) error
	if db != nil {
		defer db.Close()
		health = db.Ping
	}

	var (
		redisClient  *redis.Client
		broker       *notify.Broker
		loginLimiter service.LoginLimiter
		rateLimiter  middleware.Limiter
	)
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		store = repository.WithSessions(store, repository.NewRedisSessionPointerRepository(redisClient.Client))
		loginLimiter = service.NewRedisLoginLimiter(redisClient.Client, config.LoginMaxAttempts, config.LoginWindowDuration)
		rateLimiter = middleware.NewRedisRateLimiter(redisClient.Client)
	} else {
		loginLimiter = service.NewMemoryLoginLimiter(config.LoginMaxAttempts, config.LoginWindowDuration)
		rateLimiter = middleware.NewRateLimiter()
	}

	broker = notify.NewBroker(redisClient)
	defer broker.Close()

	var credentials util.CredentialChecker = util.PlainCredentials{}
	if cfg.CredentialScheme == config.CredentialSchemeBcrypt {
		credentials = util.BcryptCredentials{}
	}

	quotaService := service.NewQuotaService(store, cfg.DailyQuestionLimit, loc)
	subscriptionService := service.NewSubscriptionService(store, broker)
	sessionRegistry := service.NewSessionRegistry(store, subscriptionService, broker)
	authService := service.NewAuthService(store, sessionRegistry, subscriptionService, quotaService, credentials, loginLimiter)
	adminService := service.NewAdminService(store, subscriptionService, broker)

	var completer completion.Completer
	if cfg.CompletionAPIKey != "" {
		completer = completion.NewHTTPCompleter(cfg.CompletionEndpoint, cfg.CompletionAPIKey, cfg.CompletionModel, config.CompletionTimeout)
	} else {
		log.Warn().Msg("COMPLETION_API_KEY is not set: assistant requests will report a missing configuration")
	}
	assistantService := service.NewAssistantService(quotaService, completer)

	if cfg.AdminEmail != "" {
		admin, err := authService.SeedAdmin(context.Background(), cfg.AdminEmail, cfg.AdminSecret)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to seed admin account")
		}
		log.Info().Str("email", util.MaskEmail(admin.Email)).Msg("admin account ready")
	}

	r := handler.NewRouter(handler.RouterDeps{
		Auth:          authService,
		Sessions:      sessionRegistry,
		Quota:         quotaService,
		Subscriptions: subscriptionService,
		Assistant:     assistantService,
		Admin:         adminService,
		Limiter:       rateLimiter,
		Health:        health,
		IsProduction:  isProduction,
	})

	expiryJob := jobs.NewPremiumExpiryJob(subscriptionService, cfg.PremiumSweepInterval())
	expiryJob.Start()
	defer expiryJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

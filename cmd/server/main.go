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

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paygate/internal/advisor"
	"paygate/internal/auth"
	"paygate/internal/chatbot"
	"paygate/internal/config"
	"paygate/internal/dispatch"
	apphttp "paygate/internal/http"
	"paygate/internal/payment"
	"paygate/internal/repository/sqlite"
	"paygate/internal/service"
	"paygate/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := sqlite.Migrate(ctx, db, logger); err != nil {
		logger.Fatalf("migrate database: %v", err)
	}
	store := sqlite.NewStore(db)

	creds, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.DevMode)
	if err != nil {
		logger.Fatalf("credentials: %v", err)
	}
	if cfg.Auth.DevMode && cfg.Auth.JWTSecret == "" {
		logger.Warn("dev mode: using a random signing secret, tokens will not survive a restart")
	}

	gateway, err := payment.NewGateway(payment.Config{
		SecretKey:     cfg.Payment.StripeSecretKey,
		WebhookSecret: cfg.Payment.WebhookSecret,
		Prices:        cfg.Payment.Prices,
		SuccessURL:    cfg.Payment.SuccessURL,
		CancelURL:     cfg.Payment.CancelURL,
		Timeout:       cfg.Payment.Timeout,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatalf("payment gateway: %v", err)
	}

	archive, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}

	messenger, err := buildMessenger(cfg, logger)
	if err != nil {
		logger.Fatalf("setup telegram: %v", err)
	}

	pool := dispatch.NewPool(dispatch.Config{
		Workers:    cfg.Workers.Count,
		QueueSize:  cfg.Workers.QueueSize,
		JobTimeout: cfg.Workers.JobTimeout,
		Logger:     logger,
	})
	// the pool outlives the signal context so Shutdown can drain queued jobs
	pool.Start(context.Background())

	notifier := chatbot.NewNotifier(archive, messenger, pool, logger)

	limiter := service.NewRateLimiter(store, cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window, nil)
	broker := service.NewPaymentBroker(store, limiter, gateway, creds, service.BrokerConfig{
		SessionTTL:      cfg.Payment.SessionTTL,
		TokenTTL:        cfg.Auth.TokenTTL,
		ProviderTimeout: cfg.Payment.Timeout,
		Logger:          logger,
	})
	userService := service.NewUserService(store, creds, logger)
	onboarding := service.NewOnboardingService(store, service.OnboardingConfig{
		OnComplete: notifier.OnboardingCompleted,
		Logger:     logger,
	})

	consultant := advisor.New(advisor.Config{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
		Logger:  logger,
	})
	bot := chatbot.NewBot(userService, onboarding, consultant, messenger, chatbot.Config{
		PurchaseURL: cfg.Telegram.PurchaseURL,
		Logger:      logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), apphttp.LoggerMiddleware(logger))
	handler := apphttp.NewHandler(apphttp.Config{
		Broker:         broker,
		Users:          userService,
		Onboarding:     onboarding,
		Payments:       gateway,
		Tokens:         creds,
		Chat:           bot,
		Pool:           pool,
		Notifier:       notifier,
		TokenTTL:       cfg.Auth.TokenTTL,
		TelegramSecret: cfg.Telegram.WebhookSecret,
		AllowedOrigin:  cfg.Server.AllowedOrigin,
		Logger:         logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	pool.Shutdown()

	logger.Info("bye")
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Archive, error) {
	if cfg.Storage.Bucket == "" {
		logger.Warn("no storage bucket configured, profile archiving disabled")
		return storage.Disabled{}, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Archive(client, cfg.Storage.Bucket, cfg.Storage.KeyPrefix)
}

func buildMessenger(cfg config.Config, logger *logrus.Logger) (chatbot.Messenger, error) {
	if cfg.Telegram.BotToken == "" {
		logger.Warn("no telegram bot token configured, chat replies are logged only")
		return chatbot.LogMessenger{Logger: logger}, nil
	}
	return chatbot.NewTelegram(cfg.Telegram.BotToken, "", cfg.Telegram.Timeout, logger)
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/peter115342/bazos-alert-bot/config"
	"github.com/peter115342/bazos-alert-bot/internal/scraper"
	"github.com/peter115342/bazos-alert-bot/logger"
	"github.com/peter115342/bazos-alert-bot/services/bot"
	"github.com/peter115342/bazos-alert-bot/services/cache"
	"github.com/peter115342/bazos-alert-bot/services/notifier"
	"github.com/peter115342/bazos-alert-bot/services/publisher"
	"github.com/peter115342/bazos-alert-bot/services/store"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("check_interval", cfg.CheckInterval).
		Int("searches", len(cfg.Searches)).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	// Create scrapers
	scrapers := scraper.NewScrapers(services.Cache)
	if len(scrapers) == 0 {
		log.Fatal().Msg("No scrapers were created")
	}

	log.Info().
		Int("scraper_count", len(scrapers)).
		Msg("Created scrapers")

	b := bot.New(ctx, cfg, scrapers, services.Store, services.Notifier, services.Publisher)

	if os.Getenv("RUN_MODE") == "once" {
		b.RunOnce()
		return
	}

	// Start bot in a goroutine
	botDone := make(chan error, 1)
	go func() {
		botDone <- b.Run()
	}()

	// Wait for shutdown signal or bot error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-botDone
	case err := <-botDone:
		if err != nil {
			log.Error().Err(err).Msg("Bot exited with error")
		} else {
			log.Info().Msg("Bot exited normally")
		}
	}

	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Store     store.Store
	Notifier  notifier.Notifier
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	services.Store = st

	services.Notifier = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)

	if cfg.MemcacheAddr != "" {
		services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
		logger.Info("Using memcache rate-limit cache at %s", cfg.MemcacheAddr)
	}

	if cfg.RedisAddr != "" {
		services.Publisher = publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		logger.Info("Publishing listing events to redis at %s", cfg.RedisAddr)
	}

	return services, nil
}

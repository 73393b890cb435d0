package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/regionbrief/regionbrief/internal/api"
	"github.com/regionbrief/regionbrief/internal/archive"
	"github.com/regionbrief/regionbrief/internal/config"
	"github.com/regionbrief/regionbrief/internal/dedup"
	"github.com/regionbrief/regionbrief/internal/feed"
	"github.com/regionbrief/regionbrief/internal/logger"
	"github.com/regionbrief/regionbrief/internal/middleware"
	"github.com/regionbrief/regionbrief/internal/notify"
	"github.com/regionbrief/regionbrief/internal/pipeline"
	"github.com/regionbrief/regionbrief/internal/storage"
	"github.com/regionbrief/regionbrief/internal/topic"
)

func main() {
	once := flag.Bool("once", false, "run the pipeline for all regions once and exit")
	flag.Parse()

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: cfg.LogFile,
		Pretty: cfg.Env == "development",
	}); err != nil {
		panic(err)
	}

	log := logger.Get()
	log.Info().Str("env", cfg.Env).Msg("Starting application...")

	// Region and source definitions
	feeds, err := config.LoadFeeds(cfg.FeedsPath)
	if err != nil {
		log.Fatal().Str("path", cfg.FeedsPath).Err(err).Msg("Failed to load feed definitions")
	}
	log.Info().Strs("regions", feeds.Codes()).Msg("Loaded feed definitions")

	// Dedup store backend
	var store dedup.Store
	switch cfg.StoreBackend {
	case "redis":
		redisStore, err := dedup.NewRedisStore(cfg.RedisURL, cfg.RedisPrefix, cfg.RetentionWindow)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer func() {
			if err := redisStore.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing Redis client")
			}
		}()
		store = redisStore
	default:
		store = dedup.NewFileStore(cfg.StatePath)
	}

	// Notification sink
	var sink notify.Sink = notify.NoopSink{}
	if feeds.HasWebhooks() {
		sink = notify.NewDiscordSink(cfg.HTTPTimeout)
	} else {
		log.Warn().Msg("No webhook URLs configured, notifications disabled")
	}

	// Local digest archive
	digests, err := storage.NewStorage(cfg.DigestPath)
	if err != nil {
		log.Fatal().Str("path", cfg.DigestPath).Err(err).Msg("Failed to initialize digest storage")
	}

	// Optional remote digest archive
	uploader, err := archive.New(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize digest uploader")
	}
	if uploader != nil {
		log.Info().Str("bucket", cfg.R2Bucket).Msg("Remote digest archive enabled")
	}

	classifier := topic.NewClassifier(topic.Default())
	fetcher := feed.NewFetcher(cfg.FetchTimeout, cfg.MaxItemsPerSource)

	p := pipeline.New(feeds, fetcher, store, sink, classifier, digests, uploader, pipeline.Options{
		MaxHeadlinesPerTopic: cfg.MaxHeadlinesPerTopic,
		FreshnessWindow:      cfg.FreshnessWindow,
		RetentionWindow:      cfg.RetentionWindow,
		AggressivePosting:    cfg.AggressivePosting,
	})

	if *once {
		results := p.RunAll(context.Background())
		for _, r := range results {
			log.Info().Str("region", r.Region).Int("fresh", r.Fresh).
				Int("emitted", r.Emitted).Bool("fallback", r.Fallback).Msg("Run complete")
		}
		return
	}

	// Background run loop
	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()
	go runLoop(runCtx, p, cfg.RunInterval)

	// Create Fiber app with custom config
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: middleware.ErrorHandler,
	})

	// Setup API routes
	api.SetupRoutes(app, api.NewHandlers(feeds, p, digests, classifier), cfg)

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopRuns()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

// runLoop executes a full run immediately and then on every tick until the
// context is cancelled.
func runLoop(ctx context.Context, p *pipeline.Pipeline, interval time.Duration) {
	log := logger.Get()

	p.RunAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Run loop stopped")
			return
		case <-ticker.C:
			p.RunAll(ctx)
		}
	}
}

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/feedgrid/feedgrid/internal/cache"
	"github.com/feedgrid/feedgrid/internal/config"
	"github.com/feedgrid/feedgrid/internal/consumer"
	"github.com/feedgrid/feedgrid/internal/feed"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/store"
	"github.com/feedgrid/feedgrid/internal/subscription"
	"github.com/feedgrid/feedgrid/internal/utils"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	logger.Info("Fanout worker starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	logger.Info("Connecting to redis", "addr", cfg.Redis.Addr)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	logger.Info("Connecting to queue", "type", cfg.Queue.Type, "url", cfg.Queue.URL)
	queueClient, err := queue.NewQueue(cfg.Queue)
	if err != nil {
		logger.Fatal("Failed to connect to queue", "error", err)
	}
	defer func() { _ = queueClient.Close() }()

	dataStore, err := store.New(cfg.Store)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	defer func() { _ = dataStore.Close() }()

	localCache := cache.NewLocalCache()
	defer localCache.Stop()
	cacheManager := cache.NewManager(localCache, cache.NewRedisGlobal(redisClient), queueClient, logger)

	if err := consumer.StartCacheEvictions(queueClient, cacheManager, logger); err != nil {
		logger.Fatal("Failed to start cache eviction consumer", "error", err)
	}

	executor := subscription.NewDistributedExecutor(dataStore, cfg.Fanout.FetchSize, logger)
	feeds := feed.NewService(dataStore, cfg.Fanout, logger)

	feedConsumer := consumer.NewFeedEventConsumer(executor, feeds, logger)
	if err := feedConsumer.Start(queueClient, queueClient, consumer.DefaultRetryOptions()); err != nil {
		logger.Fatal("Failed to start feed event consumer", "error", err)
	}
	logger.Info("Consuming events", "topic", utils.TopicEvents)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/feedgrid/feedgrid/internal/cache"
	"github.com/feedgrid/feedgrid/internal/component"
	"github.com/feedgrid/feedgrid/internal/config"
	"github.com/feedgrid/feedgrid/internal/consumer"
	"github.com/feedgrid/feedgrid/internal/event"
	"github.com/feedgrid/feedgrid/internal/feed"
	"github.com/feedgrid/feedgrid/internal/handlers"
	"github.com/feedgrid/feedgrid/internal/lock"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/post"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/router"
	"github.com/feedgrid/feedgrid/internal/sequence"
	"github.com/feedgrid/feedgrid/internal/store"
	"github.com/feedgrid/feedgrid/internal/subscription"
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
	handlers.Version = Version
	logger.Info("API service starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	// Shared redis client: global cache tier, distributed locks, sequences
	logger.Info("Connecting to redis", "addr", cfg.Redis.Addr)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	// Etcd: component registry and snowflake node-id leasing
	logger.Info("Connecting to etcd", "endpoints", cfg.Etcd.Endpoints)
	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: cfg.Etcd.DialTimeout,
		Username:    cfg.Etcd.Username,
		Password:    cfg.Etcd.Password,
	})
	if err != nil {
		logger.Fatal("Failed to connect to etcd", "error", err)
	}
	defer func() { _ = etcdClient.Close() }()

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

	snowflake, release := newSnowflake(cfg, etcdClient, logger)
	defer release()

	localCache := cache.NewLocalCache()
	defer localCache.Stop()
	cacheManager := cache.NewManager(localCache, cache.NewRedisGlobal(redisClient), queueClient, logger)

	// Every node consumes the cluster invalidation broadcast
	if err := consumer.StartCacheEvictions(queueClient, cacheManager, logger); err != nil {
		logger.Fatal("Failed to start cache eviction consumer", "error", err)
	}

	locks := lock.NewManager(lock.NewRedisRepository(redisClient), cfg.Lock, logger)
	sequences := sequence.NewRedisGenerator(redisClient, "feedgrid")
	events := event.NewPublisher(queueClient, event.NewHistory(dataStore), logger)

	components := component.NewRegistry(etcdClient, cacheManager, logger)
	subscriptions := subscription.NewService(dataStore, locks, components, events, sequences, snowflake, logger)
	posts := post.NewService(dataStore, locks, components, cacheManager, events, sequences, snowflake, logger)
	feeds := feed.NewService(dataStore, cfg.Fanout, logger)

	if cfg.Auth.Enabled {
		logger.Info("API key authentication enabled", "num_keys", len(cfg.Auth.APIKeys))
	} else {
		logger.Warn("API key authentication DISABLED - all requests will be allowed")
	}

	h := handlers.New(logger, components, subscriptions, posts, feeds)
	app := router.New(logger, h, *cfg)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		logger.Info("Server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

// newSnowflake builds the id generator, leasing a node id from etcd when
// none is configured. The returned func releases the lease on shutdown.
func newSnowflake(cfg *config.Config, etcdClient *clientv3.Client, logger *logging.Logger) (*sequence.Snowflake, func()) {
	if cfg.Sequence.NodeID >= 0 {
		gen, err := sequence.NewSnowflake(cfg.Sequence.NodeID)
		if err != nil {
			logger.Fatal("Failed to create id generator", "error", err)
		}
		return gen, func() {}
	}

	allocator := sequence.NewNodeAllocator(etcdClient, logger)

	hostname, _ := os.Hostname()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nodeID, err := allocator.Allocate(ctx, hostname)
	if err != nil {
		logger.Fatal("Failed to lease a node id", "error", err)
	}
	logger.Info("Leased snowflake node id", "node_id", nodeID)

	gen, err := sequence.NewSnowflake(nodeID)
	if err != nil {
		logger.Fatal("Failed to create id generator", "error", err)
	}

	return gen, func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if err := allocator.Release(releaseCtx); err != nil {
			logger.Warn("Failed to release node id lease", "error", err)
		}
	}
}

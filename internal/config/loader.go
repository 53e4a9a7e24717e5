package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/feedgrid")
	}

	setDefaults(v)

	// Enable environment variable overrides
	v.SetEnvPrefix("FEEDGRID")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 5555)

	// Store defaults
	v.SetDefault("store.type", "memory")

	// Etcd defaults
	v.SetDefault("etcd.endpoints", []string{"http://localhost:2379"})
	v.SetDefault("etcd.dial_timeout", "5s")

	// Queue defaults
	v.SetDefault("queue.type", "kafka")
	v.SetDefault("queue.kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("queue.kafka_group_id", "feedgrid-group")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")

	// Lock defaults
	v.SetDefault("lock.ttl", "3s")
	v.SetDefault("lock.wait_timeout", "3s")
	v.SetDefault("lock.retry_delay", "50ms")

	// Fanout defaults
	v.SetDefault("fanout.batch_size", 10)
	v.SetDefault("fanout.parallelism", 50)
	v.SetDefault("fanout.fetch_size", 100)

	// Sequence defaults (-1 derives a node id from the etcd lease allocator)
	v.SetDefault("sequence.node_id", -1)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 5555,
		},
		Store: StoreConfig{
			Type: "memory",
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"http://localhost:2379"},
			DialTimeout: 5 * time.Second,
		},
		Queue: QueueConfig{
			Type:         "kafka",
			KafkaBrokers: []string{"localhost:9092"},
			KafkaGroupID: "feedgrid-group",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Lock: LockConfig{
			TTL:         3 * time.Second,
			WaitTimeout: 3 * time.Second,
			RetryDelay:  50 * time.Millisecond,
		},
		Fanout: FanoutConfig{
			BatchSize:   10,
			Parallelism: 50,
			FetchSize:   100,
		},
		Sequence: SequenceConfig{
			NodeID: -1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}

package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lock     LockConfig     `mapstructure:"lock"`
	Fanout   FanoutConfig   `mapstructure:"fanout"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Sequence SequenceConfig `mapstructure:"sequence"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents API server configuration
type ServerConfig struct {
	Host     string `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0)
	HTTPPort int    `mapstructure:"http_port"` // HTTP server port
}

// StoreConfig represents wide-column store configuration
type StoreConfig struct {
	Type string `mapstructure:"type"` // Store backend: memory (default)
}

// EtcdConfig represents etcd configuration for the component registry and
// snowflake node-id leasing
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// QueueConfig represents message bus configuration
type QueueConfig struct {
	Type     string `mapstructure:"type"`     // Queue type: kafka (default), nats, redis, memory
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222)
	Username string `mapstructure:"username"` // Optional authentication
	Password string `mapstructure:"password"` // Optional authentication

	// Redis-specific options
	RedisDB       int    `mapstructure:"redis_db"`       // Redis database number (default: 0)
	RedisStream   string `mapstructure:"redis_stream"`   // Redis stream prefix (default: "feedgrid")
	RedisGroup    string `mapstructure:"redis_group"`    // Redis consumer group (default: "feedgrid-group")
	RedisConsumer string `mapstructure:"redis_consumer"` // Redis consumer name (default: hostname)

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"`  // Kafka broker addresses
	KafkaGroupID string   `mapstructure:"kafka_group_id"` // Kafka consumer group ID
}

// RedisConfig represents the shared redis configuration used by the global
// cache tier, distributed lock repository and sequence generator
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LockConfig represents distributed lock configuration
type LockConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`          // Lock expiry held by a single owner
	WaitTimeout time.Duration `mapstructure:"wait_timeout"` // Bounded acquire wait
	RetryDelay  time.Duration `mapstructure:"retry_delay"`  // Backoff between acquire attempts
}

// FanoutConfig represents feed fanout configuration
type FanoutConfig struct {
	BatchSize   int `mapstructure:"batch_size"`   // Owners per batched store write
	Parallelism int `mapstructure:"parallelism"`  // Concurrent batch writers
	FetchSize   int `mapstructure:"fetch_size"`   // Subscriber page size for removal scans
}

// AuthConfig represents API key authentication configuration
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`  // Enable/disable API key authentication
	APIKeys []string `mapstructure:"api_keys"` // List of valid API keys
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
}

// SequenceConfig represents snowflake generator configuration
type SequenceConfig struct {
	NodeID int64 `mapstructure:"node_id"` // Explicit node id; -1 derives one
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Etcd.Validate(); err != nil {
		return fmt.Errorf("etcd config: %w", err)
	}

	if err := c.Lock.Validate(); err != nil {
		return fmt.Errorf("lock config: %w", err)
	}

	if err := c.Fanout.Validate(); err != nil {
		return fmt.Errorf("fanout config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	return nil
}

// Validate validates etcd configuration
func (c *EtcdConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required")
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("etcd.dial_timeout must be positive")
	}

	return nil
}

// Validate validates lock configuration
func (c *LockConfig) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive")
	}

	if c.WaitTimeout <= 0 {
		return fmt.Errorf("lock.wait_timeout must be positive")
	}

	if c.RetryDelay <= 0 {
		return fmt.Errorf("lock.retry_delay must be positive")
	}

	return nil
}

// Validate validates fanout configuration
func (c *FanoutConfig) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("fanout.batch_size must be at least 1")
	}

	if c.Parallelism < 1 {
		return fmt.Errorf("fanout.parallelism must be at least 1")
	}

	if c.FetchSize < 1 {
		return fmt.Errorf("fanout.fetch_size must be at least 1")
	}

	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}

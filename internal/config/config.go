package config

import (
	"fmt"
	"time"
)

// Config represents the complete library configuration
type Config struct {
	Nodes     []NodeConfig    `mapstructure:"nodes"`
	Balancer  BalancerConfig  `mapstructure:"balancer"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Equalizer EqualizerConfig `mapstructure:"equalizer"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// NodeConfig describes a single remote audio node
type NodeConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"` // 0 means 443 for SSL, 80 otherwise
	Password   string `mapstructure:"password"`
	Region     string `mapstructure:"region"`
	Name       string `mapstructure:"name"` // defaults to <region>-<host>:<port>
	SSL        bool   `mapstructure:"ssl"`
	SearchOnly bool   `mapstructure:"search_only"` // excluded from hosting playback

	ResumeKey     string        `mapstructure:"resume_key"` // generated when empty
	ResumeTimeout time.Duration `mapstructure:"resume_timeout"`

	// ReconnectAttempts caps the reconnect loop. -1 means unlimited.
	ReconnectAttempts int `mapstructure:"reconnect_attempts"`

	// ReconnectDelay and ReconnectMaxDelay bound the backoff between
	// reconnect attempts.
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	ReconnectMaxDelay time.Duration `mapstructure:"reconnect_max_delay"`
}

// BalancerConfig controls node selection and failover behaviour
type BalancerConfig struct {
	// RegionFallback lets BestNode fall back to all available nodes when no
	// node matches the requested region.
	RegionFallback bool `mapstructure:"region_fallback"`

	// ConnectBack moves a failed-over player back to its original node once
	// that node becomes available again. Disabled by default: the player is
	// usually performing better on the node it was moved to.
	ConnectBack bool `mapstructure:"connect_back"`
}

// HTTPConfig controls the shared REST client
type HTTPConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CacheConfig controls the track query result cache
type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // memory, redis
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// EqualizerConfig controls the equalizer preset store
type EqualizerConfig struct {
	Backend string      `mapstructure:"backend"` // memory, redis
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds connection settings for Redis-backed stores
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RelayConfig controls the optional out-of-process event relay
type RelayConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"`    // memory, nats, redis, kafka
	Subject  string `mapstructure:"subject"` // subject/stream prefix
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`

	// Redis-specific options
	RedisDB     int    `mapstructure:"redis_db"`
	RedisStream string `mapstructure:"redis_stream"`

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`
}

// AdminConfig controls the embedded status HTTP surface
type AdminConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	Host    string     `mapstructure:"host"`
	Port    int        `mapstructure:"port"`
	Auth    AuthConfig `mapstructure:"auth"`
}

// AuthConfig represents API key authentication configuration
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for i := range c.Nodes {
		if err := c.Nodes[i].Validate(); err != nil {
			return fmt.Errorf("node config %d: %w", i, err)
		}
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay config: %w", err)
	}

	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates a node configuration
func (c *NodeConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.Password == "" {
		return fmt.Errorf("password is required")
	}

	if c.ReconnectAttempts < -1 {
		return fmt.Errorf("reconnect_attempts must be -1 (unlimited) or >= 0")
	}

	if c.ResumeTimeout < 0 {
		return fmt.Errorf("resume_timeout cannot be negative")
	}

	return nil
}

// Validate validates the HTTP client configuration
func (c *HTTPConfig) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	return nil
}

// Validate validates the cache configuration
func (c *CacheConfig) Validate() error {
	switch c.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be 'memory' or 'redis'")
	}

	if c.TTL < 0 {
		return fmt.Errorf("cache.ttl cannot be negative")
	}

	return nil
}

// Validate validates the relay configuration
func (c *RelayConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Type {
	case "", "memory", "nats", "redis", "kafka":
	default:
		return fmt.Errorf("relay.type must be one of: memory, nats, redis, kafka")
	}

	return nil
}

// Validate validates the admin server configuration
func (c *AdminConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid admin port: %d", c.Port)
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

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
		v.AddConfigPath("/etc/lavapool")
	}

	setDefaults(v)

	// Enable environment variable overrides
	v.SetEnvPrefix("LAVAPOOL")
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
	// Balancer defaults
	v.SetDefault("balancer.region_fallback", true)
	v.SetDefault("balancer.connect_back", false)

	// HTTP client defaults
	v.SetDefault("http.request_timeout", "30s")

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "720h") // 30 days
	v.SetDefault("cache.redis.url", "redis://localhost:6379")

	// Equalizer defaults
	v.SetDefault("equalizer.backend", "memory")
	v.SetDefault("equalizer.redis.url", "redis://localhost:6379")

	// Relay defaults
	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.type", "nats")
	v.SetDefault("relay.subject", "lavapool.events")
	v.SetDefault("relay.url", "nats://localhost:4222")

	// Admin defaults
	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 7490)

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

	applyNodeDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyNodeDefaults fills per-node defaults that viper cannot express for
// list entries.
func applyNodeDefaults(cfg *Config) {
	for i := range cfg.Nodes {
		n := &cfg.Nodes[i]
		if n.ResumeTimeout == 0 {
			n.ResumeTimeout = 60 * time.Second
		}
		if n.ReconnectAttempts == 0 {
			n.ReconnectAttempts = 3
		}
		if n.ReconnectDelay == 0 {
			n.ReconnectDelay = time.Second
		}
		if n.ReconnectMaxDelay == 0 {
			n.ReconnectMaxDelay = 30 * time.Second
		}
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Balancer: BalancerConfig{
			RegionFallback: true,
		},
		HTTP: HTTPConfig{
			RequestTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     30 * 24 * time.Hour,
		},
		Equalizer: EqualizerConfig{
			Backend: "memory",
		},
		Relay: RelayConfig{
			Type:    "nats",
			Subject: "lavapool.events",
			URL:     "nats://localhost:4222",
		},
		Admin: AdminConfig{
			Host: "127.0.0.1",
			Port: 7490,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}

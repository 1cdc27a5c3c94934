package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar points at an optional YAML file layered between defaults and env.
const ConfigPathEnvVar = "CONFIG_PATH"

const (
	ClusterLocal = "local"
	ClusterRedis = "redis"
	ClusterNATS  = "nats"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Redis     RedisConfig     `koanf:"redis"`
	Cluster   ClusterConfig   `koanf:"cluster"`
	Typing    TypingConfig    `koanf:"typing"`
	Presence  PresenceConfig  `koanf:"presence"`
	Relay     RelayConfig     `koanf:"relay"`
	Notify    NotifyConfig    `koanf:"notify"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	AdminAddr       string        `koanf:"admin_addr"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	MaxPayloadBytes int64         `koanf:"max_payload_bytes"`
	PingInterval    time.Duration `koanf:"ping_interval"`
	PingTimeout     time.Duration `koanf:"ping_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

type RateLimitConfig struct {
	WindowMS     int `koanf:"window_ms"`
	MaxRequests  int `koanf:"max_requests"`
	HTTPRequests int `koanf:"http_requests"`
}

type RedisConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

type ClusterConfig struct {
	Backend string `koanf:"backend"`
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`
}

type TypingConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

type PresenceConfig struct {
	DBPath string `koanf:"db_path"`
}

type RelayConfig struct {
	SanitizeText bool `koanf:"sanitize_text"`
}

type NotifyConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3001,
			AdminAddr:       "localhost:3002",
			AllowedOrigins:  []string{"*"},
			MaxPayloadBytes: 1 << 20,
			PingInterval:    25 * time.Second,
			PingTimeout:     20 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			WindowMS:     60000,
			MaxRequests:  100,
			HTTPRequests: 1000,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		Cluster: ClusterConfig{
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "socketd.events",
		},
		Typing: TypingConfig{
			TTL: 60 * time.Second,
		},
		Notify: NotifyConfig{
			URL:     "http://localhost:3001",
			Timeout: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers built-in defaults, an optional YAML file and the environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// SOCKET_PORT wins over PORT when both are set.
	if v := os.Getenv("SOCKET_PORT"); v != "" {
		if err := k.Set("server.port", v); err != nil {
			return nil, fmt.Errorf("failed to set server.port: %w", err)
		}
	}

	if err := splitCommaList(k, "server.allowed_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Cluster.Backend == "" {
		cfg.Cluster.Backend = ClusterLocal
		if cfg.Redis.Enabled {
			cfg.Cluster.Backend = ClusterRedis
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SOCKET_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxPayloadBytes <= 0 {
		return fmt.Errorf("MAX_PAYLOAD_BYTES must be greater than 0")
	}
	if c.Server.PingInterval <= 0 || c.Server.PingTimeout <= 0 {
		return fmt.Errorf("PING_INTERVAL and PING_TIMEOUT must be greater than 0")
	}
	if c.RateLimit.WindowMS <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be greater than 0")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be greater than 0")
	}
	if c.Typing.TTL <= 0 {
		return fmt.Errorf("TYPING_TTL must be greater than 0")
	}

	switch c.Cluster.Backend {
	case ClusterLocal:
	case ClusterRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("CLUSTER_BACKEND=redis requires USE_REDIS=true")
		}
	case ClusterNATS:
		if c.Cluster.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required for CLUSTER_BACKEND=nats")
		}
	default:
		return fmt.Errorf("unknown CLUSTER_BACKEND %q (use local, redis or nats)", c.Cluster.Backend)
	}

	if c.Redis.Enabled {
		u, err := url.Parse(c.Redis.URL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			return fmt.Errorf("REDIS_URL must be a redis:// or rediss:// URL, got %q", c.Redis.URL)
		}
	}

	return nil
}

// Addr is the public listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// RateLimitWindow converts the millisecond window into a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowMS) * time.Millisecond
}

var envMappings = map[string]string{
	"jwt_secret":               "auth.jwt_secret",
	"rate_limit_window_ms":     "rate_limit.window_ms",
	"rate_limit_max_requests":  "rate_limit.max_requests",
	"http_rate_limit_requests": "rate_limit.http_requests",
	"socket_port":              "server.port",
	"port":                     "server.port",
	"admin_addr":               "server.admin_addr",
	"allowed_origins":          "server.allowed_origins",
	"max_payload_bytes":        "server.max_payload_bytes",
	"ping_interval":            "server.ping_interval",
	"ping_timeout":             "server.ping_timeout",
	"shutdown_timeout":         "server.shutdown_timeout",
	"use_redis":                "redis.enabled",
	"redis_url":                "redis.url",
	"cluster_backend":          "cluster.backend",
	"nats_url":                 "cluster.nats_url",
	"cluster_subject":          "cluster.subject",
	"typing_ttl":               "typing.ttl",
	"presence_db":              "presence.db_path",
	"sanitize_text":            "relay.sanitize_text",
	"emit_url":                 "notify.url",
	"emit_timeout":             "notify.timeout",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
}

// envTransformFunc maps known environment variables onto config paths.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func splitCommaList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if err := k.Set(path, parts); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 3001 {
		t.Errorf("expected port 3001, got %d", cfg.Server.Port)
	}
	if cfg.RateLimitWindow() != time.Minute {
		t.Errorf("expected 60s window, got %v", cfg.RateLimitWindow())
	}
	if cfg.RateLimit.MaxRequests != 100 {
		t.Errorf("expected 100 max requests, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.Server.PingInterval != 25*time.Second || cfg.Server.PingTimeout != 20*time.Second {
		t.Errorf("unexpected ping settings %v / %v", cfg.Server.PingInterval, cfg.Server.PingTimeout)
	}
	if cfg.Cluster.Backend != ClusterLocal {
		t.Errorf("expected local cluster backend, got %q", cfg.Cluster.Backend)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("default origins should be [*], got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Relay.SanitizeText {
		t.Error("message text should pass through untouched by default")
	}
}

func TestLoad_EnvMapping(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SOCKET_PORT", "4000")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "1000")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("USE_REDIS", "true")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("TYPING_TTL", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("JWT_SECRET not mapped, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("expected port 4000, got %d", cfg.Server.Port)
	}
	if cfg.RateLimitWindow() != time.Second {
		t.Errorf("expected 1s window, got %v", cfg.RateLimitWindow())
	}
	if cfg.RateLimit.MaxRequests != 5 {
		t.Errorf("expected 5 max requests, got %d", cfg.RateLimit.MaxRequests)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Redis.Enabled || cfg.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("redis not mapped: %+v", cfg.Redis)
	}
	if cfg.Cluster.Backend != ClusterRedis {
		t.Errorf("USE_REDIS should default the cluster backend to redis, got %q", cfg.Cluster.Backend)
	}
	if cfg.Typing.TTL != 5*time.Second {
		t.Errorf("expected 5s typing ttl, got %v", cfg.Typing.TTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socketd.yaml")
	data := []byte("server:\n  port: 5000\ncluster:\n  backend: nats\n  nats_url: nats://bus:4222\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("PORT", "5001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// env wins over file
	if cfg.Server.Port != 5001 {
		t.Errorf("expected port 5001, got %d", cfg.Server.Port)
	}
	if cfg.Cluster.Backend != ClusterNATS || cfg.Cluster.NATSURL != "nats://bus:4222" {
		t.Errorf("cluster not loaded from file: %+v", cfg.Cluster)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) { c.Cluster.Backend = ClusterLocal }, false},
		{"bad port", func(c *Config) { c.Cluster.Backend = ClusterLocal; c.Server.Port = 0 }, true},
		{"zero window", func(c *Config) { c.Cluster.Backend = ClusterLocal; c.RateLimit.WindowMS = 0 }, true},
		{"redis bus without redis", func(c *Config) { c.Cluster.Backend = ClusterRedis }, true},
		{"unknown backend", func(c *Config) { c.Cluster.Backend = "kafka" }, true},
		{"bad redis url", func(c *Config) {
			c.Cluster.Backend = ClusterLocal
			c.Redis.Enabled = true
			c.Redis.URL = "http://nope"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

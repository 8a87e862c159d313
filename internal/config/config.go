// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable of the chat server. All values have working
// defaults so the server starts with an empty environment.
type Config struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	WorkerPoolSize int `envconfig:"WORKER_POOL_SIZE" default:"256"`
	MaxConnections int `envconfig:"MAX_CONNECTIONS" default:"100000"`

	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`

	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`
	HeartbeatTimeout  time.Duration `envconfig:"HEARTBEAT_TIMEOUT" default:"10s"`
}

// Load processes the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.WorkerPoolSize <= 0 {
		return Config{}, fmt.Errorf("config: WORKER_POOL_SIZE must be positive, got %d", cfg.WorkerPoolSize)
	}
	if cfg.MaxConnections <= 0 {
		return Config{}, fmt.Errorf("config: MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	return cfg, nil
}

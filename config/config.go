package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration of the API binary, loaded from
// the environment.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	GatewayBaseURL  string        `env:"ESCROW_GATEWAY_URL" envDefault:"http://localhost:9090"`
	GatewaySecret   string        `env:"ESCROW_GATEWAY_SECRET,required"`
	GatewayTimeout  time.Duration `env:"ESCROW_GATEWAY_TIMEOUT" envDefault:"10s"`
	ReconcileEvery  time.Duration `env:"ESCROW_RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileMaxAge time.Duration `env:"ESCROW_RECONCILE_MAX_AGE" envDefault:"15m"`
	CloserInterval  time.Duration `env:"CHANNEL_CLOSER_INTERVAL" envDefault:"1m"`
	OutboxInterval  time.Duration `env:"OUTBOX_INTERVAL" envDefault:"5s"`
	BlobDir         string        `env:"BLOB_DIR" envDefault:"data/blobs"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

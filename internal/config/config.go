package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
)

type Config struct {
	Port          int           `env:"SOULSCORE_PORT" envDefault:"8760"`
	NatsURL       string        `env:"NATS_URL" envDefault:"nats://hermes:4222"`
	NatsToken     string        `env:"NATS_TOKEN"`
	DatabaseURL   string        `env:"DATABASE_URL,required,notEmpty"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	SnapshotTTL   time.Duration `env:"SNAPSHOT_TTL" envDefault:"10m"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	APIToken      string        `env:"SOULSCORE_API_TOKEN"`

	HalfLife          time.Duration `env:"REPUTATION_HALF_LIFE" envDefault:"168h"`
	AllowedCategories []string      `env:"REPUTATION_ALLOWED_CATEGORIES" envSeparator:","`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ReputationConfig overlays the env tunables on the engine defaults.
func (c Config) ReputationConfig() reputation.Config {
	rc := reputation.DefaultConfig()
	rc.HalfLife = c.HalfLife
	rc.AllowedCategories = c.AllowedCategories
	return rc
}

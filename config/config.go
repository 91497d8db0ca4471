package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the wall's runtime settings.
type Config struct {
	Addr          string        `env:"WALL_ADDR" envDefault:":3000"`
	DBPath        string        `env:"WALL_DB_PATH" envDefault:"data/commitments.db"`
	StorageKey    string        `env:"WALL_STORAGE_KEY" envDefault:"commitments"`
	SubmitDelay   time.Duration `env:"WALL_SUBMIT_DELAY" envDefault:"2s"`
	AnalyzeDelay  time.Duration `env:"WALL_ANALYZE_DELAY" envDefault:"1800ms"`
	MaxVideoBytes int64         `env:"WALL_MAX_VIDEO_BYTES" envDefault:"52428800"` // 50 MB
	ExportPrefix  string        `env:"WALL_EXPORT_PREFIX" envDefault:"Simply_Complex_Africa_Pledges"`
	Debug         bool          `env:"WALL_DEBUG" envDefault:"false"`
}

// Load reads .env (when present) into the environment and parses Config.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if _, err := os.Lstat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("failed to load env file '%s': %w", envFile, err)
			}
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the wall can't run with.
func (c Config) Validate() error {
	if c.StorageKey == "" {
		return fmt.Errorf("WALL_STORAGE_KEY cannot be empty")
	}
	if c.MaxVideoBytes <= 0 {
		return fmt.Errorf("WALL_MAX_VIDEO_BYTES must be positive, got %d", c.MaxVideoBytes)
	}
	if c.SubmitDelay < 0 || c.AnalyzeDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	return nil
}

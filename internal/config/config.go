package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string   `mapstructure:"PORT"`
	Env                string   `mapstructure:"ENV"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
	ClearinghouseURL   string   `mapstructure:"CLEARINGHOUSE_URL"`
	ClearinghouseKey   string   `mapstructure:"CLEARINGHOUSE_API_KEY"`
	AdapterTimeoutSec  int      `mapstructure:"ADAPTER_TIMEOUT_SECONDS"`
	AdapterMaxRetries  int      `mapstructure:"ADAPTER_MAX_RETRIES"`
	AdapterRetryDelay  int      `mapstructure:"ADAPTER_RETRY_DELAY_MS"`
	AutoSubmit         bool     `mapstructure:"AUTO_SUBMIT"`
	RefreshDelayMin    int      `mapstructure:"REFRESH_DELAY_MINUTES"`
	RecheckDelayMin    int      `mapstructure:"RECHECK_DELAY_MINUTES"`
	WorkerPollSec      int      `mapstructure:"WORKER_POLL_SECONDS"`
	DefaultBatchMethod string   `mapstructure:"DEFAULT_BATCH_METHOD"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ADAPTER_TIMEOUT_SECONDS", 30)
	v.SetDefault("ADAPTER_MAX_RETRIES", 3)
	v.SetDefault("ADAPTER_RETRY_DELAY_MS", 1000)
	v.SetDefault("AUTO_SUBMIT", false)
	v.SetDefault("REFRESH_DELAY_MINUTES", 30)
	v.SetDefault("RECHECK_DELAY_MINUTES", 60)
	v.SetDefault("WORKER_POLL_SECONDS", 5)
	v.SetDefault("DEFAULT_BATCH_METHOD", "electronic")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("CLEARINGHOUSE_URL")
	v.BindEnv("CLEARINGHOUSE_API_KEY")
	v.BindEnv("ADAPTER_TIMEOUT_SECONDS")
	v.BindEnv("ADAPTER_MAX_RETRIES")
	v.BindEnv("ADAPTER_RETRY_DELAY_MS")
	v.BindEnv("AUTO_SUBMIT")
	v.BindEnv("REFRESH_DELAY_MINUTES")
	v.BindEnv("RECHECK_DELAY_MINUTES")
	v.BindEnv("WORKER_POLL_SECONDS")
	v.BindEnv("DEFAULT_BATCH_METHOD")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AdapterTimeout returns the outbound adapter call timeout.
func (c *Config) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutSec) * time.Second
}

// AdapterRetryInterval returns the delay between adapter retry attempts.
func (c *Config) AdapterRetryInterval() time.Duration {
	return time.Duration(c.AdapterRetryDelay) * time.Millisecond
}

// RefreshDelay returns the initial delay before a submitted batch is
// re-checked against the clearinghouse.
func (c *Config) RefreshDelay() time.Duration {
	return time.Duration(c.RefreshDelayMin) * time.Minute
}

// RecheckDelay returns the delay for follow-up checks when claims are still
// pending after the first refresh.
func (c *Config) RecheckDelay() time.Duration {
	return time.Duration(c.RecheckDelayMin) * time.Minute
}

// Validate checks that the configuration is safe to run. In production the
// clearinghouse endpoint must be configured so electronic submissions do not
// silently fall back to manual handling.
func (c *Config) Validate() error {
	if c.IsProduction() && c.ClearinghouseURL == "" {
		return fmt.Errorf("CLEARINGHOUSE_URL is required in production")
	}
	if c.AdapterTimeoutSec <= 0 {
		return fmt.Errorf("ADAPTER_TIMEOUT_SECONDS must be positive, got %d", c.AdapterTimeoutSec)
	}
	if c.AdapterMaxRetries < 0 {
		return fmt.Errorf("ADAPTER_MAX_RETRIES must not be negative, got %d", c.AdapterMaxRetries)
	}
	switch c.DefaultBatchMethod {
	case "electronic", "portal", "paper":
	default:
		return fmt.Errorf("DEFAULT_BATCH_METHOD must be \"electronic\", \"portal\", or \"paper\", got %q", c.DefaultBatchMethod)
	}
	return nil
}

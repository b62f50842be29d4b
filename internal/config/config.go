package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// EnvPrefix is stripped from environment variables; "__" separates nested keys,
// e.g. LEARNBOT_DATABASE__DSN sets database.dsn.
const EnvPrefix = "LEARNBOT_"

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Database    DatabaseConfig    `koanf:"database"`
	Discord     DiscordConfig     `koanf:"discord"`
	Schedule    ScheduleConfig    `koanf:"schedule"`
	Sweep       SweepConfig       `koanf:"sweep"`
	Partnership PartnershipConfig `koanf:"partnership"`
	API         APIConfig         `koanf:"api"`
	Persona     PersonaConfig     `koanf:"persona"`
	Log         LogConfig         `koanf:"log"`
}

type DatabaseConfig struct {
	Driver     string        `koanf:"driver"`
	DSN        string        `koanf:"dsn"`
	MaxRetries int           `koanf:"max_retries"`
	RetryDelay time.Duration `koanf:"retry_delay"`
	LogLevel   string        `koanf:"log_level"`
}

type DiscordConfig struct {
	Token string `koanf:"token"`
}

type ScheduleConfig struct {
	Timezone   string `koanf:"timezone"`    // IANA name, e.g. Asia/Kolkata
	SweepCron  string `koanf:"sweep_cron"`  // evaluated in Timezone
	ExpiryCron string `koanf:"expiry_cron"` // pending invite cleanup
}

type SweepConfig struct {
	Concurrency     int           `koanf:"concurrency"`
	DeliveryTimeout time.Duration `koanf:"delivery_timeout"`
}

type PartnershipConfig struct {
	InviteTTL time.Duration `koanf:"invite_ttl"`
}

type APIConfig struct {
	Addr           string        `koanf:"addr"`
	JWTSecret      string        `koanf:"jwt_secret"`
	JWTExpiry      time.Duration `koanf:"jwt_expiry"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	TrustedProxies []string      `koanf:"trusted_proxies"`
}

type PersonaConfig struct {
	Name             string `koanf:"name"`
	DefaultHonorific string `koanf:"default_honorific"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Load layers defaults, an optional YAML file and LEARNBOT_* environment variables.
// A .env file in the working directory is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Location loads the configured IANA timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown database driver: %s (supported: %s, %s)",
			c.Database.Driver, DriverPostgres, DriverSQLite)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required (set %sDATABASE__DSN)", EnvPrefix)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.SweepCron); err != nil {
		return fmt.Errorf("invalid sweep_cron %q: %w", c.Schedule.SweepCron, err)
	}
	if _, err := parser.Parse(c.Schedule.ExpiryCron); err != nil {
		return fmt.Errorf("invalid expiry_cron %q: %w", c.Schedule.ExpiryCron, err)
	}

	if c.Sweep.Concurrency <= 0 {
		return fmt.Errorf("sweep concurrency must be positive")
	}
	if c.Sweep.DeliveryTimeout <= 0 {
		return fmt.Errorf("sweep delivery_timeout must be positive")
	}
	if c.Partnership.InviteTTL <= 0 {
		return fmt.Errorf("partnership invite_ttl must be positive")
	}

	return nil
}

// ValidateAPI checks the settings only the HTTP API needs
func (c *Config) ValidateAPI() error {
	if c.API.JWTSecret == "" {
		return fmt.Errorf("api jwt_secret is required (set %sAPI__JWT_SECRET)", EnvPrefix)
	}
	if c.API.JWTExpiry <= 0 {
		return fmt.Errorf("api jwt_expiry must be positive")
	}
	return nil
}

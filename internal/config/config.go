package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Addr           string        `env:"CAPTAINS_ADDR" envDefault:":8080"`
	LogLevel       string        `env:"CAPTAINS_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"CAPTAINS_LOG_FORMAT" envDefault:"console"`
	SettleDelay    time.Duration `env:"CAPTAINS_SETTLE_DELAY" envDefault:"300ms"`
	WatchdogGrace  time.Duration `env:"CAPTAINS_WATCHDOG_GRACE" envDefault:"2s"`
	TargetScore    int           `env:"CAPTAINS_TARGET_SCORE" envDefault:"0"`
	OutboxSize     int           `env:"CAPTAINS_OUTBOX_SIZE" envDefault:"32"`
	ReadTimeout    time.Duration `env:"CAPTAINS_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout   time.Duration `env:"CAPTAINS_WRITE_TIMEOUT" envDefault:"3s"`
	AllowedOrigins []string      `env:"CAPTAINS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads the given .env files (missing ones are skipped; variables
// already set win) and then parses the environment.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle delay must not be negative, got %s", c.SettleDelay))
	}
	if c.WatchdogGrace < 0 {
		errs = append(errs, fmt.Errorf("watchdog grace must not be negative, got %s", c.WatchdogGrace))
	}
	if c.TargetScore < 0 {
		errs = append(errs, fmt.Errorf("target score must not be negative, got %d", c.TargetScore))
	}
	if c.OutboxSize < 1 {
		errs = append(errs, fmt.Errorf("outbox size must be at least 1, got %d", c.OutboxSize))
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("read and write timeouts must be positive"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Package config конфигурация клиента: переменные окружения ADMINSYNC_*,
// поверх которых применяются флаги командной строки.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// Config параметры клиента
type Config struct {
	Server         string        `env:"ADMINSYNC_SERVER"          envDefault:"http://localhost:8080"`
	DBPath         string        `env:"ADMINSYNC_DB"              envDefault:"adminsync-client.db"`
	Room           string        `env:"ADMINSYNC_ROOM"            envDefault:"admin"`
	TypesFile      string        `env:"ADMINSYNC_TYPES_FILE"`
	LogLevel       string        `env:"ADMINSYNC_LOG_LEVEL"       envDefault:"warn"`
	Password       string        `env:"ADMINSYNC_PASSWORD"`
	ResyncInterval time.Duration `env:"ADMINSYNC_RESYNC_INTERVAL" envDefault:"5m"`
	RequestTimeout time.Duration `env:"ADMINSYNC_REQUEST_TIMEOUT" envDefault:"30s"`
	JoinTimeout    time.Duration `env:"ADMINSYNC_JOIN_TIMEOUT"    envDefault:"10s"`
	BackoffMin     time.Duration `env:"ADMINSYNC_BACKOFF_MIN"     envDefault:"250ms"`
	BackoffMax     time.Duration `env:"ADMINSYNC_BACKOFF_MAX"     envDefault:"30s"`
	StableAfter    time.Duration `env:"ADMINSYNC_STABLE_AFTER"    envDefault:"10s"`
}

// Load читает конфигурацию из окружения
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// LoadFromMap читает конфигурацию из заданного окружения.
// Используется для тестирования.
func LoadFromMap(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// BindFlags регистрирует флаги, значения по умолчанию которых взяты из окружения.
// Пароль флагом не принимается.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Server, "server", c.Server, "server URL")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "path to local database")
	fs.StringVar(&c.Room, "room", c.Room, "broadcast room to join")
	fs.StringVar(&c.TypesFile, "types-file", c.TypesFile, "YAML file with additional entity types")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug|info|warn|error)")
	fs.DurationVar(&c.ResyncInterval, "resync-interval", c.ResyncInterval, "periodic full resync interval (0 disables)")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "remote write timeout")
	fs.DurationVar(&c.JoinTimeout, "join-timeout", c.JoinTimeout, "room join timeout")
	fs.DurationVar(&c.BackoffMin, "backoff-min", c.BackoffMin, "minimal reconnect delay")
	fs.DurationVar(&c.BackoffMax, "backoff-max", c.BackoffMax, "maximal reconnect delay")
	fs.DurationVar(&c.StableAfter, "stable-after", c.StableAfter, "time in room after which reconnect backoff resets")
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server URL is required")
	}
	if c.Room == "" {
		return fmt.Errorf("room is required")
	}
	if c.ResyncInterval < 0 {
		return fmt.Errorf("resync interval must not be negative")
	}
	if c.BackoffMin <= 0 || c.BackoffMax < c.BackoffMin {
		return fmt.Errorf("invalid backoff range %s..%s", c.BackoffMin, c.BackoffMax)
	}
	if c.StableAfter <= 0 {
		return fmt.Errorf("stable-after must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel переводит имя уровня логирования в slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// Package config конфигурация сервера: переменные окружения ADMINSYNC_SERVER_*
// и флаги командной строки поверх них.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// minSecretLen минимальная длина секрета подписи JWT
const minSecretLen = 32

// Config параметры сервера
type Config struct {
	Addr            string        `env:"ADMINSYNC_SERVER_ADDR"             envDefault:":8080"`
	DBPath          string        `env:"ADMINSYNC_SERVER_DB_PATH"          envDefault:"adminsync.db"`
	JWTSecret       string        `env:"ADMINSYNC_SERVER_JWT_SECRET"`
	AdminUsername   string        `env:"ADMINSYNC_SERVER_ADMIN_USERNAME"`
	AdminPassword   string        `env:"ADMINSYNC_SERVER_ADMIN_PASSWORD"`
	LogLevel        string        `env:"ADMINSYNC_SERVER_LOG_LEVEL"        envDefault:"info"`
	TypesFile       string        `env:"ADMINSYNC_SERVER_TYPES_FILE"`
	OTelEndpoint    string        `env:"ADMINSYNC_OTEL_ENDPOINT"`
	Rooms           []string      `env:"ADMINSYNC_SERVER_ROOMS"            envDefault:"admin" envSeparator:","`
	AccessTokenTTL  time.Duration `env:"ADMINSYNC_SERVER_ACCESS_TOKEN_TTL" envDefault:"12h"`
	ShutdownTimeout time.Duration `env:"ADMINSYNC_SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LoginRate       int           `env:"ADMINSYNC_SERVER_LOGIN_RATE"       envDefault:"10"`
	PublicRate      int           `env:"ADMINSYNC_SERVER_PUBLIC_RATE"      envDefault:"30"`
	OTelEnabled     bool          `env:"ADMINSYNC_OTEL_ENABLED"            envDefault:"true"`
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

// Parse читает окружение и применяет флаги из args
func Parse(fs *pflag.FlagSet, args []string, environ map[string]string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if environ == nil {
		cfg, err = Load()
	} else {
		cfg, err = LoadFromMap(environ)
	}
	if err != nil {
		return nil, err
	}

	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BindFlags регистрирует флаги. Секреты принимаются только из окружения.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "path to SQLite database")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug|info|warn|error)")
	fs.StringVar(&c.TypesFile, "types-file", c.TypesFile, "YAML file with additional entity types")
	fs.StringSliceVar(&c.Rooms, "rooms", c.Rooms, "broadcast rooms")
	fs.DurationVar(&c.AccessTokenTTL, "access-token-ttl", c.AccessTokenTTL, "access token lifetime")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "graceful shutdown timeout")
	fs.IntVar(&c.LoginRate, "login-rate", c.LoginRate, "login attempts per minute per IP")
	fs.IntVar(&c.PublicRate, "public-rate", c.PublicRate, "public submissions per minute per IP")
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	if len(c.JWTSecret) < minSecretLen {
		return fmt.Errorf("ADMINSYNC_SERVER_JWT_SECRET must be at least %d characters", minSecretLen)
	}
	if len(c.RoomNames()) == 0 {
		return fmt.Errorf("at least one room is required")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token TTL must be positive")
	}
	if c.LoginRate <= 0 || c.PublicRate <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return fmt.Errorf("admin username and password must be set together")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RoomNames список комнат без пустых значений и дубликатов
func (c *Config) RoomNames() []string {
	seen := make(map[string]struct{}, len(c.Rooms))
	out := make([]string, 0, len(c.Rooms))
	for _, r := range c.Rooms {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
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

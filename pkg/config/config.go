package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds runtime configuration for the viewer store service.
type Config struct {
	AppEnv   string         `mapstructure:"app_env"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level  string         `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string         `mapstructure:"format" validate:"omitempty,oneof=text json"`
	File   FileSinkConfig `mapstructure:"file"`
}

// FileSinkConfig enables rotated file output when Path is set.
type FileSinkConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig describes how to reach the users table.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"required,oneof=mysql postgres sqlite"`
	Host     string `mapstructure:"host" validate:"required_unless=Driver sqlite"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	User     string `mapstructure:"user" validate:"required_unless=Driver sqlite"`
	Password string `mapstructure:"password"`
	// Name is the database name, or the file path for sqlite.
	Name   string            `mapstructure:"name" validate:"required"`
	Params map[string]string `mapstructure:"params"`
	Table  string            `mapstructure:"table"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// Addr returns host:port, falling back to the driver's default port.
func (c DatabaseConfig) Addr() string {
	port := c.Port
	if port == 0 {
		switch c.Driver {
		case "mysql":
			port = 3306
		case "postgres":
			port = 5432
		}
	}

	if port == 0 {
		return c.Host
	}

	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// String describes the target without credentials.
func (c DatabaseConfig) String() string {
	if c.Driver == "sqlite" {
		return fmt.Sprintf("sqlite:%s", c.Name)
	}

	return fmt.Sprintf("%s://%s@%s/%s", c.Driver, c.User, c.Addr(), c.Name)
}

// HTTPConfig configures the health and metrics listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

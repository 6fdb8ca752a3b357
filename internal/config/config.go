// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/directive-dispatch/pkg/directive"
)

const logPrefix = "config:LoadConfig"

// Config holds directive-dispatch configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"directive-dispatch"`

	// Subjects
	DirectiveSubject     string `envconfig:"DIRECTIVE_SUBJECT" default:"cap.directive.dispatch.v1"`
	DispatchEventSubject string `envconfig:"DISPATCH_EVENT_SUBJECT" default:"directive.dispatched"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`

	// Operation catalog (empty = search config/operations.json, operations.json, then built-in)
	OperationsFile string `envconfig:"OPERATIONS_FILE"`

	// Directive syntax
	StartMarker string `envconfig:"DIRECTIVE_START_MARKER" default:"<start_function_call>"`
	EndMarker   string `envconfig:"DIRECTIVE_END_MARKER" default:"<end_function_call>"`
	EscapeToken string `envconfig:"DIRECTIVE_ESCAPE_TOKEN" default:"<escape>"`

	// Database (optional for serve; enables the dispatch audit log)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	// MigrationPath empty = migrations embedded in the binary.
	MigrationPath string `envconfig:"MIGRATION_PATH"`

	// HTTP health endpoint (DISPATCH_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"DISPATCH_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Syntax returns the directive syntax configured by the marker and escape variables.
func (c *Config) Syntax() directive.Syntax {
	return directive.Syntax{
		StartMarker: c.StartMarker,
		EndMarker:   c.EndMarker,
		EscapeToken: c.EscapeToken,
	}
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ListenAddr returns HTTPAddr when set, otherwise ":HTTPPort".
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ValidateForServe checks required config when running the dispatch server.
func (c *Config) ValidateForServe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.DirectiveSubject == "" {
		return fmt.Errorf("%s - DIRECTIVE_SUBJECT must not be empty", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if err := c.Syntax().Validate(); err != nil {
		return fmt.Errorf("%s - %w", logPrefix, err)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, history).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

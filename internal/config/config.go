// Package config loads tablegen settings from environment variables.
// Defaults cover everything except the input directory, and every setting
// is validated before a run starts so a bad value fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Build    BuildConfig
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// BuildConfig controls which sheets are read and which artifacts are written.
type BuildConfig struct {
	// InputDir is the directory holding the sheet files (required)
	InputDir string `env:"TABLEGEN_INPUT_DIR" envAlt:"INPUT_DIR" required:"true"`

	// OutputDir receives config.bytes and the lua/ directory
	OutputDir string `env:"TABLEGEN_OUTPUT_DIR" default:"lua/generated_excel"`

	// Bytes enables the binary artifact (default: true)
	Bytes bool `env:"TABLEGEN_BYTES" default:"true"`

	// Lua enables the Lua modules (default: true)
	Lua bool `env:"TABLEGEN_LUA" default:"true"`

	// Compress wraps the binary artifact in zstd (default: true)
	Compress bool `env:"TABLEGEN_COMPRESS" default:"true"`

	// CompressLevel is the zstd effort, 0 (fastest) to 22 (default: 4)
	CompressLevel int `env:"TABLEGEN_COMPRESS_LEVEL" default:"4"`

	// Audience selects the exported columns: server or client (default: server)
	Audience string `env:"TABLEGEN_AUDIENCE" default:"server"`

	// Workers bounds how many sheets are read and compiled at once (default: 4)
	Workers int `env:"TABLEGEN_WORKERS" default:"4"`

	// CommitID is recorded in the binary artifact, usually the VCS revision
	CommitID string `env:"TABLEGEN_COMMIT_ID"`

	// Extensions lists the sheet file types to read
	Extensions []string `env:"TABLEGEN_EXTENSIONS" default:"csv,yaml,yml"`
}

// ServerConfig holds settings of the preview server.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`

	// RequestTimeout bounds a single request, rebuilds included (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the optional build archive connection.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// Publish stores every successful build in the database (default: false)
	Publish bool `env:"DB_PUBLISH" default:"false"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"4"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"0"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

package config

import (
	"time"
)

// Config is the root configuration for the URAICS risk service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server" validate:"required"`
	Oracle  OracleConfig  `mapstructure:"oracle" yaml:"oracle" validate:"required"`
	Neo4j   Neo4jConfig   `mapstructure:"neo4j" yaml:"neo4j" validate:"required"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the host:port the API listens on.
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address" validate:"required"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	// "*" allows any origin.
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// OracleConfig contains connection settings for the relational
// tax-administration replica. Credentials are read-only.
type OracleConfig struct {
	// DSN is the driver connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn" validate:"required"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns" validate:"min=1,max=100"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" validate:"min=0,max=100"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`

	// AcquireTimeout bounds the wait for a pooled connection. Requests
	// fail fast with DB_POOL_TIMEOUT beyond this.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout" validate:"min=1s"`
}

// Neo4jConfig contains Neo4j connection settings for the relationship mirror.
type Neo4jConfig struct {
	URI               string        `mapstructure:"uri" yaml:"uri" validate:"required"`
	Username          string        `mapstructure:"username" yaml:"username" validate:"required"`
	Password          string        `mapstructure:"password" yaml:"password" validate:"required"`
	Database          string        `mapstructure:"database" yaml:"database"`
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=500"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout" validate:"min=1s"`
}

// SyncConfig controls the mirror refresh run by the sync subcommand.
type SyncConfig struct {
	// Parallelism bounds concurrent rule evaluations during a full sync.
	// Zero falls back to serial execution.
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism" validate:"omitempty,min=1,max=19"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

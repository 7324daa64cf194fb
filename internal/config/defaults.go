package config

import "time"

// DefaultConfig returns the configuration used when no config file exists.
// The DSN and Neo4j password carry local-development placeholders and must
// be overridden (usually via ${ENV} interpolation) in any real deployment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:   "localhost:8080",
			CORSOrigins:     []string{"*"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Oracle: OracleConfig{
			DSN:             "postgres://localhost:5432/etaxdb?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			AcquireTimeout:  10 * time.Second,
		},
		Neo4j: Neo4jConfig{
			URI:               "bolt://localhost:7687",
			Username:          "neo4j",
			Password:          "password",
			Database:          "",
			MaxConnections:    50,
			ConnectionTimeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Parallelism: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

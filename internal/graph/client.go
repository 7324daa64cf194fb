package graph

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

// Config contains connection options for the Neo4j relationship mirror.
type Config struct {
	// URI is the connection URI. "bolt://host:port" for unencrypted
	// connections, "bolt+s://" for TLS, "neo4j://" for routing.
	URI string

	// Username and Password for basic authentication.
	Username string
	Password string

	// Database name to connect to. Empty string uses the default database.
	Database string

	// MaxConnectionPoolSize limits the number of connections in the pool.
	// Zero or negative values use the driver default.
	MaxConnectionPoolSize int

	// ConnectionTimeout is the maximum time to wait for a connection.
	ConnectionTimeout time.Duration
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.URI == "" {
		return types.NewError(types.GRAPH_INVALID_CONFIG, "URI cannot be empty")
	}
	if c.Username == "" {
		return types.NewError(types.GRAPH_INVALID_CONFIG, "Username cannot be empty")
	}
	if c.Password == "" {
		return types.NewError(types.GRAPH_INVALID_CONFIG, "Password cannot be empty")
	}
	if c.ConnectionTimeout <= 0 {
		return types.NewError(types.GRAPH_INVALID_CONFIG, "ConnectionTimeout must be positive")
	}
	return nil
}

// Client wraps the Neo4j driver with session-per-call execution. Every
// operation acquires a session, runs exactly one statement in a managed
// transaction, and closes the session unconditionally. Thread-safe.
type Client struct {
	config Config
	driver neo4j.DriverWithContext
}

// NewClient creates a new client with the given configuration.
// The client must be connected via Connect() before use.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{config: config}, nil
}

// Connect establishes a connection to the Neo4j database.
// Uses exponential backoff for connection retries.
func (c *Client) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(c.config.Username, c.config.Password, "")

	driverConfig := func(config *neo4j.Config) {
		config.MaxConnectionPoolSize = c.config.MaxConnectionPoolSize
		config.ConnectionAcquisitionTimeout = c.config.ConnectionTimeout
	}

	var driver neo4j.DriverWithContext
	var lastErr error
	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		var err error
		driver, err = neo4j.NewDriverWithContext(c.config.URI, auth, driverConfig)
		if err == nil {
			err = driver.VerifyConnectivity(ctx)
			if err == nil {
				c.driver = driver
				return nil
			}
		}

		lastErr = err

		if ctx.Err() != nil {
			return types.WrapError(types.GRAPH_CONNECTION_FAILED,
				"connection attempt cancelled", ctx.Err())
		}

		// Backoff delay: baseDelay * 2^attempt, capped at the connection timeout.
		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > c.config.ConnectionTimeout {
			delay = c.config.ConnectionTimeout
		}

		select {
		case <-time.After(delay):
			continue
		case <-ctx.Done():
			return types.WrapError(types.GRAPH_CONNECTION_FAILED,
				"connection attempt cancelled", ctx.Err())
		}
	}

	return types.WrapError(types.GRAPH_CONNECTION_FAILED,
		fmt.Sprintf("failed to connect after %d attempts", maxRetries), lastErr)
}

// Close releases all resources and closes the database connection.
func (c *Client) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}

	if err := c.driver.Close(ctx); err != nil {
		return types.WrapError(types.GRAPH_CONNECTION_CLOSED,
			"failed to close driver", err)
	}

	c.driver = nil
	return nil
}

// Health returns the current health status of the Neo4j connection.
func (c *Client) Health(ctx context.Context) types.HealthStatus {
	if c.driver == nil {
		return types.Unhealthy("driver not initialized")
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.driver.VerifyConnectivity(healthCtx); err != nil {
		return types.Unhealthy(fmt.Sprintf("connectivity check failed: %v", err))
	}

	return types.Healthy("connected")
}

// Read executes a Cypher query in a read transaction and returns the
// records as column-name → value mappings.
func (c *Client) Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return c.run(ctx, cypher, params, neo4j.AccessModeRead)
}

// Write executes a Cypher statement in a write transaction and returns the
// records it produces. Atomicity is per-call: each Write is a single
// statement in its own transaction.
func (c *Client) Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return c.run(ctx, cypher, params, neo4j.AccessModeWrite)
}

func (c *Client) run(ctx context.Context, cypher string, params map[string]any, mode neo4j.AccessMode) ([]map[string]any, error) {
	if c.driver == nil {
		return nil, types.NewError(types.GRAPH_CONNECTION_CLOSED, "driver not connected")
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.config.Database,
	})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}

		return convertRecords(records), nil
	}

	var result any
	var err error
	if mode == neo4j.AccessModeWrite {
		result, err = session.ExecuteWrite(ctx, work)
	} else {
		result, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		return nil, types.WrapError(types.GRAPH_QUERY_FAILED, "query execution failed", err)
	}

	return result.([]map[string]any), nil
}

// convertRecords converts Neo4j records to plain mappings.
func convertRecords(records []*neo4j.Record) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		row := make(map[string]any, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = record.Values[i]
		}
		out = append(out, row)
	}
	return out
}

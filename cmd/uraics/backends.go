package main

import (
	"context"
	"log/slog"

	"github.com/amasuba/uraics-revenue-assurance/internal/config"
	"github.com/amasuba/uraics-revenue-assurance/internal/database"
	"github.com/amasuba/uraics-revenue-assurance/internal/graph"
)

// backends holds the connected data stores shared by serve and sync.
type backends struct {
	db     *database.DB
	client *graph.Client
	store  graph.Store
}

// openBackends connects both stores. Boot fails if either is unreachable.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	db, err := database.Open(ctx, cfg.Oracle)
	if err != nil {
		return nil, err
	}

	client, err := graph.NewClient(graph.Config{
		URI:                   cfg.Neo4j.URI,
		Username:              cfg.Neo4j.Username,
		Password:              cfg.Neo4j.Password,
		Database:              cfg.Neo4j.Database,
		MaxConnectionPoolSize: cfg.Neo4j.MaxConnections,
		ConnectionTimeout:     cfg.Neo4j.ConnectionTimeout,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &backends{
		db:     db,
		client: client,
		store:  graph.NewNeo4jStore(client),
	}, nil
}

func (b *backends) close(ctx context.Context) {
	if err := b.client.Close(ctx); err != nil {
		slog.Warn("graph close failed", "error", err)
	}
	if err := b.db.Close(); err != nil {
		slog.Warn("database close failed", "error", err)
	}
}

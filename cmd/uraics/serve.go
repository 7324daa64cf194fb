package main

import (
	"github.com/spf13/cobra"

	"github.com/amasuba/uraics-revenue-assurance/internal/aggregate"
	"github.com/amasuba/uraics-revenue-assurance/internal/mirror"
	"github.com/amasuba/uraics-revenue-assurance/internal/risk"
	"github.com/amasuba/uraics-revenue-assurance/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API server",
	Long: `Connects to the relational replica and the Neo4j mirror, then
serves the dashboard REST API until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close(ctx)

	evaluator := risk.NewEvaluator(b.db)

	srv := server.New(server.Options{
		Config:    *cfg,
		DB:        b.db,
		Store:     b.store,
		Evaluator: evaluator,
		Aggregate: aggregate.New(b.db, b.store),
		Syncer:    mirror.NewSyncer(evaluator, b.store),
	})

	return srv.Start(ctx)
}
